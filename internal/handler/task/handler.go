package task

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/taskdesk-api/internal/handler"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	taskService "github.com/jwalitptl/taskdesk-api/internal/service/task"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

type Handler struct {
	service *taskService.Service
}

func NewHandler(service *taskService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tasks := r.Group("/tasks")
	{
		tasks.GET("", h.List)
		tasks.POST("", h.Create)
		tasks.GET("/:id", h.Get)
		tasks.PATCH("/:id", h.Update)
		tasks.DELETE("/:id", h.Delete)
		tasks.PATCH("/:id/status", h.SetStatus)
		tasks.GET("/:id/recipients", h.Recipients)
		tasks.PUT("/:id/recipients", h.Assign)
		tasks.GET("/:id/capabilities", h.Capabilities)
		tasks.POST("/:id/comments", h.AddComment)
		tasks.DELETE("/:id/comments/:commentId", h.DeleteComment)
		tasks.POST("/:id/read", h.MarkRead)
		tasks.GET("/:id/reads", h.Reads)
	}
}

func (h *Handler) List(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.TaskFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	tasks, total, err := h.service.List(c.Request.Context(), actorID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	p := filter.Pagination.Normalize()
	httputil.RespondWithPagination(c, tasks, p.Page, p.PageSize, int(total))
}

func (h *Handler) Create(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateTaskRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	task, err := h.service.Create(c.Request.Context(), actorID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, task)
}

func (h *Handler) Get(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	task, err := h.service.Get(c.Request.Context(), actorID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, task)
}

func (h *Handler) Update(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateTaskRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	task, err := h.service.Update(c.Request.Context(), actorID, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, task)
}

func (h *Handler) SetStatus(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.SetStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	task, err := h.service.SetStatus(c.Request.Context(), actorID, id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, task)
}

func (h *Handler) Delete(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actorID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Recipients(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	r, err := h.service.Recipients(c.Request.Context(), actorID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, r)
}

func (h *Handler) Assign(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.Recipients
	if !handler.BindJSON(c, &req) {
		return
	}

	r, err := h.service.Assign(c.Request.Context(), actorID, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, r)
}

// Capabilities tells the client which actions to offer on a task card.
func (h *Handler) Capabilities(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.Capabilities(c.Request.Context(), actorID, id))
}

func (h *Handler) AddComment(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.CommentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), actorID, id, req.Body)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, comment)
}

func (h *Handler) DeleteComment(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	commentID, ok := handler.UUIDParam(c, "commentId")
	if !ok {
		return
	}

	if err := h.service.DeleteComment(c.Request.Context(), actorID, id, commentID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkRead(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), actorID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Reads(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	reads, err := h.service.Reads(c.Request.Context(), actorID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, reads)
}
