package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/taskdesk-api/internal/handler"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	userService "github.com/jwalitptl/taskdesk-api/internal/service/user"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

type Handler struct {
	service *userService.Service
}

func NewHandler(service *userService.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the recipient pickers.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users", h.Directory)
	r.GET("/groups", h.ListGroups)
}

// RegisterAdminRoutes mounts the users console under the /admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.PATCH("/:id/role", h.ChangeRole)
		users.PATCH("/:id/active", h.SetActive)
	}
}

func (h *Handler) Directory(c *gin.Context) {
	users, err := h.service.Directory(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, users)
}

func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.service.ListGroups(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, groups)
}

func (h *Handler) ListUsers(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filter model.UserFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	users, err := h.service.ListUsers(c.Request.Context(), actorID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, users)
}

func (h *Handler) ChangeRole(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	userID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.ChangeRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.service.ChangeRole(c.Request.Context(), actorID, userID, req.Role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) SetActive(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	userID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.SetActiveRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.service.SetActive(c.Request.Context(), actorID, userID, *req.Active)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, profile)
}
