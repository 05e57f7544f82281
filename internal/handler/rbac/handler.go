package rbac

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/taskdesk-api/internal/handler"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	rbacService "github.com/jwalitptl/taskdesk-api/internal/service/rbac"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

type Handler struct {
	service *rbacService.Service
}

func NewHandler(service *rbacService.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the permission settings console under r, which is
// expected to be the /admin group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	perms := r.Group("/permissions")
	{
		perms.GET("", h.ListSettings)
		perms.PATCH("/:id", h.UpdateSetting)
	}
}

func (h *Handler) ListSettings(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	settings, err := h.service.ListSettings(c.Request.Context(), actorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, settings)
}

func (h *Handler) UpdateSetting(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var patch model.PermissionSettingPatch
	if !handler.BindJSON(c, &patch) {
		return
	}

	setting, err := h.service.UpdateSetting(c.Request.Context(), actorID, id, patch)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, setting)
}
