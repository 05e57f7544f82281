package permission

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/handler"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	permissionService "github.com/jwalitptl/taskdesk-api/internal/service/permission"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

type Evaluator interface {
	Decide(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (permissionService.Decision, error)
	EvaluateMany(ctx context.Context, actorID uuid.UUID, checks []permissionService.Check) []bool
	RolePermissions(ctx context.Context, actorID uuid.UUID) ([]model.PermissionSetting, error)
}

type Handler struct {
	evaluator Evaluator
}

func NewHandler(evaluator Evaluator) *Handler {
	return &Handler{evaluator: evaluator}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	perms := r.Group("/permissions")
	{
		perms.GET("/me", h.MyPermissions)
		perms.POST("/check", h.Check)
		perms.POST("/check-many", h.CheckMany)
	}
}

// MyPermissions lists the settings of the caller's role, so clients can
// hide actions up front.
func (h *Handler) MyPermissions(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	settings, err := h.evaluator.RolePermissions(c.Request.Context(), actorID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Failed("could not load permissions", err))
		return
	}
	httputil.RespondWithSuccess(c, settings)
}

// Check answers one permission question. A denial is a normal 200 answer.
func (h *Handler) Check(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req permissionService.Check
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.evaluator.Decide(c.Request.Context(), actorID, req.PermissionType, req.TargetID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid permission check", err))
		return
	}
	httputil.RespondWithSuccess(c, d)
}

type checkManyRequest struct {
	Checks []permissionService.Check `json:"checks" binding:"required,min=1,max=50,dive"`
}

type checkResult struct {
	PermissionType model.PermissionType `json:"permission_type"`
	TargetID       *uuid.UUID           `json:"target_id,omitempty"`
	Allowed        bool                 `json:"allowed"`
}

// CheckMany evaluates independent checks concurrently, answering in order.
func (h *Handler) CheckMany(c *gin.Context) {
	actorID, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req checkManyRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	allowed := h.evaluator.EvaluateMany(c.Request.Context(), actorID, req.Checks)
	results := make([]checkResult, len(req.Checks))
	for i, check := range req.Checks {
		results[i] = checkResult{
			PermissionType: check.PermissionType,
			TargetID:       check.TargetID,
			Allowed:        allowed[i],
		}
	}
	httputil.RespondWithSuccess(c, results)
}
