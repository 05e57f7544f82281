package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/taskdesk-api/internal/handler"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	auditService "github.com/jwalitptl/taskdesk-api/internal/service/audit"
	"github.com/jwalitptl/taskdesk-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

type LogReader interface {
	List(ctx context.Context, filter model.ActivityLogFilter) ([]*model.ActivityLogEntry, int64, error)
	Stats(ctx context.Context, filter model.ActivityLogFilter) (*model.ActivityStats, error)
	Export(ctx context.Context, filter model.ActivityLogFilter, format auditService.ExportFormat, w io.Writer) (int, error)
}

type Handler struct {
	logs     LogReader
	activity *auditService.ActivityLogger
	profiles rbac.ProfileLookup
}

func NewHandler(logs LogReader, activity *auditService.ActivityLogger, profiles rbac.ProfileLookup) *Handler {
	return &Handler{
		logs:     logs,
		activity: activity,
		profiles: profiles,
	}
}

// RegisterRoutes mounts the client-reported activity endpoint.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/activity/login", h.RecordLogin)
}

// RegisterAdminRoutes mounts the log viewer under the /admin group. Extra
// handlers run before the export handler.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup, export ...gin.HandlerFunc) {
	logs := r.Group("/logs")
	{
		logs.GET("", h.ListLogs)
		logs.GET("/stats", h.Stats)
		logs.GET("/export", append(export, h.Export)...)
	}
}

// loginRequest reports a sign-in attempt. An omitted success means it worked.
type loginRequest struct {
	Success      *bool  `json:"success"`
	ErrorMessage string `json:"error_message" binding:"max=500"`
}

// RecordLogin stores a sign-in attempt reported by the web client after it
// talked to the identity provider.
func (h *Handler) RecordLogin(c *gin.Context) {
	if _, ok := handler.Actor(c); !ok {
		return
	}
	var req loginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	var outcome error
	if req.Success != nil && !*req.Success {
		msg := req.ErrorMessage
		if msg == "" {
			msg = "login failed"
		}
		outcome = errors.New(msg)
	}

	id := h.activity.LoginAttempted(c.Request.Context(), outcome)
	httputil.RespondWithStatus(c, http.StatusAccepted, gin.H{"recorded": id != nil})
}

func (h *Handler) requireAdmin(c *gin.Context) bool {
	actorID, ok := handler.Actor(c)
	if !ok {
		return false
	}
	if _, err := rbac.RequireAdmin(c.Request.Context(), h.profiles, actorID); err != nil {
		httputil.RespondWithError(c, err)
		return false
	}
	return true
}

// ListLogs pages through the activity log, newest first.
func (h *Handler) ListLogs(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	filter, err := ParseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	logs, total, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Failed("could not load activity logs", err))
		return
	}
	p := filter.Pagination.Normalize()
	httputil.RespondWithPagination(c, logs, p.Page, p.PageSize, int(total))
}

func (h *Handler) Stats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	filter, err := ParseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	stats, err := h.logs.Stats(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Failed("could not load activity statistics", err))
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

// Export streams every matching entry as CSV or JSON.
func (h *Handler) Export(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	filter, err := ParseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	format, err := auditService.ParseExportFormat(c.Query("format"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("unsupported format", err))
		return
	}

	filename := fmt.Sprintf("activity-logs-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	n, err := h.logs.Export(c.Request.Context(), filter, format, c.Writer)
	if err != nil {
		// the status line is already sent
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Int("rows", n).Msg("Activity export failed")
		_ = c.Error(err)
		c.Abort()
	}
}

const dateLayout = "2006-01-02"

// ParseFilter reads the log viewer's query parameters: action,
// resource_type, user_id, success, from, to, page and page_size. Dates are
// RFC 3339 timestamps or plain dates; a plain "to" date covers the whole
// day.
func ParseFilter(c *gin.Context) (model.ActivityLogFilter, error) {
	var filter model.ActivityLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		return filter, apperrors.BadRequest("invalid query", err)
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return filter, apperrors.BadRequest("unknown action", nil)
	}
	if filter.ResourceType != "" && !filter.ResourceType.Valid() {
		return filter, apperrors.BadRequest("unknown resource_type", nil)
	}

	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, apperrors.BadRequest("invalid user_id", err)
		}
		filter.UserID = &id
	}
	if v := c.Query("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.BadRequest("invalid success", err)
		}
		filter.Success = &b
	}

	var err error
	if filter.From, err = parseTime(c.Query("from"), false); err != nil {
		return filter, apperrors.BadRequest("invalid from", err)
	}
	if filter.To, err = parseTime(c.Query("to"), true); err != nil {
		return filter, apperrors.BadRequest("invalid to", err)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, apperrors.BadRequest("to is before from", nil)
	}
	return filter, nil
}

func parseTime(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
