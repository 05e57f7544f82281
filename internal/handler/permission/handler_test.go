package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/taskdesk-api/internal/middleware"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	permissionService "github.com/jwalitptl/taskdesk-api/internal/service/permission"
	"github.com/jwalitptl/taskdesk-api/pkg/auth"
)

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Decide(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (permissionService.Decision, error) {
	args := m.Called(ctx, actorID, permType, target)
	return args.Get(0).(permissionService.Decision), args.Error(1)
}

func (m *mockEvaluator) EvaluateMany(ctx context.Context, actorID uuid.UUID, checks []permissionService.Check) []bool {
	args := m.Called(ctx, actorID, checks)
	return args.Get(0).([]bool)
}

func (m *mockEvaluator) RolePermissions(ctx context.Context, actorID uuid.UUID) ([]model.PermissionSetting, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PermissionSetting), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupRouter(t *testing.T, eval Evaluator, actorID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	r := gin.New()
	api := r.Group("")
	if actorID != uuid.Nil {
		api.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), actorID))
			c.Next()
		})
	}
	NewHandler(eval).RegisterRoutes(api)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestCheck(t *testing.T) {
	actorID := uuid.New()
	taskID := uuid.New()

	t.Run("returns the decision", func(t *testing.T) {
		eval := new(mockEvaluator)
		eval.On("Decide", mock.Anything, actorID, model.PermissionEditTasks, &taskID).
			Return(permissionService.Decision{Allowed: true, Reason: permissionService.ReasonAllowed, Scope: model.ScopeOwn}, nil)
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodPost, "/permissions/check", gin.H{
			"permission_type": "edit_tasks",
			"target_id":       taskID,
		})
		require.Equal(t, http.StatusOK, w.Code)
		var d permissionService.Decision
		require.NoError(t, json.Unmarshal(env.Data, &d))
		assert.True(t, d.Allowed)
		assert.Equal(t, model.ScopeOwn, d.Scope)
		eval.AssertExpectations(t)
	})

	t.Run("denial is still a 200", func(t *testing.T) {
		eval := new(mockEvaluator)
		eval.On("Decide", mock.Anything, actorID, model.PermissionDeleteTasks, (*uuid.UUID)(nil)).
			Return(permissionService.Decision{Reason: permissionService.ReasonNoSetting}, nil)
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodPost, "/permissions/check", gin.H{"permission_type": "delete_tasks"})
		require.Equal(t, http.StatusOK, w.Code)
		var d permissionService.Decision
		require.NoError(t, json.Unmarshal(env.Data, &d))
		assert.False(t, d.Allowed)
		assert.Equal(t, permissionService.ReasonNoSetting, d.Reason)
	})

	t.Run("unknown permission type is rejected before evaluation", func(t *testing.T) {
		eval := new(mockEvaluator)
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodPost, "/permissions/check", gin.H{"permission_type": "launch_rockets"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, env.Success)
		eval.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		r := setupRouter(t, new(mockEvaluator), uuid.Nil)

		w, _ := do(r, http.MethodPost, "/permissions/check", gin.H{"permission_type": "view_tasks"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCheckMany(t *testing.T) {
	actorID := uuid.New()
	taskID := uuid.New()

	t.Run("answers in request order", func(t *testing.T) {
		eval := new(mockEvaluator)
		eval.On("EvaluateMany", mock.Anything, actorID, mock.MatchedBy(func(checks []permissionService.Check) bool {
			return len(checks) == 2 && checks[0].PermissionType == model.PermissionEditTasks
		})).Return([]bool{false, true})
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodPost, "/permissions/check-many", gin.H{"checks": []gin.H{
			{"permission_type": "edit_tasks", "target_id": taskID},
			{"permission_type": "view_tasks"},
		}})
		require.Equal(t, http.StatusOK, w.Code)

		var results []checkResult
		require.NoError(t, json.Unmarshal(env.Data, &results))
		require.Len(t, results, 2)
		assert.False(t, results[0].Allowed)
		assert.Equal(t, &taskID, results[0].TargetID)
		assert.True(t, results[1].Allowed)
		assert.Equal(t, model.PermissionViewTasks, results[1].PermissionType)
	})

	t.Run("empty batch", func(t *testing.T) {
		r := setupRouter(t, new(mockEvaluator), actorID)

		w, _ := do(r, http.MethodPost, "/permissions/check-many", gin.H{"checks": []gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized batch", func(t *testing.T) {
		checks := make([]gin.H, 51)
		for i := range checks {
			checks[i] = gin.H{"permission_type": "view_tasks"}
		}
		r := setupRouter(t, new(mockEvaluator), actorID)

		w, _ := do(r, http.MethodPost, "/permissions/check-many", gin.H{"checks": checks})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMyPermissions(t *testing.T) {
	actorID := uuid.New()

	t.Run("lists role settings", func(t *testing.T) {
		eval := new(mockEvaluator)
		eval.On("RolePermissions", mock.Anything, actorID).Return([]model.PermissionSetting{
			{Role: model.RoleAssistants, PermissionType: model.PermissionViewTasks, Scope: model.ScopeAll, Enabled: true},
		}, nil)
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodGet, "/permissions/me", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var settings []model.PermissionSetting
		require.NoError(t, json.Unmarshal(env.Data, &settings))
		require.Len(t, settings, 1)
		assert.Equal(t, model.ScopeAll, settings[0].Scope)
	})

	t.Run("lookup failure", func(t *testing.T) {
		eval := new(mockEvaluator)
		eval.On("RolePermissions", mock.Anything, actorID).Return(nil, errors.New("db down"))
		r := setupRouter(t, eval, actorID)

		w, env := do(r, http.MethodGet, "/permissions/me", nil)
		assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
		assert.False(t, env.Success)
		assert.NotContains(t, env.Error.Message, "db down")
	})
}
