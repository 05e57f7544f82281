package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/taskdesk-api/internal/middleware"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	rbacService "github.com/jwalitptl/taskdesk-api/internal/service/rbac"
	"github.com/jwalitptl/taskdesk-api/pkg/auth"
)

type settingsStore struct {
	settings map[uuid.UUID]*model.PermissionSetting
	updates  int
}

func (s *settingsStore) Get(_ context.Context, id uuid.UUID) (*model.PermissionSetting, error) {
	setting, ok := s.settings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *setting
	return &cp, nil
}

func (s *settingsStore) GetByRoleAndType(context.Context, model.Role, model.PermissionType) (*model.PermissionSetting, error) {
	return nil, repository.ErrNotFound
}

func (s *settingsStore) ListByRole(_ context.Context, role model.Role) ([]*model.PermissionSetting, error) {
	var out []*model.PermissionSetting
	for _, setting := range s.settings {
		if setting.Role == role {
			out = append(out, setting)
		}
	}
	return out, nil
}

func (s *settingsStore) ListAll(context.Context) ([]*model.PermissionSetting, error) {
	out := make([]*model.PermissionSetting, 0, len(s.settings))
	for _, setting := range s.settings {
		out = append(out, setting)
	}
	return out, nil
}

func (s *settingsStore) Update(_ context.Context, setting *model.PermissionSetting) error {
	if _, ok := s.settings[setting.ID]; !ok {
		return repository.ErrNotFound
	}
	s.updates++
	cp := *setting
	s.settings[setting.ID] = &cp
	return nil
}

func (s *settingsStore) CheckUserPermission(context.Context, uuid.UUID, model.PermissionType, *uuid.UUID) (bool, error) {
	return false, nil
}

type profiles map[uuid.UUID]*model.Profile

func (p profiles) Get(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	if profile, ok := p[id]; ok {
		return profile, nil
	}
	return nil, repository.ErrNotFound
}

type trail struct {
	entries []audit.Entry
}

func (t *trail) Record(_ context.Context, e audit.Entry) *uuid.UUID {
	t.entries = append(t.entries, e)
	id := uuid.New()
	return &id
}

type invalidations []model.Role

func (i *invalidations) SettingsChanged(_ context.Context, role model.Role) {
	*i = append(*i, role)
}

type fixture struct {
	engine      *gin.Engine
	store       *settingsStore
	trail       *trail
	invalidated *invalidations
	adminID     uuid.UUID
	staffID     uuid.UUID
	settingID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	f := &fixture{
		trail:       &trail{},
		invalidated: &invalidations{},
		adminID:     uuid.New(),
		staffID:     uuid.New(),
		settingID:   uuid.New(),
	}
	f.store = &settingsStore{settings: map[uuid.UUID]*model.PermissionSetting{
		f.settingID: {
			ID:             f.settingID,
			Role:           model.RoleDoctors,
			PermissionType: model.PermissionEditTasks,
			Scope:          model.ScopeOwn,
			Enabled:        true,
		},
	}}
	people := profiles{
		f.adminID: {ID: f.adminID, Role: model.RoleAdministrator, Active: true},
		f.staffID: {ID: f.staffID, Role: model.RoleDoctors, Active: true},
	}

	svc := rbacService.NewService(f.store, people, audit.NewActivityLogger(f.trail), f.invalidated)

	f.engine = gin.New()
	admin := f.engine.Group("/admin")
	admin.Use(func(c *gin.Context) {
		if v := c.GetHeader("X-Test-Actor"); v != "" {
			c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), uuid.MustParse(v)))
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(admin)
	return f
}

func (f *fixture) do(method, path string, actor uuid.UUID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-Test-Actor", actor.String())
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) patch(actor uuid.UUID, body string) *httptest.ResponseRecorder {
	return f.do(http.MethodPatch, "/admin/permissions/"+f.settingID.String(), actor, body)
}

func TestListSettings(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/admin/permissions", f.adminID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []model.PermissionSetting `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, model.ScopeOwn, body.Data[0].Scope)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/permissions", f.staffID, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/permissions", uuid.Nil, "").Code)
}

func TestUpdateSetting(t *testing.T) {
	t.Run("disabling drops the role's cached settings", func(t *testing.T) {
		f := newFixture(t)

		w := f.patch(f.adminID, `{"enabled":false}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, f.store.settings[f.settingID].Enabled)
		assert.Equal(t, invalidations{model.RoleDoctors}, *f.invalidated)

		require.Len(t, f.trail.entries, 1)
		assert.False(t, f.trail.entries[0].Failed)
	})

	t.Run("scope change", func(t *testing.T) {
		f := newFixture(t)

		w := f.patch(f.adminID, `{"scope":"same_group"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data model.PermissionSetting `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, model.ScopeSameGroup, body.Data.Scope)
		require.NotNil(t, body.Data.UpdatedBy)
		assert.Equal(t, f.adminID, *body.Data.UpdatedBy)
	})

	t.Run("unknown scope", func(t *testing.T) {
		f := newFixture(t)

		w := f.patch(f.adminID, `{"scope":"everyone"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "scope must be a known scope")
		assert.Zero(t, f.store.updates)
		assert.Empty(t, *f.invalidated)
		assert.Empty(t, f.trail.entries)
	})

	t.Run("empty patch", func(t *testing.T) {
		f := newFixture(t)

		w := f.patch(f.adminID, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.store.updates)
	})

	t.Run("staff are refused", func(t *testing.T) {
		f := newFixture(t)

		w := f.patch(f.staffID, `{"enabled":false}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.True(t, f.store.settings[f.settingID].Enabled)
		assert.Empty(t, *f.invalidated)
		require.Len(t, f.trail.entries, 1)
		assert.True(t, f.trail.entries[0].Failed)
	})

	t.Run("unknown setting", func(t *testing.T) {
		f := newFixture(t)

		w := f.do(http.MethodPatch, "/admin/permissions/"+uuid.NewString(), f.adminID, `{"enabled":false}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
