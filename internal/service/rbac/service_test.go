package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
)

type mockPermissionRepo struct {
	mock.Mock
}

func (m *mockPermissionRepo) Get(ctx context.Context, id uuid.UUID) (*model.PermissionSetting, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*model.PermissionSetting), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPermissionRepo) GetByRoleAndType(ctx context.Context, role model.Role, pt model.PermissionType) (*model.PermissionSetting, error) {
	args := m.Called(ctx, role, pt)
	return args.Get(0).(*model.PermissionSetting), args.Error(1)
}

func (m *mockPermissionRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.PermissionSetting, error) {
	args := m.Called(ctx, role)
	return args.Get(0).([]*model.PermissionSetting), args.Error(1)
}

func (m *mockPermissionRepo) ListAll(ctx context.Context) ([]*model.PermissionSetting, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.PermissionSetting), args.Error(1)
}

func (m *mockPermissionRepo) Update(ctx context.Context, s *model.PermissionSetting) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockPermissionRepo) CheckUserPermission(ctx context.Context, actorID uuid.UUID, pt model.PermissionType, target *uuid.UUID) (bool, error) {
	args := m.Called(ctx, actorID, pt, target)
	return args.Bool(0), args.Error(1)
}

type profileMap map[uuid.UUID]*model.Profile

func (p profileMap) Get(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	if pr, ok := p[id]; ok {
		cp := *pr
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

type failingProfiles struct{}

func (failingProfiles) Get(context.Context, uuid.UUID) (*model.Profile, error) {
	return nil, errors.New("connection reset")
}

type entries struct {
	list []audit.Entry
}

func (e *entries) Record(_ context.Context, entry audit.Entry) *uuid.UUID {
	e.list = append(e.list, entry)
	id := uuid.New()
	return &id
}

type invalidations []model.Role

func (i *invalidations) SettingsChanged(_ context.Context, role model.Role) {
	*i = append(*i, role)
}

func addProfile(p profileMap, role model.Role, active bool) uuid.UUID {
	id := uuid.New()
	p[id] = &model.Profile{ID: id, FullName: string(role), Role: role, Active: active}
	return id
}

func TestRequireAdmin(t *testing.T) {
	profiles := profileMap{}
	admin := addProfile(profiles, model.RoleAdministrator, true)
	inactiveAdmin := addProfile(profiles, model.RoleAdministrator, false)
	doctor := addProfile(profiles, model.RoleDoctors, true)

	p, err := RequireAdmin(context.Background(), profiles, admin)
	require.NoError(t, err)
	assert.Equal(t, admin, p.ID)

	for name, id := range map[string]uuid.UUID{
		"inactive admin": inactiveAdmin,
		"doctor":         doctor,
		"unknown":        uuid.New(),
		"nil":            uuid.Nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := RequireAdmin(context.Background(), profiles, id)
			assert.ErrorIs(t, err, ErrNotAdmin)
		})
	}

	_, err = RequireAdmin(context.Background(), failingProfiles{}, admin)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}

func TestListSettings(t *testing.T) {
	profiles := profileMap{}
	admin := addProfile(profiles, model.RoleAdministrator, true)
	doctor := addProfile(profiles, model.RoleDoctors, true)

	repo := new(mockPermissionRepo)
	repo.On("ListAll", mock.Anything).Return([]*model.PermissionSetting{{Role: model.RoleDoctors}}, nil).Once()
	svc := NewService(repo, profiles, audit.NewActivityLogger(&entries{}), &invalidations{})

	settings, err := svc.ListSettings(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, settings, 1)

	_, err = svc.ListSettings(context.Background(), doctor)
	assert.ErrorIs(t, err, ErrNotAdmin)
	repo.AssertExpectations(t)
}

func TestUpdateSetting(t *testing.T) {
	ctx := context.Background()
	profiles := profileMap{}
	admin := addProfile(profiles, model.RoleAdministrator, true)
	hygienist := addProfile(profiles, model.RoleHygienists, true)

	settingID := uuid.New()
	current := &model.PermissionSetting{
		ID:             settingID,
		Role:           model.RoleHygienists,
		PermissionType: model.PermissionEditTasks,
		Scope:          model.ScopeOwn,
		Enabled:        true,
	}
	scope := model.ScopeSameGroup

	t.Run("admin update is saved audited and invalidated", func(t *testing.T) {
		repo := new(mockPermissionRepo)
		repo.On("Get", mock.Anything, settingID).Return(current, nil)
		repo.On("Update", mock.Anything, mock.MatchedBy(func(s *model.PermissionSetting) bool {
			return s.Scope == model.ScopeSameGroup && s.Enabled && *s.UpdatedBy == admin
		})).Return(nil)
		log := &entries{}
		inv := &invalidations{}
		svc := NewService(repo, profiles, audit.NewActivityLogger(log), inv)

		updated, err := svc.UpdateSetting(ctx, admin, settingID, model.PermissionSettingPatch{Scope: &scope})
		require.NoError(t, err)
		assert.Equal(t, model.ScopeSameGroup, updated.Scope)

		require.Len(t, log.list, 1)
		assert.Equal(t, model.ActionUpdate, log.list[0].Action)
		assert.Equal(t, model.ResourcePermissionSetting, log.list[0].ResourceType)
		assert.False(t, log.list[0].Failed)
		assert.Equal(t, invalidations{model.RoleHygienists}, *inv)
		repo.AssertExpectations(t)
	})

	t.Run("non-admin is denied and the attempt recorded", func(t *testing.T) {
		repo := new(mockPermissionRepo)
		log := &entries{}
		inv := &invalidations{}
		svc := NewService(repo, profiles, audit.NewActivityLogger(log), inv)

		_, err := svc.UpdateSetting(ctx, hygienist, settingID, model.PermissionSettingPatch{Scope: &scope})
		assert.ErrorIs(t, err, ErrNotAdmin)
		require.Len(t, log.list, 1)
		assert.True(t, log.list[0].Failed)
		assert.Empty(t, *inv)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("store failure is recorded and nothing is invalidated", func(t *testing.T) {
		repo := new(mockPermissionRepo)
		repo.On("Get", mock.Anything, settingID).Return(current, nil)
		repo.On("Update", mock.Anything, mock.Anything).Return(errors.New("deadlock"))
		log := &entries{}
		inv := &invalidations{}
		svc := NewService(repo, profiles, audit.NewActivityLogger(log), inv)

		_, err := svc.UpdateSetting(ctx, admin, settingID, model.PermissionSettingPatch{Scope: &scope})
		assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
		require.Len(t, log.list, 1)
		assert.Equal(t, "deadlock", log.list[0].ErrorMessage)
		assert.Empty(t, *inv)
	})

	t.Run("unknown setting", func(t *testing.T) {
		repo := new(mockPermissionRepo)
		repo.On("Get", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
		svc := NewService(repo, profiles, audit.NewActivityLogger(&entries{}), &invalidations{})

		_, err := svc.UpdateSetting(ctx, admin, uuid.New(), model.PermissionSettingPatch{Scope: &scope})
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("invalid patches", func(t *testing.T) {
		svc := NewService(new(mockPermissionRepo), profiles, audit.NewActivityLogger(&entries{}), &invalidations{})
		bad := model.Scope("department")

		_, err := svc.UpdateSetting(ctx, admin, settingID, model.PermissionSettingPatch{})
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

		_, err = svc.UpdateSetting(ctx, admin, settingID, model.PermissionSettingPatch{Scope: &bad})
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
		assert.ErrorIs(t, err, model.ErrInvalidScope)
	})
}
