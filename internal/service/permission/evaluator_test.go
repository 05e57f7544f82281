package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/taskdesk-api/internal/config"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*model.Profile
	groups    map[uuid.UUID][]uuid.UUID
	settings  map[model.Role][]*model.PermissionSetting
	tasks     map[uuid.UUID]*model.TaskOwnership
	listCalls int
	calls     int

	settingsErr error
	groupsErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[uuid.UUID]*model.Profile{},
		groups:   map[uuid.UUID][]uuid.UUID{},
		settings: map[model.Role][]*model.PermissionSetting{},
		tasks:    map[uuid.UUID]*model.TaskOwnership{},
	}
}

func (f *fakeStore) addUser(role model.Role, groups ...uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.profiles[id] = &model.Profile{ID: id, FullName: string(role) + " user", Role: role, Active: true}
	f.groups[id] = groups
	return id
}

func (f *fakeStore) addTask(owner uuid.UUID, recipientGroups ...uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	groups := append([]uuid.UUID{}, f.groups[owner]...)
	groups = append(groups, recipientGroups...)
	f.tasks[id] = &model.TaskOwnership{TaskID: id, OwnerID: owner, OwnerRole: f.profiles[owner].Role, GroupIDs: groups}
	return id
}

func (f *fakeStore) setSetting(role model.Role, pt model.PermissionType, scope model.Scope, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[role] = append(f.settings[role], &model.PermissionSetting{
		ID: uuid.New(), Role: role, PermissionType: pt, Scope: scope, Enabled: enabled,
	})
}

func (f *fakeStore) ListByRole(_ context.Context, role model.Role) ([]*model.PermissionSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.listCalls++
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	return f.settings[role], nil
}

func (f *fakeStore) CheckUserPermission(context.Context, uuid.UUID, model.PermissionType, *uuid.UUID) (bool, error) {
	return false, errors.New("not used in local mode")
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GroupIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups[id], nil
}

func (f *fakeStore) Ownership(_ context.Context, id uuid.UUID) (*model.TaskOwnership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	o, ok := f.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newLocalEvaluator(store *fakeStore) *Evaluator {
	return NewEvaluator(store, store, store, NewSettingsCache(time.Minute), config.PermissionModeLocal, nil, nil)
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestEvaluateWithoutSettingDenies(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newLocalEvaluator(store)

	for _, role := range model.Roles {
		actor := store.addUser(role)
		task := store.addTask(actor)
		for _, pt := range model.PermissionTypes {
			allowed, err := e.Evaluate(ctx, actor, pt, nil)
			require.NoError(t, err)
			assert.False(t, allowed, "%s/%s coarse", role, pt)

			d, err := e.Decide(ctx, actor, pt, ptr(task))
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonNoSetting, d.Reason)
		}
	}
}

func TestEvaluateDisabledSettingDenies(t *testing.T) {
	ctx := context.Background()

	for _, scope := range model.Scopes {
		store := newFakeStore()
		store.setSetting(model.RoleDoctors, model.PermissionEditTasks, scope, false)
		e := newLocalEvaluator(store)

		actor := store.addUser(model.RoleDoctors)
		own := store.addTask(actor)

		d, err := e.Decide(ctx, actor, model.PermissionEditTasks, nil)
		require.NoError(t, err)
		assert.False(t, d.Allowed, scope)
		assert.Equal(t, ReasonDisabled, d.Reason)

		d, err = e.Decide(ctx, actor, model.PermissionEditTasks, ptr(own))
		require.NoError(t, err)
		assert.False(t, d.Allowed, scope)
		assert.Equal(t, ReasonDisabled, d.Reason)
	}
}

func TestEvaluateCoarseCheckAllowsWhenEnabled(t *testing.T) {
	store := newFakeStore()
	store.setSetting(model.RoleHygienists, model.PermissionViewTasks, model.ScopeOwn, true)
	e := newLocalEvaluator(store)
	actor := store.addUser(model.RoleHygienists)

	allowed, err := e.Evaluate(context.Background(), actor, model.PermissionViewTasks, nil)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEvaluateScopes(t *testing.T) {
	ctx := context.Background()
	front, surgery := uuid.New(), uuid.New()

	store := newFakeStore()
	store.setSetting(model.RoleReceptionist, model.PermissionDeleteTasks, model.ScopeOwn, true)
	store.setSetting(model.RoleAdministrator, model.PermissionEditTasks, model.ScopeAll, true)
	store.setSetting(model.RoleDoctors, model.PermissionEditTasks, model.ScopeLowerRoles, true)
	store.setSetting(model.RoleHygienists, model.PermissionEditTasks, model.ScopeSameGroup, true)
	store.setSetting(model.RoleAssistants, model.PermissionEditTasks, model.ScopeSameRole, true)
	e := newLocalEvaluator(store)

	r1 := store.addUser(model.RoleReceptionist, front)
	r2 := store.addUser(model.RoleReceptionist, front)
	admin := store.addUser(model.RoleAdministrator)
	doctor := store.addUser(model.RoleDoctors, surgery)
	otherDoctor := store.addUser(model.RoleDoctors, surgery)
	consultant := store.addUser(model.RoleConsultants)
	hygienist := store.addUser(model.RoleHygienists, surgery)
	assistant := store.addUser(model.RoleAssistants)
	otherAssistant := store.addUser(model.RoleAssistants)

	t1 := store.addTask(r1)
	doctorTask := store.addTask(otherDoctor)
	consultantTask := store.addTask(consultant)
	addressedToSurgery := store.addTask(r2, surgery)
	assistantTask := store.addTask(otherAssistant)

	check := func(actor uuid.UUID, pt model.PermissionType, task uuid.UUID) bool {
		allowed, err := e.Evaluate(ctx, actor, pt, ptr(task))
		require.NoError(t, err)
		return allowed
	}

	t.Run("receptionist deletes only own task", func(t *testing.T) {
		assert.True(t, check(r1, model.PermissionDeleteTasks, t1))
		assert.False(t, check(r2, model.PermissionDeleteTasks, t1))
	})

	t.Run("administrator edits every task", func(t *testing.T) {
		for _, task := range []uuid.UUID{t1, doctorTask, consultantTask, addressedToSurgery, assistantTask} {
			assert.True(t, check(admin, model.PermissionEditTasks, task))
		}
	})

	t.Run("lower_roles", func(t *testing.T) {
		assert.True(t, check(doctor, model.PermissionEditTasks, t1))
		assert.True(t, check(doctor, model.PermissionEditTasks, assistantTask))
		assert.False(t, check(doctor, model.PermissionEditTasks, doctorTask))
		assert.False(t, check(doctor, model.PermissionEditTasks, consultantTask))
	})

	t.Run("same_group via owner or recipients", func(t *testing.T) {
		assert.True(t, check(hygienist, model.PermissionEditTasks, doctorTask))
		assert.True(t, check(hygienist, model.PermissionEditTasks, addressedToSurgery))
		assert.False(t, check(hygienist, model.PermissionEditTasks, t1))
	})

	t.Run("same_role", func(t *testing.T) {
		assert.True(t, check(assistant, model.PermissionEditTasks, assistantTask))
		assert.False(t, check(assistant, model.PermissionEditTasks, t1))
	})
}

func TestEvaluateUnknownResourceDenies(t *testing.T) {
	store := newFakeStore()
	store.setSetting(model.RoleAdministrator, model.PermissionEditTasks, model.ScopeAll, true)
	e := newLocalEvaluator(store)
	admin := store.addUser(model.RoleAdministrator)

	d, err := e.Decide(context.Background(), admin, model.PermissionEditTasks, ptr(uuid.New()))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLookupFailed, d.Reason)
}

func TestEvaluateFailsClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown actor", func(t *testing.T) {
		e := newLocalEvaluator(newFakeStore())
		allowed, err := e.Evaluate(ctx, uuid.New(), model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("nil actor", func(t *testing.T) {
		e := newLocalEvaluator(newFakeStore())
		allowed, err := e.Evaluate(ctx, uuid.Nil, model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("settings store failure", func(t *testing.T) {
		store := newFakeStore()
		store.setSetting(model.RoleDoctors, model.PermissionViewTasks, model.ScopeAll, true)
		store.settingsErr = errors.New("connection reset")
		actor := store.addUser(model.RoleDoctors)

		d, err := newLocalEvaluator(store).Decide(ctx, actor, model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonLookupFailed, d.Reason)
	})

	t.Run("group lookup failure", func(t *testing.T) {
		store := newFakeStore()
		store.setSetting(model.RoleDoctors, model.PermissionEditTasks, model.ScopeSameGroup, true)
		g := uuid.New()
		actor := store.addUser(model.RoleDoctors, g)
		task := store.addTask(actor)
		store.groupsErr = errors.New("timeout")

		allowed, err := newLocalEvaluator(store).Evaluate(ctx, actor, model.PermissionEditTasks, ptr(task))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("inactive actor", func(t *testing.T) {
		store := newFakeStore()
		store.setSetting(model.RoleDoctors, model.PermissionViewTasks, model.ScopeAll, true)
		actor := store.addUser(model.RoleDoctors)
		store.profiles[actor].Active = false

		d, err := newLocalEvaluator(store).Decide(ctx, actor, model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonInactive, d.Reason)
	})
}

func TestEvaluateRejectsUnknownPermissionTypeBeforeStoreAccess(t *testing.T) {
	store := newFakeStore()
	e := newLocalEvaluator(store)

	allowed, err := e.Evaluate(context.Background(), uuid.New(), model.PermissionType("fly_tasks"), nil)
	assert.False(t, allowed)
	assert.ErrorIs(t, err, model.ErrInvalidPermissionType)
	assert.True(t, IsInvalidInput(err))
	assert.Zero(t, store.callCount())
}

func TestSettingsAreCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.setSetting(model.RoleDoctors, model.PermissionViewTasks, model.ScopeAll, true)
	cache := NewSettingsCache(time.Minute)
	e := NewEvaluator(store, store, store, cache, config.PermissionModeLocal, nil, nil)
	actor := store.addUser(model.RoleDoctors)

	for i := 0; i < 3; i++ {
		allowed, err := e.Evaluate(ctx, actor, model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.Equal(t, 1, store.listCalls)

	store.settings[model.RoleDoctors][0].Enabled = false
	cache.Invalidate(model.RoleDoctors)

	allowed, err := e.Evaluate(ctx, actor, model.PermissionViewTasks, nil)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, store.listCalls)
}

// blockingSettings hands out a snapshot of the settings and then holds the
// first load until released.
type blockingSettings struct {
	*fakeStore
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (b *blockingSettings) ListByRole(ctx context.Context, role model.Role) ([]*model.PermissionSetting, error) {
	settings, err := b.fakeStore.ListByRole(ctx, role)
	snapshot := make([]*model.PermissionSetting, 0, len(settings))
	for _, s := range settings {
		cp := *s
		snapshot = append(snapshot, &cp)
	}
	b.once.Do(func() {
		close(b.loaded)
		<-b.release
	})
	return snapshot, err
}

func TestInvalidationDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.setSetting(model.RoleDoctors, model.PermissionViewTasks, model.ScopeAll, true)
	actor := store.addUser(model.RoleDoctors)
	slow := &blockingSettings{fakeStore: store, loaded: make(chan struct{}), release: make(chan struct{})}
	cache := NewSettingsCache(time.Minute)
	e := NewEvaluator(slow, store, store, cache, config.PermissionModeLocal, nil, nil)

	first := make(chan bool, 1)
	go func() {
		allowed, _ := e.Evaluate(ctx, actor, model.PermissionViewTasks, nil)
		first <- allowed
	}()

	<-slow.loaded
	store.mu.Lock()
	store.settings[model.RoleDoctors][0].Enabled = false
	store.mu.Unlock()
	cache.Invalidate(model.RoleDoctors)
	close(slow.release)

	// the in-flight check answers from what it read
	assert.True(t, <-first)

	allowed, err := e.Evaluate(ctx, actor, model.PermissionViewTasks, nil)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, store.listCalls)
}

func TestEvaluateManyKeepsOrder(t *testing.T) {
	store := newFakeStore()
	store.setSetting(model.RoleReceptionist, model.PermissionEditTasks, model.ScopeOwn, true)
	store.setSetting(model.RoleReceptionist, model.PermissionDeleteTasks, model.ScopeOwn, true)
	store.setSetting(model.RoleReceptionist, model.PermissionAssignTasks, model.ScopeOwn, false)
	e := newLocalEvaluator(store)

	actor := store.addUser(model.RoleReceptionist)
	other := store.addUser(model.RoleReceptionist)
	mine := store.addTask(actor)
	theirs := store.addTask(other)

	got := e.EvaluateMany(context.Background(), actor, []Check{
		{PermissionType: model.PermissionEditTasks, TargetID: ptr(mine)},
		{PermissionType: model.PermissionDeleteTasks, TargetID: ptr(theirs)},
		{PermissionType: model.PermissionAssignTasks, TargetID: ptr(mine)},
		{PermissionType: model.PermissionType("bogus")},
		{PermissionType: model.PermissionDeleteTasks},
	})
	assert.Equal(t, []bool{true, false, false, false, true}, got)
}

func TestRolePermissions(t *testing.T) {
	store := newFakeStore()
	store.setSetting(model.RoleHygienists, model.PermissionViewTasks, model.ScopeAll, true)
	store.setSetting(model.RoleHygienists, model.PermissionEditTasks, model.ScopeOwn, false)
	store.setSetting(model.RoleDoctors, model.PermissionEditTasks, model.ScopeAll, true)
	e := newLocalEvaluator(store)
	actor := store.addUser(model.RoleHygienists)

	settings, err := e.RolePermissions(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, model.PermissionEditTasks, settings[0].PermissionType)
	assert.Equal(t, model.PermissionViewTasks, settings[1].PermissionType)

	_, err = e.RolePermissions(context.Background(), uuid.New())
	assert.Error(t, err)
}

type mockSettingsStore struct {
	mock.Mock
}

func (m *mockSettingsStore) ListByRole(ctx context.Context, role model.Role) ([]*model.PermissionSetting, error) {
	args := m.Called(ctx, role)
	settings, _ := args.Get(0).([]*model.PermissionSetting)
	return settings, args.Error(1)
}

func (m *mockSettingsStore) CheckUserPermission(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (bool, error) {
	args := m.Called(ctx, actorID, permType, target)
	return args.Bool(0), args.Error(1)
}

func TestRemoteMode(t *testing.T) {
	ctx := context.Background()
	actor := uuid.New()
	task := uuid.New()

	remote := new(mockSettingsStore)
	remote.On("CheckUserPermission", ctx, actor, model.PermissionEditTasks, ptr(task)).Return(true, nil).Once()
	remote.On("CheckUserPermission", ctx, actor, model.PermissionDeleteTasks, ptr(task)).Return(false, nil).Once()
	remote.On("CheckUserPermission", ctx, actor, model.PermissionViewTasks, (*uuid.UUID)(nil)).Return(true, errors.New("rpc failed")).Once()

	e := NewEvaluator(remote, newFakeStore(), newFakeStore(), NewSettingsCache(0), config.PermissionModeRemote, nil, nil)

	d, err := e.Decide(ctx, actor, model.PermissionEditTasks, ptr(task))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.Decide(ctx, actor, model.PermissionDeleteTasks, ptr(task))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDenied, d.Reason)

	d, err = e.Decide(ctx, actor, model.PermissionViewTasks, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "errors deny even if the result says otherwise")
	assert.Equal(t, ReasonLookupFailed, d.Reason)

	_, err = e.Decide(ctx, actor, model.PermissionType("x"), nil)
	assert.ErrorIs(t, err, model.ErrInvalidPermissionType)

	remote.AssertExpectations(t)
}

func TestRemoteModeStopsCallingAFailingProcedure(t *testing.T) {
	ctx := context.Background()
	actor := uuid.New()

	remote := new(mockSettingsStore)
	remote.On("CheckUserPermission", ctx, actor, model.PermissionViewTasks, (*uuid.UUID)(nil)).
		Return(false, errors.New("connection refused")).Times(5)

	e := NewEvaluator(remote, newFakeStore(), newFakeStore(), NewSettingsCache(0), config.PermissionModeRemote, nil, nil)

	for i := 0; i < 7; i++ {
		d, err := e.Decide(ctx, actor, model.PermissionViewTasks, nil)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonLookupFailed, d.Reason)
	}
	remote.AssertNumberOfCalls(t, "CheckUserPermission", 5)
}
