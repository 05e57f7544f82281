package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/taskdesk-api/internal/config"
	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/pkg/circuitbreaker"
	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonAllowed Reason = "allowed"
	// ReasonNoSetting: the role has no setting for the permission type.
	ReasonNoSetting Reason = "no_setting"
	// ReasonDisabled: the setting exists with enabled=false.
	ReasonDisabled      Reason = "disabled"
	ReasonScopeMismatch Reason = "scope_mismatch"
	ReasonInactive      Reason = "inactive"
	ReasonLookupFailed  Reason = "lookup_failed"
	// ReasonDenied is reported by the remote procedure, which does not say why.
	ReasonDenied Reason = "denied"
)

// Decision is the outcome of one permission check.
type Decision struct {
	Allowed bool        `json:"allowed"`
	Reason  Reason      `json:"reason"`
	Scope   model.Scope `json:"scope,omitempty"`
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Check is one item of a batched evaluation.
type Check struct {
	PermissionType model.PermissionType `json:"permission_type" binding:"required,permission_type"`
	TargetID       *uuid.UUID           `json:"target_id"`
}

type SettingsStore interface {
	ListByRole(ctx context.Context, role model.Role) ([]*model.PermissionSetting, error)
	CheckUserPermission(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (bool, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GroupIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type OwnershipStore interface {
	Ownership(ctx context.Context, taskID uuid.UUID) (*model.TaskOwnership, error)
}

// Evaluator decides whether an actor may perform a permission type,
// optionally on a specific task. It fails closed: every data failure is a
// denial, never an error.
type Evaluator struct {
	settings SettingsStore
	profiles ProfileStore
	tasks    OwnershipStore
	cache    *SettingsCache
	mode     string
	metrics  *metrics.Metrics
	logger   *logger.Logger
	// guards the check_user_permission round trip in remote mode
	breaker  *circuitbreaker.CircuitBreaker
}

func NewEvaluator(
	settings SettingsStore,
	profiles ProfileStore,
	tasks OwnershipStore,
	cache *SettingsCache,
	mode string,
	m *metrics.Metrics,
	log *logger.Logger,
) *Evaluator {
	if mode == "" {
		mode = config.PermissionModeLocal
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("permission")
	return &Evaluator{
		settings: settings,
		profiles: profiles,
		tasks:    tasks,
		cache:    cache,
		mode:     mode,
		metrics:  m,
		logger:   log,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:     "permission-rpc",
			Interval: time.Minute,
			Timeout:  10 * time.Second,
		}, &log.ZL),
	}
}

// Evaluate reports whether actorID may perform permType, on target when one
// is given. The error is non-nil only for an unknown permission type.
func (e *Evaluator) Evaluate(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (bool, error) {
	d, err := e.Decide(ctx, actorID, permType, target)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Decide is Evaluate with the reason attached.
func (e *Evaluator) Decide(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (Decision, error) {
	if !permType.Valid() {
		return deny(ReasonLookupFailed), fmt.Errorf("%w: %q", model.ErrInvalidPermissionType, permType)
	}

	start := time.Now()
	var d Decision
	if e.mode == config.PermissionModeRemote {
		d = e.decideRemote(ctx, actorID, permType, target)
	} else {
		d = e.decideLocal(ctx, actorID, permType, target)
	}

	e.metrics.PermissionLatency.WithLabelValues(e.mode).Observe(time.Since(start).Seconds())
	e.metrics.PermissionDecisions.WithLabelValues(string(permType), e.mode, string(d.Reason)).Inc()

	ev := e.logger.ZL.Debug()
	if d.Reason == ReasonLookupFailed {
		ev = e.logger.ZL.Warn()
	}
	ev.Str("actor_id", actorID.String()).
		Str("permission_type", string(permType)).
		Bool("allowed", d.Allowed).
		Str("reason", string(d.Reason)).
		Interface("target_id", target).
		Msg("permission decision")

	return d, nil
}

func (e *Evaluator) decideRemote(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) Decision {
	if actorID == uuid.Nil {
		return deny(ReasonLookupFailed)
	}
	var allowed bool
	err := e.breaker.Execute(func() (err error) {
		allowed, err = e.settings.CheckUserPermission(ctx, actorID, permType, target)
		return err
	})
	if err != nil {
		e.logger.Error(err, "remote permission check failed", "actor_id", actorID.String())
		return deny(ReasonLookupFailed)
	}
	if !allowed {
		return deny(ReasonDenied)
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func (e *Evaluator) decideLocal(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) Decision {
	if actorID == uuid.Nil {
		return deny(ReasonLookupFailed)
	}

	profile, err := e.profiles.Get(ctx, actorID)
	if err != nil {
		e.logger.Error(err, "failed to resolve actor", "actor_id", actorID.String())
		return deny(ReasonLookupFailed)
	}
	if !profile.Active {
		return deny(ReasonInactive)
	}

	settings, err := e.roleSettings(ctx, profile.Role)
	if err != nil {
		e.logger.Error(err, "failed to load permission settings", "role", string(profile.Role))
		return deny(ReasonLookupFailed)
	}

	setting, ok := settings[permType]
	if !ok {
		return deny(ReasonNoSetting)
	}
	if !setting.Enabled {
		return Decision{Reason: ReasonDisabled, Scope: setting.Scope}
	}

	// coarse check
	if target == nil {
		return Decision{Allowed: true, Reason: ReasonAllowed, Scope: setting.Scope}
	}

	ownership, err := e.tasks.Ownership(ctx, *target)
	if err != nil {
		e.logger.Error(err, "failed to resolve target", "target_id", target.String())
		return Decision{Reason: ReasonLookupFailed, Scope: setting.Scope}
	}

	subject := Subject{ID: profile.ID, Role: profile.Role}
	if setting.Scope == model.ScopeSameGroup {
		subject.Groups, err = e.profiles.GroupIDs(ctx, actorID)
		if err != nil {
			e.logger.Error(err, "failed to resolve actor groups", "actor_id", actorID.String())
			return Decision{Reason: ReasonLookupFailed, Scope: setting.Scope}
		}
	}

	tgt := Target{
		OwnerID:   ownership.OwnerID,
		OwnerRole: ownership.OwnerRole,
		Groups:    ownership.GroupIDs,
	}
	if !Allows(setting.Scope, subject, tgt) {
		return Decision{Reason: ReasonScopeMismatch, Scope: setting.Scope}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Scope: setting.Scope}
}

// EvaluateMany runs independent checks concurrently and returns one result
// per check, in order. Invalid checks deny.
func (e *Evaluator) EvaluateMany(ctx context.Context, actorID uuid.UUID, checks []Check) []bool {
	results := make([]bool, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			allowed, err := e.Evaluate(ctx, actorID, c.PermissionType, c.TargetID)
			if err != nil {
				e.logger.Warn("rejected batched check", "index", i, "error", err.Error())
				return nil
			}
			results[i] = allowed
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RolePermissions returns the settings configured for the actor's role.
func (e *Evaluator) RolePermissions(ctx context.Context, actorID uuid.UUID) ([]model.PermissionSetting, error) {
	profile, err := e.profiles.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor: %w", err)
	}
	settings, err := e.roleSettings(ctx, profile.Role)
	if err != nil {
		return nil, err
	}
	return settings.List(), nil
}

func (e *Evaluator) roleSettings(ctx context.Context, role model.Role) (RoleSettings, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidRole, role)
	}
	if rs, ok := e.cache.Get(role); ok {
		return rs, nil
	}
	gen := e.cache.Generation(role)
	settings, err := e.settings.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	rs := newRoleSettings(settings)
	e.cache.Set(role, rs, gen)
	return rs, nil
}

// IsInvalidInput reports whether err is caller misuse rather than a failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, model.ErrInvalidPermissionType) ||
		errors.Is(err, model.ErrInvalidScope) ||
		errors.Is(err, model.ErrInvalidRole)
}
