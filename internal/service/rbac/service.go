package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
)

// SettingsInvalidator is notified after a setting changes.
type SettingsInvalidator interface {
	SettingsChanged(ctx context.Context, role model.Role)
}

// Service is the admin console for permission settings.
type Service struct {
	repo        repository.PermissionRepository
	profiles    ProfileLookup
	activity    *audit.ActivityLogger
	invalidator SettingsInvalidator
}

func NewService(repo repository.PermissionRepository, profiles ProfileLookup, activity *audit.ActivityLogger, invalidator SettingsInvalidator) *Service {
	return &Service{
		repo:        repo,
		profiles:    profiles,
		activity:    activity,
		invalidator: invalidator,
	}
}

// ListSettings returns every setting ordered by role and permission type.
func (s *Service) ListSettings(ctx context.Context, actorID uuid.UUID) ([]*model.PermissionSetting, error) {
	if _, err := RequireAdmin(ctx, s.profiles, actorID); err != nil {
		return nil, err
	}
	settings, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Failed("could not load permission settings", err)
	}
	return settings, nil
}

// UpdateSetting applies patch to one setting. The attempt is audited
// whatever its outcome, and the role's cached settings are dropped on
// success.
func (s *Service) UpdateSetting(ctx context.Context, actorID, id uuid.UUID, patch model.PermissionSettingPatch) (*model.PermissionSetting, error) {
	if patch.Empty() {
		return nil, apperrors.BadRequest("nothing to update", nil)
	}
	if patch.Scope != nil && !patch.Scope.Valid() {
		return nil, apperrors.BadRequest("invalid scope", fmt.Errorf("%w: %q", model.ErrInvalidScope, *patch.Scope))
	}

	if _, err := RequireAdmin(ctx, s.profiles, actorID); err != nil {
		s.activity.PermissionChanged(ctx, id, nil, patch, err)
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("permission setting", err)
		}
		return nil, apperrors.Failed("could not load permission setting", err)
	}

	updated := patch.Apply(*current)
	updated.UpdatedBy = &actorID

	err = s.repo.Update(ctx, &updated)
	s.activity.PermissionChanged(ctx, id, current, updated, err)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("permission setting", err)
		}
		return nil, apperrors.Failed("could not save permission setting", err)
	}

	s.invalidator.SettingsChanged(ctx, updated.Role)
	return &updated, nil
}
