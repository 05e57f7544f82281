package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	"github.com/jwalitptl/taskdesk-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
)

// Service covers the users console and the recipient pickers.
type Service struct {
	profiles repository.ProfileRepository
	groups   repository.GroupRepository
	activity *audit.ActivityLogger
}

func NewService(profiles repository.ProfileRepository, groups repository.GroupRepository, activity *audit.ActivityLogger) *Service {
	return &Service{
		profiles: profiles,
		groups:   groups,
		activity: activity,
	}
}

// ListUsers is the admin view, optionally limited to active users.
func (s *Service) ListUsers(ctx context.Context, actorID uuid.UUID, filter model.UserFilter) ([]*model.Profile, error) {
	if _, err := rbac.RequireAdmin(ctx, s.profiles, actorID); err != nil {
		return nil, err
	}
	users, err := s.profiles.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Failed("could not load users", err)
	}
	return users, nil
}

// Directory lists active users for recipient pickers.
func (s *Service) Directory(ctx context.Context) ([]*model.Profile, error) {
	users, err := s.profiles.List(ctx, model.UserFilter{ActiveOnly: true})
	if err != nil {
		return nil, apperrors.Failed("could not load users", err)
	}
	return users, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]*model.Group, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, apperrors.Failed("could not load groups", err)
	}
	return groups, nil
}

func (s *Service) target(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, apperrors.Failed("could not load user", err)
	}
	return profile, nil
}

// ChangeRole assigns role to userID. Only administrators may do this.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID uuid.UUID, role model.Role) (*model.Profile, error) {
	if !role.Valid() {
		return nil, apperrors.BadRequest("invalid role", fmt.Errorf("%w: %q", model.ErrInvalidRole, role))
	}

	profile, err := s.target(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := rbac.RequireAdmin(ctx, s.profiles, actorID); err != nil {
		s.activity.UserRoleChanged(ctx, userID, profile.FullName, profile.Role, role, err)
		return nil, err
	}

	err = s.profiles.UpdateRole(ctx, userID, role)
	s.activity.UserRoleChanged(ctx, userID, profile.FullName, profile.Role, role, err)
	if err != nil {
		return nil, apperrors.Failed("could not change role", err)
	}

	profile.Role = role
	return profile, nil
}

// SetActive enables or disables userID. Administrators cannot disable
// themselves.
func (s *Service) SetActive(ctx context.Context, actorID, userID uuid.UUID, active bool) (*model.Profile, error) {
	profile, err := s.target(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := rbac.RequireAdmin(ctx, s.profiles, actorID); err != nil {
		s.activity.UserStatusChanged(ctx, userID, profile.FullName, profile.Active, active, err)
		return nil, err
	}
	if actorID == userID && !active {
		return nil, apperrors.Conflict("administrators cannot disable themselves")
	}

	err = s.profiles.SetActive(ctx, userID, active)
	s.activity.UserStatusChanged(ctx, userID, profile.FullName, profile.Active, active, err)
	if err != nil {
		return nil, apperrors.Failed("could not update user", err)
	}

	profile.Active = active
	return profile, nil
}

// TouchLastSeen records activity for userID. Failures are not the caller's
// concern.
func (s *Service) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	return s.profiles.TouchLastSeen(ctx, userID, time.Now().UTC())
}
