package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
)

// ErrNotAdmin is returned when a console operation is attempted by a
// non-administrator.
var ErrNotAdmin = apperrors.Forbidden("administrator role required")

type ProfileLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

// RequireAdmin resolves the actor and fails unless it is an active
// administrator. Lookup failures deny.
func RequireAdmin(ctx context.Context, profiles ProfileLookup, actorID uuid.UUID) (*model.Profile, error) {
	if actorID == uuid.Nil {
		return nil, ErrNotAdmin
	}
	profile, err := profiles.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotAdmin
		}
		return nil, apperrors.Failed("could not verify administrator", err)
	}
	if !profile.Active || !profile.Role.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return profile, nil
}
