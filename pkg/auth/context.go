package auth

import (
	"context"

	"github.com/google/uuid"
)

type actorKey struct{}

// WithActor stores the authenticated actor id on ctx.
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor id stored by WithActor.
func ActorFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
