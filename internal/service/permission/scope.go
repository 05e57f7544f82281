package permission

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

// Subject is the actor a scope rule is evaluated for.
type Subject struct {
	ID     uuid.UUID
	Role   model.Role
	Groups []uuid.UUID
}

// Target is the resolved resource: its owner, the owner's role and the
// resource's group set.
type Target struct {
	OwnerID   uuid.UUID
	OwnerRole model.Role
	Groups    []uuid.UUID
}

// Allows applies scope to a resolved subject and target. Unknown scopes
// never allow.
func Allows(scope model.Scope, subject Subject, target Target) bool {
	switch scope {
	case model.ScopeOwn:
		return target.OwnerID == subject.ID
	case model.ScopeSameRole:
		return subject.Role.Valid() && target.OwnerRole == subject.Role
	case model.ScopeSameGroup:
		return intersects(subject.Groups, target.Groups)
	case model.ScopeLowerRoles:
		return target.OwnerRole.Valid() && subject.Role.Outranks(target.OwnerRole)
	case model.ScopeAll:
		return true
	default:
		return false
	}
}

func intersects(a, b []uuid.UUID) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}
