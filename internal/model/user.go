package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-side view of an identity-provider user.
type Profile struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	FullName   string     `json:"full_name" db:"full_name"`
	Role       Role       `json:"role" db:"role"`
	Active     bool       `json:"active" db:"active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type Group struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// UserFilter represents user search parameters
type UserFilter struct {
	ActiveOnly bool `json:"active_only" form:"active_only"`
}

type ChangeRoleRequest struct {
	Role Role `json:"role" binding:"required,role"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}
