package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRole           = errors.New("invalid role")
	ErrInvalidPermissionType = errors.New("invalid permission type")
	ErrInvalidScope          = errors.New("invalid scope")
)

// PermissionType is the category of task action being gated.
type PermissionType string

const (
	PermissionEditTasks   PermissionType = "edit_tasks"
	PermissionDeleteTasks PermissionType = "delete_tasks"
	PermissionViewTasks   PermissionType = "view_tasks"
	PermissionAssignTasks PermissionType = "assign_tasks"
)

var PermissionTypes = []PermissionType{
	PermissionEditTasks,
	PermissionDeleteTasks,
	PermissionViewTasks,
	PermissionAssignTasks,
}

func (p PermissionType) Valid() bool {
	switch p {
	case PermissionEditTasks, PermissionDeleteTasks, PermissionViewTasks, PermissionAssignTasks:
		return true
	}
	return false
}

func (p PermissionType) String() string {
	return string(p)
}

func ParsePermissionType(s string) (PermissionType, error) {
	p := PermissionType(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPermissionType, s)
	}
	return p, nil
}

// Scope is the breadth of tasks a role's permission reaches.
type Scope string

const (
	ScopeOwn        Scope = "own"
	ScopeSameRole   Scope = "same_role"
	ScopeSameGroup  Scope = "same_group"
	ScopeLowerRoles Scope = "lower_roles"
	ScopeAll        Scope = "all"
)

var Scopes = []Scope{ScopeOwn, ScopeSameRole, ScopeSameGroup, ScopeLowerRoles, ScopeAll}

func (s Scope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeSameRole, ScopeSameGroup, ScopeLowerRoles, ScopeAll:
		return true
	}
	return false
}

func (s Scope) String() string {
	return string(s)
}

func ParseScope(s string) (Scope, error) {
	sc := Scope(s)
	if !sc.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
	return sc, nil
}

// PermissionSetting configures one (role, permission type) pair. Rows are
// seeded and only ever updated; disabling replaces deletion.
type PermissionSetting struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Role           Role           `db:"role" json:"role"`
	PermissionType PermissionType `db:"permission_type" json:"permission_type"`
	Scope          Scope          `db:"scope" json:"scope"`
	Enabled        bool           `db:"enabled" json:"enabled"`
	UpdatedBy      *uuid.UUID     `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// PermissionSettingPatch carries the admin console's editable fields.
type PermissionSettingPatch struct {
	Scope   *Scope `json:"scope" binding:"omitempty,scope"`
	Enabled *bool  `json:"enabled"`
}

func (p PermissionSettingPatch) Empty() bool {
	return p.Scope == nil && p.Enabled == nil
}

// Apply returns a copy of s with the patch applied.
func (p PermissionSettingPatch) Apply(s PermissionSetting) PermissionSetting {
	if p.Scope != nil {
		s.Scope = *p.Scope
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	return s
}
