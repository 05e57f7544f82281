package model

import (
	"time"

	"github.com/google/uuid"
)

// Action is the audited verb.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionView         Action = "view"
	ActionLogin        Action = "login"
	ActionAssign       Action = "assign"
	ActionStatusChange Action = "status_change"
	ActionRoleChange   Action = "role_change"
)

var Actions = []Action{
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionView,
	ActionLogin,
	ActionAssign,
	ActionStatusChange,
	ActionRoleChange,
}

func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// ResourceType is the kind of thing an audit entry is about.
type ResourceType string

const (
	ResourceTask              ResourceType = "task"
	ResourceComment           ResourceType = "comment"
	ResourceAuth              ResourceType = "auth"
	ResourcePermissionSetting ResourceType = "permission_setting"
	ResourceUser              ResourceType = "user"
)

var ResourceTypes = []ResourceType{
	ResourceTask,
	ResourceComment,
	ResourceAuth,
	ResourcePermissionSetting,
	ResourceUser,
}

func (r ResourceType) Valid() bool {
	for _, v := range ResourceTypes {
		if v == r {
			return true
		}
	}
	return false
}

// ActivityLogEntry is one immutable audit record.
type ActivityLogEntry struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	UserID        uuid.UUID    `json:"user_id" db:"user_id"`
	UserName      *string      `json:"user_name,omitempty" db:"user_name"`
	UserRole      *Role        `json:"user_role,omitempty" db:"user_role"`
	Action        Action       `json:"action" db:"action"`
	ResourceType  ResourceType `json:"resource_type" db:"resource_type"`
	ResourceID    *uuid.UUID   `json:"resource_id,omitempty" db:"resource_id"`
	ResourceTitle *string      `json:"resource_title,omitempty" db:"resource_title"`
	OldData       JSONB        `json:"old_data" db:"old_data"`
	NewData       JSONB        `json:"new_data" db:"new_data"`
	IPAddress     *string      `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string      `json:"user_agent,omitempty" db:"user_agent"`
	Success       bool         `json:"success" db:"success"`
	ErrorMessage  *string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// ActivityLogFilter narrows the audit log viewer. Zero values mean "any".
type ActivityLogFilter struct {
	Action       Action       `form:"action"`
	ResourceType ResourceType `form:"resource_type"`
	UserID       *uuid.UUID   `form:"-"`
	Success      *bool        `form:"-"`
	From         *time.Time   `form:"-"`
	To           *time.Time   `form:"-"`
	Pagination
}

type ActivityStats struct {
	TotalLogs     int64                  `json:"total_logs"`
	Succeeded     int64                  `json:"succeeded"`
	Failed        int64                  `json:"failed"`
	ActionCounts  map[Action]int64       `json:"action_counts"`
	ResourceCount map[ResourceType]int64 `json:"resource_counts"`
	UniqueUsers   int64                  `json:"unique_users"`
}
