package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	PermissionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.PermissionSetting, error)
		// GetByRoleAndType returns ErrNotFound when the pair was never seeded.
		GetByRoleAndType(ctx context.Context, role model.Role, permType model.PermissionType) (*model.PermissionSetting, error)
		ListByRole(ctx context.Context, role model.Role) ([]*model.PermissionSetting, error)
		ListAll(ctx context.Context) ([]*model.PermissionSetting, error)
		Update(ctx context.Context, setting *model.PermissionSetting) error
		// CheckUserPermission delegates the whole decision to the
		// check_user_permission procedure.
		CheckUserPermission(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (bool, error)
	}

	ProfileRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
		List(ctx context.Context, filter model.UserFilter) ([]*model.Profile, error)
		UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
		TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
		GroupIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	}

	GroupRepository interface {
		List(ctx context.Context) ([]*model.Group, error)
	}

	TaskRepository interface {
		Create(ctx context.Context, task *model.Task, recipients model.Recipients) error
		Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
		Update(ctx context.Context, task *model.Task) error
		SetStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus, doneAt *time.Time) error
		Delete(ctx context.Context, id uuid.UUID) error
		ListVisible(ctx context.Context, userID uuid.UUID, filter model.TaskFilter) ([]*model.Task, int64, error)

		Recipients(ctx context.Context, taskID uuid.UUID) (model.Recipients, error)
		ReplaceRecipients(ctx context.Context, taskID uuid.UUID, recipients model.Recipients) error
		// Ownership resolves the owner, the owner's role and the task's group
		// set (owner groups plus addressed groups).
		Ownership(ctx context.Context, taskID uuid.UUID) (*model.TaskOwnership, error)

		AddComment(ctx context.Context, comment *model.Comment) error
		GetComment(ctx context.Context, taskID, commentID uuid.UUID) (*model.Comment, error)
		DeleteComment(ctx context.Context, commentID uuid.UUID) error

		MarkRead(ctx context.Context, taskID, userID uuid.UUID, at time.Time) error
		ListReads(ctx context.Context, taskID uuid.UUID) ([]*model.TaskRead, error)
	}

	ActivityLogRepository interface {
		// Create appends the entry and returns the stored id. Entries are
		// never updated.
		Create(ctx context.Context, entry *model.ActivityLogEntry) (uuid.UUID, error)
		List(ctx context.Context, filter model.ActivityLogFilter) ([]*model.ActivityLogEntry, int64, error)
		Stats(ctx context.Context, filter model.ActivityLogFilter) (*model.ActivityStats, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
