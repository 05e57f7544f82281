package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

const permissionSettingsTitle = "Permission settings"

// Recorder is what the typed wrappers write through.
type Recorder interface {
	Record(ctx context.Context, e Entry) *uuid.UUID
}

// ActivityLogger maps each domain event onto a fixed (action, resource type)
// pair. The trailing error on every method is the outcome of the audited
// action: nil records a success, anything else a failure with its message.
type ActivityLogger struct {
	recorder Recorder
}

func NewActivityLogger(recorder Recorder) *ActivityLogger {
	return &ActivityLogger{recorder: recorder}
}

func (l *ActivityLogger) record(ctx context.Context, e Entry, outcome error) *uuid.UUID {
	if outcome != nil {
		e.Failed = true
		e.ErrorMessage = outcome.Error()
	}
	return l.recorder.Record(ctx, e)
}

func (l *ActivityLogger) TaskCreated(ctx context.Context, taskID uuid.UUID, title string, data interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionCreate,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
		NewData:       data,
	}, outcome)
}

func (l *ActivityLogger) TaskUpdated(ctx context.Context, taskID uuid.UUID, title string, oldData, newData interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionUpdate,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
		OldData:       oldData,
		NewData:       newData,
	}, outcome)
}

func (l *ActivityLogger) TaskDeleted(ctx context.Context, taskID uuid.UUID, title string, data interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionDelete,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
		OldData:       data,
	}, outcome)
}

func (l *ActivityLogger) TaskStatusChanged(ctx context.Context, taskID uuid.UUID, title string, oldStatus, newStatus model.TaskStatus, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionStatusChange,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
		OldData:       model.JSONMap{"status": oldStatus},
		NewData:       model.JSONMap{"status": newStatus},
	}, outcome)
}

func (l *ActivityLogger) TaskAssigned(ctx context.Context, taskID uuid.UUID, title string, assignments interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionAssign,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
		NewData:       assignments,
	}, outcome)
}

func (l *ActivityLogger) TaskViewed(ctx context.Context, taskID uuid.UUID, title string) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionView,
		ResourceType:  model.ResourceTask,
		ResourceID:    &taskID,
		ResourceTitle: title,
	}, nil)
}

func (l *ActivityLogger) CommentAdded(ctx context.Context, commentID uuid.UUID, taskTitle string, data interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionCreate,
		ResourceType:  model.ResourceComment,
		ResourceID:    &commentID,
		ResourceTitle: "Comment on: " + taskTitle,
		NewData:       data,
	}, outcome)
}

func (l *ActivityLogger) CommentDeleted(ctx context.Context, commentID uuid.UUID, taskTitle string, data interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionDelete,
		ResourceType:  model.ResourceComment,
		ResourceID:    &commentID,
		ResourceTitle: "Comment on: " + taskTitle,
		OldData:       data,
	}, outcome)
}

// LoginAttempted records a sign-in reported by the client; outcome carries
// the identity provider's error on failure.
func (l *ActivityLogger) LoginAttempted(ctx context.Context, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:       model.ActionLogin,
		ResourceType: model.ResourceAuth,
	}, outcome)
}

func (l *ActivityLogger) PermissionChanged(ctx context.Context, settingID uuid.UUID, oldData, newData interface{}, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionUpdate,
		ResourceType:  model.ResourcePermissionSetting,
		ResourceID:    &settingID,
		ResourceTitle: permissionSettingsTitle,
		OldData:       oldData,
		NewData:       newData,
	}, outcome)
}

func (l *ActivityLogger) UserRoleChanged(ctx context.Context, userID uuid.UUID, userName string, oldRole, newRole model.Role, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionRoleChange,
		ResourceType:  model.ResourceUser,
		ResourceID:    &userID,
		ResourceTitle: userName,
		OldData:       model.JSONMap{"role": oldRole},
		NewData:       model.JSONMap{"role": newRole},
	}, outcome)
}

func (l *ActivityLogger) UserStatusChanged(ctx context.Context, userID uuid.UUID, userName string, oldActive, newActive bool, outcome error) *uuid.UUID {
	return l.record(ctx, Entry{
		Action:        model.ActionUpdate,
		ResourceType:  model.ResourceUser,
		ResourceID:    &userID,
		ResourceTitle: userName,
		OldData:       model.JSONMap{"active": oldActive},
		NewData:       model.JSONMap{"active": newActive},
	}, outcome)
}
