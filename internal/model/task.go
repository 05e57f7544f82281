package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo  TaskStatus = "todo"
	TaskStatusDoing TaskStatus = "doing"
	TaskStatusDone  TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusDoing, TaskStatusDone:
		return true
	}
	return false
}

// TaskListScope narrows a task listing to a slice of what the actor can see.
type TaskListScope string

const (
	// TaskScopeVisible is every task the actor can see.
	TaskScopeVisible TaskListScope = "visible"
	// TaskScopeMine is tasks addressed to the actor directly or through a group.
	TaskScopeMine    TaskListScope = "mine"
	TaskScopeCreated TaskListScope = "created"
)

type Task struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Body         *string    `json:"body,omitempty" db:"body"`
	Status       TaskStatus `json:"status" db:"status"`
	DueAt        *time.Time `json:"due_at,omitempty" db:"due_at"`
	DoneAt       *time.Time `json:"done_at,omitempty" db:"done_at"`
	VisibleToAll bool       `json:"visible_to_all" db:"visible_to_all"`
	CreatedBy    uuid.UUID  `json:"created_by" db:"created_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Snapshot is the audited shape of a task.
func (t *Task) Snapshot() JSONMap {
	return JSONMap{
		"title":          t.Title,
		"body":           t.Body,
		"status":         t.Status,
		"due_at":         t.DueAt,
		"visible_to_all": t.VisibleToAll,
	}
}

// TaskRecipient addresses a task to one user or one group.
type TaskRecipient struct {
	TaskID  uuid.UUID  `json:"task_id" db:"task_id"`
	UserID  *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	GroupID *uuid.UUID `json:"group_id,omitempty" db:"group_id"`
}

// Recipients is the assignment payload for a task.
type Recipients struct {
	UserIDs  []uuid.UUID `json:"user_ids"`
	GroupIDs []uuid.UUID `json:"group_ids"`
}

func (r Recipients) Empty() bool {
	return len(r.UserIDs) == 0 && len(r.GroupIDs) == 0
}

type Comment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TaskID    uuid.UUID `json:"task_id" db:"task_id"`
	AuthorID  uuid.UUID `json:"author_id" db:"author_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TaskRead struct {
	TaskID   uuid.UUID `json:"task_id" db:"task_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	UserName string    `json:"user_name" db:"user_name"`
	SeenAt   time.Time `json:"seen_at" db:"seen_at"`
}

// TaskOwnership is what scope resolution needs to know about a task.
type TaskOwnership struct {
	TaskID    uuid.UUID   `db:"task_id"`
	OwnerID   uuid.UUID   `db:"owner_id"`
	OwnerRole Role        `db:"owner_role"`
	GroupIDs  []uuid.UUID `db:"-"`
}

type TaskFilter struct {
	Scope  TaskListScope `form:"scope" binding:"omitempty,oneof=visible mine created"`
	Status TaskStatus    `form:"status" binding:"omitempty,task_status"`
	Pagination
}

type CreateTaskRequest struct {
	Title        string      `json:"title" binding:"required,max=200"`
	Body         *string     `json:"body"`
	DueAt        *time.Time  `json:"due_at"`
	VisibleToAll bool        `json:"visible_to_all"`
	UserIDs      []uuid.UUID `json:"user_ids"`
	GroupIDs     []uuid.UUID `json:"group_ids"`
}

type UpdateTaskRequest struct {
	Title        *string    `json:"title" binding:"omitempty,max=200"`
	Body         *string    `json:"body"`
	DueAt        *time.Time `json:"due_at"`
	VisibleToAll *bool      `json:"visible_to_all"`
}

type SetStatusRequest struct {
	Status TaskStatus `json:"status" binding:"required,task_status"`
}

type CommentRequest struct {
	Body string `json:"body" binding:"required,max=4000"`
}

// TaskCapabilities tells a client which actions to offer on a task card.
type TaskCapabilities struct {
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
	Assign bool `json:"assign"`
}
