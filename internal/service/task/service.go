package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	"github.com/jwalitptl/taskdesk-api/internal/service/permission"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
)

var errDenied = errors.New("permission denied")

type Evaluator interface {
	Evaluate(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (bool, error)
	EvaluateMany(ctx context.Context, actorID uuid.UUID, checks []permission.Check) []bool
}

type GroupResolver interface {
	GroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Service runs task actions through the same sequence: ask the evaluator,
// attempt the mutation, then record the attempt whatever its outcome.
type Service struct {
	tasks     repository.TaskRepository
	groups    GroupResolver
	evaluator Evaluator
	activity  *audit.ActivityLogger
	now       func() time.Time
}

func NewService(tasks repository.TaskRepository, groups GroupResolver, evaluator Evaluator, activity *audit.ActivityLogger) *Service {
	return &Service{
		tasks:     tasks,
		groups:    groups,
		evaluator: evaluator,
		activity:  activity,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) allowed(ctx context.Context, actorID uuid.UUID, pt model.PermissionType, taskID *uuid.UUID) bool {
	ok, err := s.evaluator.Evaluate(ctx, actorID, pt, taskID)
	return err == nil && ok
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("task", err)
		}
		return nil, apperrors.Failed("could not load task", err)
	}
	return task, nil
}

// addressedTo reports whether the task reaches actorID through recipient
// visibility: everyone, its creator, a direct recipient or a group recipient.
func (s *Service) addressedTo(ctx context.Context, task *model.Task, actorID uuid.UUID) bool {
	if task.VisibleToAll || task.CreatedBy == actorID {
		return true
	}
	recipients, err := s.tasks.Recipients(ctx, task.ID)
	if err != nil {
		return false
	}
	for _, id := range recipients.UserIDs {
		if id == actorID {
			return true
		}
	}
	if len(recipients.GroupIDs) == 0 {
		return false
	}
	mine, err := s.groups.GroupIDs(ctx, actorID)
	if err != nil {
		return false
	}
	for _, g := range mine {
		for _, r := range recipients.GroupIDs {
			if g == r {
				return true
			}
		}
	}
	return false
}

func (s *Service) visible(ctx context.Context, actorID uuid.UUID, id uuid.UUID) (*model.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.addressedTo(ctx, task, actorID) && !s.allowed(ctx, actorID, model.PermissionViewTasks, &task.ID) {
		return nil, apperrors.Forbidden("you cannot view this task")
	}
	return task, nil
}

// List returns the tasks visible to actorID, earliest due first.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, filter model.TaskFilter) ([]*model.Task, int64, error) {
	if !s.allowed(ctx, actorID, model.PermissionViewTasks, nil) {
		return nil, 0, apperrors.Forbidden("you cannot view tasks")
	}
	filter.Pagination = filter.Pagination.Normalize()
	tasks, total, err := s.tasks.ListVisible(ctx, actorID, filter)
	if err != nil {
		return nil, 0, apperrors.Failed("could not load tasks", err)
	}
	return tasks, total, nil
}

// Get returns a task and records the view.
func (s *Service) Get(ctx context.Context, actorID, id uuid.UUID) (*model.Task, error) {
	task, err := s.visible(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	s.activity.TaskViewed(ctx, task.ID, task.Title)
	return task, nil
}

func assignmentPayload(r model.Recipients) model.JSONMap {
	return model.JSONMap{
		"users":             r.UserIDs,
		"groups":            r.GroupIDs,
		"assignments_count": len(r.UserIDs) + len(r.GroupIDs),
	}
}

// Create stores a new task owned by actorID. Recipients are ignored for
// tasks visible to everyone, and addressing anyone needs assign_tasks.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req model.CreateTaskRequest) (*model.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperrors.BadRequest("title is required", nil)
	}

	recipients := model.Recipients{UserIDs: req.UserIDs, GroupIDs: req.GroupIDs}
	if req.VisibleToAll {
		recipients = model.Recipients{}
	}

	task := &model.Task{
		ID:           uuid.New(),
		Title:        title,
		Body:         trimmed(req.Body),
		Status:       model.TaskStatusTodo,
		DueAt:        req.DueAt,
		VisibleToAll: req.VisibleToAll,
		CreatedBy:    actorID,
		CreatedAt:    s.now(),
	}

	if !recipients.Empty() && !s.allowed(ctx, actorID, model.PermissionAssignTasks, nil) {
		s.activity.TaskCreated(ctx, task.ID, title, task.Snapshot(), errDenied)
		return nil, apperrors.Forbidden("you cannot assign tasks")
	}

	err := s.tasks.Create(ctx, task, recipients)
	s.activity.TaskCreated(ctx, task.ID, title, task.Snapshot(), err)
	if err != nil {
		return nil, apperrors.Failed("could not save task", err)
	}
	if !recipients.Empty() {
		s.activity.TaskAssigned(ctx, task.ID, title, assignmentPayload(recipients), nil)
	}
	return task, nil
}

// Update applies the non-nil fields of req. Requires edit_tasks on the task.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, req model.UpdateTaskRequest) (*model.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := task.Snapshot()

	updated := *task
	if req.Title != nil {
		updated.Title = strings.TrimSpace(*req.Title)
		if updated.Title == "" {
			return nil, apperrors.BadRequest("title cannot be empty", nil)
		}
	}
	if req.Body != nil {
		updated.Body = trimmed(req.Body)
	}
	if req.DueAt != nil {
		updated.DueAt = req.DueAt
	}
	if req.VisibleToAll != nil {
		updated.VisibleToAll = *req.VisibleToAll
	}

	if !s.allowed(ctx, actorID, model.PermissionEditTasks, &id) {
		s.activity.TaskUpdated(ctx, id, task.Title, before, updated.Snapshot(), errDenied)
		return nil, apperrors.Forbidden("you cannot edit this task")
	}

	err = s.tasks.Update(ctx, &updated)
	s.activity.TaskUpdated(ctx, id, updated.Title, before, updated.Snapshot(), err)
	if err != nil {
		return nil, apperrors.Failed("could not save task", err)
	}
	return &updated, nil
}

// SetStatus moves a task between todo, doing and done. Changing status is an
// edit. Only done carries a completion time.
// Setting the current status again is a no-op and is not recorded.
func (s *Service) SetStatus(ctx context.Context, actorID, id uuid.UUID, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, apperrors.BadRequest("invalid status", nil)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == status {
		return task, nil
	}
	old := task.Status

	if !s.allowed(ctx, actorID, model.PermissionEditTasks, &id) {
		s.activity.TaskStatusChanged(ctx, id, task.Title, old, status, errDenied)
		return nil, apperrors.Forbidden("you cannot change this task's status")
	}

	var doneAt *time.Time
	if status == model.TaskStatusDone {
		now := s.now()
		doneAt = &now
	}

	err = s.tasks.SetStatus(ctx, id, status, doneAt)
	s.activity.TaskStatusChanged(ctx, id, task.Title, old, status, err)
	if err != nil {
		return nil, apperrors.Failed("could not update task status", err)
	}

	task.Status = status
	task.DoneAt = doneAt
	return task, nil
}

// Delete removes a task. Requires delete_tasks on the task.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if !s.allowed(ctx, actorID, model.PermissionDeleteTasks, &id) {
		s.activity.TaskDeleted(ctx, id, task.Title, task.Snapshot(), errDenied)
		return apperrors.Forbidden("you cannot delete this task")
	}

	err = s.tasks.Delete(ctx, id)
	s.activity.TaskDeleted(ctx, id, task.Title, task.Snapshot(), err)
	if err != nil {
		return apperrors.Failed("could not delete task", err)
	}
	return nil
}

// Assign replaces the task's recipients. Requires assign_tasks on the task.
func (s *Service) Assign(ctx context.Context, actorID, id uuid.UUID, recipients model.Recipients) (model.Recipients, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return model.Recipients{}, err
	}
	payload := assignmentPayload(recipients)

	if !s.allowed(ctx, actorID, model.PermissionAssignTasks, &id) {
		s.activity.TaskAssigned(ctx, id, task.Title, payload, errDenied)
		return model.Recipients{}, apperrors.Forbidden("you cannot assign this task")
	}

	err = s.tasks.ReplaceRecipients(ctx, id, recipients)
	s.activity.TaskAssigned(ctx, id, task.Title, payload, err)
	if err != nil {
		return model.Recipients{}, apperrors.Failed("could not save recipients", err)
	}
	return recipients, nil
}

func (s *Service) Recipients(ctx context.Context, actorID, id uuid.UUID) (model.Recipients, error) {
	if _, err := s.visible(ctx, actorID, id); err != nil {
		return model.Recipients{}, err
	}
	r, err := s.tasks.Recipients(ctx, id)
	if err != nil {
		return model.Recipients{}, apperrors.Failed("could not load recipients", err)
	}
	return r, nil
}

// Capabilities evaluates edit, delete and assign on one task concurrently.
func (s *Service) Capabilities(ctx context.Context, actorID, id uuid.UUID) model.TaskCapabilities {
	results := s.evaluator.EvaluateMany(ctx, actorID, []permission.Check{
		{PermissionType: model.PermissionEditTasks, TargetID: &id},
		{PermissionType: model.PermissionDeleteTasks, TargetID: &id},
		{PermissionType: model.PermissionAssignTasks, TargetID: &id},
	})
	return model.TaskCapabilities{
		Edit:   results[0],
		Delete: results[1],
		Assign: results[2],
	}
}

// AddComment posts a comment on a task the actor can see.
func (s *Service) AddComment(ctx context.Context, actorID, taskID uuid.UUID, body string) (*model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.BadRequest("comment cannot be empty", nil)
	}
	task, err := s.visible(ctx, actorID, taskID)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:        uuid.New(),
		TaskID:    taskID,
		AuthorID:  actorID,
		Body:      body,
		CreatedAt: s.now(),
	}
	err = s.tasks.AddComment(ctx, comment)
	s.activity.CommentAdded(ctx, comment.ID, task.Title, model.JSONMap{"task_id": taskID, "body": body}, err)
	if err != nil {
		return nil, apperrors.Failed("could not save comment", err)
	}
	return comment, nil
}

// DeleteComment removes a comment. Authors may delete their own; anyone
// else needs edit_tasks on the task.
func (s *Service) DeleteComment(ctx context.Context, actorID, taskID, commentID uuid.UUID) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	comment, err := s.tasks.GetComment(ctx, taskID, commentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("comment", err)
		}
		return apperrors.Failed("could not load comment", err)
	}
	data := model.JSONMap{"task_id": taskID, "body": comment.Body, "author_id": comment.AuthorID}

	if comment.AuthorID != actorID && !s.allowed(ctx, actorID, model.PermissionEditTasks, &taskID) {
		s.activity.CommentDeleted(ctx, commentID, task.Title, data, errDenied)
		return apperrors.Forbidden("you cannot delete this comment")
	}

	err = s.tasks.DeleteComment(ctx, commentID)
	s.activity.CommentDeleted(ctx, commentID, task.Title, data, err)
	if err != nil {
		return apperrors.Failed("could not delete comment", err)
	}
	return nil
}

// MarkRead records that actorID has seen the task.
func (s *Service) MarkRead(ctx context.Context, actorID, taskID uuid.UUID) error {
	if _, err := s.visible(ctx, actorID, taskID); err != nil {
		return err
	}
	if err := s.tasks.MarkRead(ctx, taskID, actorID, s.now()); err != nil {
		return apperrors.Failed("could not mark task as read", err)
	}
	return nil
}

// Reads lists who has seen the task, most recent first.
func (s *Service) Reads(ctx context.Context, actorID, taskID uuid.UUID) ([]*model.TaskRead, error) {
	if _, err := s.visible(ctx, actorID, taskID); err != nil {
		return nil, err
	}
	reads, err := s.tasks.ListReads(ctx, taskID)
	if err != nil {
		return nil, apperrors.Failed("could not load read receipts", err)
	}
	return reads, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
