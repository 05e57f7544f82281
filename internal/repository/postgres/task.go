package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

const taskColumns = `t.id, t.title, t.body, t.status, t.due_at, t.done_at, t.visible_to_all, t.created_by, t.created_at`

// visibleTo matches tasks addressed to everyone, created by $1, or addressed
// to $1 directly or through one of its groups.
const visibleTo = `(t.visible_to_all OR t.created_by = $1 OR ` + assignedTo + `)`

type taskRepository struct {
	BaseRepository
}

func NewTaskRepository(base BaseRepository) repository.TaskRepository {
	return &taskRepository{base}
}

func (r *taskRepository) Create(ctx context.Context, task *model.Task, recipients model.Recipients) (err error) {
	defer r.observe("task.create", time.Now(), &err)

	query := `
		INSERT INTO tasks (id, title, body, status, due_at, done_at, visible_to_all, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			task.ID,
			task.Title,
			task.Body,
			task.Status,
			task.DueAt,
			task.DoneAt,
			task.VisibleToAll,
			task.CreatedBy,
			task.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return insertRecipients(ctx, tx, task.ID, recipients)
	})
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (t *model.Task, err error) {
	defer r.observe("task.get", time.Now(), &err)

	var task model.Task
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	if err = r.GetDB().GetContext(ctx, &task, query, id); err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *model.Task) (err error) {
	defer r.observe("task.update", time.Now(), &err)

	query := `
		UPDATE tasks
		SET title = $2, body = $3, due_at = $4, visible_to_all = $5
		WHERE id = $1`
	res, err := r.GetDB().ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Body,
		task.DueAt,
		task.VisibleToAll,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireAffected(res)
}

func (r *taskRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus, doneAt *time.Time) (err error) {
	defer r.observe("task.set_status", time.Now(), &err)

	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE tasks SET status = $2, done_at = $3 WHERE id = $1`,
		id, status, doneAt)
	if err != nil {
		return fmt.Errorf("failed to set task status: %w", err)
	}
	return requireAffected(res)
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer r.observe("task.delete", time.Now(), &err)

	// recipients, comments and reads cascade
	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(res)
}

func (r *taskRepository) ListVisible(ctx context.Context, userID uuid.UUID, filter model.TaskFilter) (tasks []*model.Task, total int64, err error) {
	defer r.observe("task.list_visible", time.Now(), &err)

	page := filter.Pagination.Normalize()
	where, args := buildTaskListWhere(userID, filter)

	if err = r.GetDB().GetContext(ctx, &total, `SELECT COUNT(*)`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + where +
		fmt.Sprintf(" ORDER BY t.due_at ASC NULLS LAST, t.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	if err = r.GetDB().SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

// assignedTo matches tasks addressed to $1 directly or through one of its
// groups, whoever created them.
const assignedTo = `EXISTS (
	SELECT 1 FROM task_recipients r
	WHERE r.task_id = t.id
	AND (r.user_id = $1 OR r.group_id IN (SELECT group_id FROM user_groups WHERE user_id = $1))
)`

func buildTaskListWhere(userID uuid.UUID, filter model.TaskFilter) (string, []interface{}) {
	where := ` FROM tasks t WHERE ` + visibleTo
	args := []interface{}{userID}

	switch filter.Scope {
	case model.TaskScopeMine:
		where += ` AND ` + assignedTo
	case model.TaskScopeCreated:
		where += ` AND t.created_by = $1`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	return where, args
}

func (r *taskRepository) Recipients(ctx context.Context, taskID uuid.UUID) (out model.Recipients, err error) {
	defer r.observe("task.recipients", time.Now(), &err)

	var rows []model.TaskRecipient
	query := `SELECT task_id, user_id, group_id FROM task_recipients WHERE task_id = $1`
	if err = r.GetDB().SelectContext(ctx, &rows, query, taskID); err != nil {
		return out, fmt.Errorf("failed to load recipients: %w", err)
	}
	out = model.Recipients{UserIDs: []uuid.UUID{}, GroupIDs: []uuid.UUID{}}
	for _, row := range rows {
		if row.UserID != nil {
			out.UserIDs = append(out.UserIDs, *row.UserID)
		}
		if row.GroupID != nil {
			out.GroupIDs = append(out.GroupIDs, *row.GroupID)
		}
	}
	return out, nil
}

func (r *taskRepository) ReplaceRecipients(ctx context.Context, taskID uuid.UUID, recipients model.Recipients) (err error) {
	defer r.observe("task.replace_recipients", time.Now(), &err)

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_recipients WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("failed to clear recipients: %w", err)
		}
		return insertRecipients(ctx, tx, taskID, recipients)
	})
}

func insertRecipients(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID, recipients model.Recipients) error {
	if len(recipients.UserIDs) > 0 {
		query := `
			INSERT INTO task_recipients (task_id, user_id)
			SELECT $1, unnest($2::uuid[])`
		if _, err := tx.ExecContext(ctx, query, taskID, uuidArray(recipients.UserIDs)); err != nil {
			return fmt.Errorf("failed to insert user recipients: %w", err)
		}
	}
	if len(recipients.GroupIDs) > 0 {
		query := `
			INSERT INTO task_recipients (task_id, group_id)
			SELECT $1, unnest($2::uuid[])`
		if _, err := tx.ExecContext(ctx, query, taskID, uuidArray(recipients.GroupIDs)); err != nil {
			return fmt.Errorf("failed to insert group recipients: %w", err)
		}
	}
	return nil
}

type ownershipRow struct {
	TaskID    uuid.UUID      `db:"task_id"`
	OwnerID   uuid.UUID      `db:"owner_id"`
	OwnerRole model.Role     `db:"owner_role"`
	GroupIDs  pq.StringArray `db:"group_ids"`
}

func (r *taskRepository) Ownership(ctx context.Context, taskID uuid.UUID) (o *model.TaskOwnership, err error) {
	defer r.observe("task.ownership", time.Now(), &err)

	query := `
		SELECT
			t.id AS task_id,
			t.created_by AS owner_id,
			p.role AS owner_role,
			ARRAY(
				SELECT ug.group_id::text FROM user_groups ug WHERE ug.user_id = t.created_by
				UNION
				SELECT tr.group_id::text FROM task_recipients tr
				WHERE tr.task_id = t.id AND tr.group_id IS NOT NULL
			) AS group_ids
		FROM tasks t
		JOIN profiles p ON p.id = t.created_by
		WHERE t.id = $1`

	var row ownershipRow
	if err = r.GetDB().GetContext(ctx, &row, query, taskID); err != nil {
		return nil, notFound(err)
	}
	groups, err := parseUUIDs(row.GroupIDs)
	if err != nil {
		return nil, err
	}
	return &model.TaskOwnership{
		TaskID:    row.TaskID,
		OwnerID:   row.OwnerID,
		OwnerRole: row.OwnerRole,
		GroupIDs:  groups,
	}, nil
}

func (r *taskRepository) AddComment(ctx context.Context, comment *model.Comment) (err error) {
	defer r.observe("task.add_comment", time.Now(), &err)

	query := `
		INSERT INTO task_comments (id, task_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err = r.GetDB().ExecContext(ctx, query,
		comment.ID,
		comment.TaskID,
		comment.AuthorID,
		comment.Body,
		comment.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (r *taskRepository) GetComment(ctx context.Context, taskID, commentID uuid.UUID) (c *model.Comment, err error) {
	defer r.observe("task.get_comment", time.Now(), &err)

	var comment model.Comment
	query := `
		SELECT id, task_id, author_id, body, created_at
		FROM task_comments
		WHERE id = $1 AND task_id = $2`
	if err = r.GetDB().GetContext(ctx, &comment, query, commentID, taskID); err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

func (r *taskRepository) DeleteComment(ctx context.Context, commentID uuid.UUID) (err error) {
	defer r.observe("task.delete_comment", time.Now(), &err)

	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM task_comments WHERE id = $1`, commentID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return requireAffected(res)
}

func (r *taskRepository) MarkRead(ctx context.Context, taskID, userID uuid.UUID, at time.Time) (err error) {
	defer r.observe("task.mark_read", time.Now(), &err)

	query := `
		INSERT INTO task_reads (task_id, user_id, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, user_id) DO UPDATE SET seen_at = EXCLUDED.seen_at`
	_, err = r.GetDB().ExecContext(ctx, query, taskID, userID, at)
	return err
}

func (r *taskRepository) ListReads(ctx context.Context, taskID uuid.UUID) (reads []*model.TaskRead, err error) {
	defer r.observe("task.list_reads", time.Now(), &err)

	query := `
		SELECT tr.task_id, tr.user_id, p.full_name AS user_name, tr.seen_at
		FROM task_reads tr
		JOIN profiles p ON p.id = tr.user_id
		WHERE tr.task_id = $1
		ORDER BY tr.seen_at DESC`
	if err = r.GetDB().SelectContext(ctx, &reads, query, taskID); err != nil {
		return nil, fmt.Errorf("failed to list reads: %w", err)
	}
	return reads, nil
}
