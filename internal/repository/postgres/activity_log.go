package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

const activityLogColumns = `id, user_id, user_name, user_role, action, resource_type, resource_id,
	resource_title, old_data, new_data, ip_address, user_agent, success, error_message, created_at`

type activityLogRepository struct {
	BaseRepository
	useRPC bool
}

// NewActivityLogRepository returns the append-only audit store. With useRPC
// set, writes go through the log_activity procedure instead of a plain insert.
func NewActivityLogRepository(base BaseRepository, useRPC bool) repository.ActivityLogRepository {
	return &activityLogRepository{BaseRepository: base, useRPC: useRPC}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *model.ActivityLogEntry) (id uuid.UUID, err error) {
	defer r.observe("activity_log.create", time.Now(), &err)

	if r.useRPC {
		query := `SELECT log_activity($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		err = r.GetDB().QueryRowxContext(ctx, query,
			entry.UserID,
			entry.Action,
			entry.ResourceType,
			entry.ResourceID,
			entry.ResourceTitle,
			entry.OldData,
			entry.NewData,
			entry.IPAddress,
			entry.UserAgent,
			entry.Success,
			entry.ErrorMessage,
		).Scan(&id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("log_activity: %w", err)
		}
		return id, nil
	}

	query := `
		INSERT INTO activity_logs (
			user_id, user_name, user_role, action, resource_type, resource_id,
			resource_title, old_data, new_data, ip_address, user_agent, success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`
	err = r.GetDB().QueryRowxContext(ctx, query,
		entry.UserID,
		entry.UserName,
		entry.UserRole,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.ResourceTitle,
		entry.OldData,
		entry.NewData,
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		entry.ErrorMessage,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert activity log: %w", err)
	}
	return entry.ID, nil
}

// buildActivityWhere renders the filter as a WHERE clause and its arguments.
func buildActivityWhere(filter model.ActivityLogFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		conditions = append(conditions, fmt.Sprintf("success = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (r *activityLogRepository) List(ctx context.Context, filter model.ActivityLogFilter) (logs []*model.ActivityLogEntry, total int64, err error) {
	defer r.observe("activity_log.list", time.Now(), &err)

	where, args := buildActivityWhere(filter)
	page := filter.Pagination.Normalize()

	if err = r.GetDB().GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity logs: %w", err)
	}

	query := `SELECT ` + activityLogColumns + ` FROM activity_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	if err = r.GetDB().SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list activity logs: %w", err)
	}
	return logs, total, nil
}

func (r *activityLogRepository) Stats(ctx context.Context, filter model.ActivityLogFilter) (stats *model.ActivityStats, err error) {
	defer r.observe("activity_log.stats", time.Now(), &err)

	where, args := buildActivityWhere(filter)
	stats = &model.ActivityStats{
		ActionCounts:  make(map[model.Action]int64),
		ResourceCount: make(map[model.ResourceType]int64),
	}

	totals := `
		SELECT
			COUNT(*) AS total_logs,
			COUNT(*) FILTER (WHERE success) AS succeeded,
			COUNT(*) FILTER (WHERE NOT success) AS failed,
			COUNT(DISTINCT user_id) AS unique_users
		FROM activity_logs` + where
	if err = r.GetDB().QueryRowxContext(ctx, totals, args...).Scan(
		&stats.TotalLogs,
		&stats.Succeeded,
		&stats.Failed,
		&stats.UniqueUsers,
	); err != nil {
		return nil, fmt.Errorf("failed to get activity totals: %w", err)
	}

	var byAction []struct {
		Action model.Action `db:"action"`
		Count  int64        `db:"count"`
	}
	if err = r.GetDB().SelectContext(ctx, &byAction,
		`SELECT action, COUNT(*) AS count FROM activity_logs`+where+` GROUP BY action`, args...); err != nil {
		return nil, fmt.Errorf("failed to get action counts: %w", err)
	}
	for _, row := range byAction {
		stats.ActionCounts[row.Action] = row.Count
	}

	var byResource []struct {
		ResourceType model.ResourceType `db:"resource_type"`
		Count        int64              `db:"count"`
	}
	if err = r.GetDB().SelectContext(ctx, &byResource,
		`SELECT resource_type, COUNT(*) AS count FROM activity_logs`+where+` GROUP BY resource_type`, args...); err != nil {
		return nil, fmt.Errorf("failed to get resource counts: %w", err)
	}
	for _, row := range byResource {
		stats.ResourceCount[row.ResourceType] = row.Count
	}

	return stats, nil
}

func (r *activityLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	defer r.observe("activity_log.delete_before", time.Now(), &err)

	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup activity logs: %w", err)
	}
	return res.RowsAffected()
}
