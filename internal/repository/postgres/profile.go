package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

type profileRepository struct {
	BaseRepository
}

func NewProfileRepository(base BaseRepository) repository.ProfileRepository {
	return &profileRepository{base}
}

func (r *profileRepository) Get(ctx context.Context, id uuid.UUID) (p *model.Profile, err error) {
	defer r.observe("profile.get", time.Now(), &err)

	var profile model.Profile
	query := `
		SELECT id, full_name, role, active, last_seen_at, created_at
		FROM profiles
		WHERE id = $1`
	if err = r.GetDB().GetContext(ctx, &profile, query, id); err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (r *profileRepository) List(ctx context.Context, filter model.UserFilter) (profiles []*model.Profile, err error) {
	defer r.observe("profile.list", time.Now(), &err)

	query := `SELECT id, full_name, role, active, last_seen_at, created_at FROM profiles`
	if filter.ActiveOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY full_name`

	if err = r.GetDB().SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (r *profileRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) (err error) {
	defer r.observe("profile.update_role", time.Now(), &err)

	res, err := r.GetDB().ExecContext(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireAffected(res)
}

func (r *profileRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (err error) {
	defer r.observe("profile.set_active", time.Now(), &err)

	res, err := r.GetDB().ExecContext(ctx, `UPDATE profiles SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update active flag: %w", err)
	}
	return requireAffected(res)
}

func (r *profileRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	defer r.observe("profile.touch_last_seen", time.Now(), &err)

	_, err = r.GetDB().ExecContext(ctx, `UPDATE profiles SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *profileRepository) GroupIDs(ctx context.Context, id uuid.UUID) (ids []uuid.UUID, err error) {
	defer r.observe("profile.group_ids", time.Now(), &err)

	var raw pq.StringArray
	query := `SELECT COALESCE(array_agg(group_id::text), '{}') FROM user_groups WHERE user_id = $1`
	if err = r.GetDB().QueryRowxContext(ctx, query, id).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to load groups for %s: %w", id, err)
	}
	return parseUUIDs(raw)
}
