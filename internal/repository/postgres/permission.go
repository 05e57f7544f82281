package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

const permissionColumns = `id, role, permission_type, scope, enabled, updated_by, created_at, updated_at`

type permissionRepository struct {
	BaseRepository
}

func NewPermissionRepository(base BaseRepository) repository.PermissionRepository {
	return &permissionRepository{base}
}

func (r *permissionRepository) Get(ctx context.Context, id uuid.UUID) (s *model.PermissionSetting, err error) {
	defer r.observe("permission.get", time.Now(), &err)

	var setting model.PermissionSetting
	query := `SELECT ` + permissionColumns + ` FROM permission_settings WHERE id = $1`
	if err = r.GetDB().GetContext(ctx, &setting, query, id); err != nil {
		return nil, notFound(err)
	}
	return &setting, nil
}

func (r *permissionRepository) GetByRoleAndType(ctx context.Context, role model.Role, permType model.PermissionType) (s *model.PermissionSetting, err error) {
	defer r.observe("permission.get_by_role_type", time.Now(), &err)

	var setting model.PermissionSetting
	query := `SELECT ` + permissionColumns + `
		FROM permission_settings
		WHERE role = $1 AND permission_type = $2`
	if err = r.GetDB().GetContext(ctx, &setting, query, role, permType); err != nil {
		return nil, notFound(err)
	}
	return &setting, nil
}

func (r *permissionRepository) ListByRole(ctx context.Context, role model.Role) (settings []*model.PermissionSetting, err error) {
	defer r.observe("permission.list_by_role", time.Now(), &err)

	query := `SELECT ` + permissionColumns + `
		FROM permission_settings
		WHERE role = $1
		ORDER BY permission_type`
	if err = r.GetDB().SelectContext(ctx, &settings, query, role); err != nil {
		return nil, fmt.Errorf("failed to list permission settings for %s: %w", role, err)
	}
	return settings, nil
}

func (r *permissionRepository) ListAll(ctx context.Context) (settings []*model.PermissionSetting, err error) {
	defer r.observe("permission.list_all", time.Now(), &err)

	query := `SELECT ` + permissionColumns + `
		FROM permission_settings
		ORDER BY role, permission_type`
	if err = r.GetDB().SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("failed to list permission settings: %w", err)
	}
	return settings, nil
}

func (r *permissionRepository) Update(ctx context.Context, setting *model.PermissionSetting) (err error) {
	defer r.observe("permission.update", time.Now(), &err)

	query := `
		UPDATE permission_settings
		SET scope = $2, enabled = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err = r.GetDB().QueryRowxContext(ctx, query,
		setting.ID,
		setting.Scope,
		setting.Enabled,
		setting.UpdatedBy,
	).Scan(&setting.UpdatedAt)
	return notFound(err)
}

func (r *permissionRepository) CheckUserPermission(ctx context.Context, actorID uuid.UUID, permType model.PermissionType, target *uuid.UUID) (allowed bool, err error) {
	defer r.observe("permission.check_rpc", time.Now(), &err)

	query := `SELECT check_user_permission($1, $2, $3)`
	if err = r.GetDB().GetContext(ctx, &allowed, query, actorID, permType, target); err != nil {
		return false, fmt.Errorf("check_user_permission: %w", err)
	}
	return allowed, nil
}
