package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
)

type groupRepository struct {
	BaseRepository
}

func NewGroupRepository(base BaseRepository) repository.GroupRepository {
	return &groupRepository{base}
}

func (r *groupRepository) List(ctx context.Context) (groups []*model.Group, err error) {
	defer r.observe("group.list", time.Now(), &err)

	if err = r.GetDB().SelectContext(ctx, &groups, `SELECT id, name FROM groups ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}
