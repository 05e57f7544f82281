package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/model"
	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/pkg/auth"
	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

const (
	outcomeWritten  = "written"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Entry is one action attempt to record. OldData and NewData are opaque
// snapshots serialized as JSON. The zero value records a success.
type Entry struct {
	Action        model.Action
	ResourceType  model.ResourceType
	ResourceID    *uuid.UUID
	ResourceTitle string
	OldData       interface{}
	NewData       interface{}
	Failed        bool
	ErrorMessage  string
}

type ProfileLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

// Service appends activity log entries and serves the log viewer.
type Service struct {
	repo     repository.ActivityLogRepository
	profiles ProfileLookup
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewService(repo repository.ActivityLogRepository, profiles ProfileLookup, m *metrics.Metrics, log *logger.Logger) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:     repo,
		profiles: profiles,
		metrics:  m,
		logger:   log.With("audit"),
	}
}

// Record appends exactly one entry for the actor on ctx and returns its id.
// It is best-effort: every failure is logged and yields nil, and the
// caller's own outcome is never affected.
func (s *Service) Record(ctx context.Context, e Entry) (id *uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			s.reject(outcomeFailed, fmt.Errorf("panic: %v", r), e)
			id = nil
		}
	}()

	actorID, ok := auth.ActorFrom(ctx)
	if !ok {
		s.reject(outcomeRejected, fmt.Errorf("no actor on context"), e)
		return nil
	}
	if !e.Action.Valid() {
		s.reject(outcomeRejected, fmt.Errorf("unknown action %q", e.Action), e)
		return nil
	}
	if !e.ResourceType.Valid() {
		s.reject(outcomeRejected, fmt.Errorf("unknown resource type %q", e.ResourceType), e)
		return nil
	}

	oldData, err := model.NewJSONB(e.OldData)
	if err != nil {
		s.reject(outcomeRejected, fmt.Errorf("marshal old data: %w", err), e)
		return nil
	}
	newData, err := model.NewJSONB(e.NewData)
	if err != nil {
		s.reject(outcomeRejected, fmt.Errorf("marshal new data: %w", err), e)
		return nil
	}

	// the write runs to completion even if the request goes away
	ctx = context.WithoutCancel(ctx)

	entry := &model.ActivityLogEntry{
		UserID:        actorID,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		ResourceTitle: optional(e.ResourceTitle),
		OldData:       oldData,
		NewData:       newData,
		Success:       !e.Failed,
		ErrorMessage:  optional(e.ErrorMessage),
	}
	if client, ok := ClientFrom(ctx); ok {
		entry.IPAddress = optional(client.IPAddress)
		entry.UserAgent = optional(client.UserAgent)
	}

	if s.profiles != nil {
		profile, err := s.profiles.Get(ctx, actorID)
		if err != nil {
			s.logger.Warn("recording without actor snapshot", "user_id", actorID.String(), "error", err.Error())
		} else {
			name, role := profile.FullName, profile.Role
			entry.UserName = optional(name)
			entry.UserRole = &role
		}
	}

	stored, err := s.repo.Create(ctx, entry)
	if err != nil {
		s.reject(outcomeFailed, err, e)
		return nil
	}

	s.metrics.AuditWrites.WithLabelValues(outcomeWritten).Inc()
	return &stored
}

func (s *Service) reject(outcome string, err error, e Entry) {
	s.metrics.AuditWrites.WithLabelValues(outcome).Inc()
	s.logger.ZL.Error().
		Err(err).
		Str("outcome", outcome).
		Str("action", string(e.Action)).
		Str("resource_type", string(e.ResourceType)).
		Interface("resource_id", e.ResourceID).
		Msg("activity not recorded")
}

// List returns one page of entries, newest first, and the total match count.
func (s *Service) List(ctx context.Context, filter model.ActivityLogFilter) ([]*model.ActivityLogEntry, int64, error) {
	filter.Pagination = filter.Pagination.Normalize()
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	return logs, total, nil
}

func (s *Service) Stats(ctx context.Context, filter model.ActivityLogFilter) (*model.ActivityStats, error) {
	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activity: %w", err)
	}
	return stats, nil
}
