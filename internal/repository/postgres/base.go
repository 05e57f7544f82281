package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/taskdesk-api/internal/repository"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository. m may be nil.
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// observe records the outcome and latency of one database operation.
//
//	defer r.observe("task.get", time.Now(), &err)
func (r *BaseRepository) observe(operation string, start time.Time, err *error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil && *err != nil && !errors.Is(*err, repository.ErrNotFound) {
		status = "error"
	}
	r.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
	r.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// notFound maps sql.ErrNoRows onto repository.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// requireAffected turns a zero-row update or delete into ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
