package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

// LogPruner deletes activity entries older than a cutoff.
type LogPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditCleanupWorker enforces the activity log retention window. Entries are
// append-only everywhere else; this is the only path that removes them.
type AuditCleanupWorker struct {
	repo            LogPruner
	retentionDays   int
	cleanupInterval time.Duration
	workerID        string
	metrics         *metrics.Metrics
	logger          *logger.Logger
	now             func() time.Time
}

func NewAuditCleanupWorker(repo LogPruner, retentionDays int, cleanupInterval time.Duration, m *metrics.Metrics, log *logger.Logger) *AuditCleanupWorker {
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	workerID := fmt.Sprintf("retention-%s", generateWorkerID())
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		workerID:        workerID,
		metrics:         m,
		logger:          log.WithFields(map[string]interface{}{"worker_id": workerID}),
		now:             time.Now,
	}
}

// Enabled is false when no retention window is configured; logs are then
// kept forever.
func (w *AuditCleanupWorker) Enabled() bool {
	return w.retentionDays > 0
}

// Start prunes once immediately and then on every tick until ctx is done.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("Audit retention disabled, nothing to do")
		<-ctx.Done()
		return
	}

	w.logger.Info("Worker started", "retention_days", w.retentionDays, "interval", w.cleanupInterval.String())
	w.runOnce(ctx)

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *AuditCleanupWorker) runOnce(ctx context.Context) {
	if _, err := w.Cleanup(ctx); err != nil {
		w.logger.Error(err, "Error cleaning up activity logs")
	}
}

// Cleanup removes every entry older than the retention window and returns
// how many were deleted.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	if !w.Enabled() {
		return 0, nil
	}
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup activity logs: %w", err)
	}

	w.metrics.AuditRetentionDeleted.Add(float64(rows))
	w.logger.Info("Cleaned up activity logs", "rows", rows, "cutoff", cutoff.Format(time.RFC3339))
	return rows, nil
}

func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
}
