package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

type pruner struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *pruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func newTestWorker(repo LogPruner, days int) (*AuditCleanupWorker, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	w := NewAuditCleanupWorker(repo, days, time.Hour, m, logger.Nop())
	w.now = func() time.Time { return time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC) }
	return w, m
}

func TestCleanup(t *testing.T) {
	t.Run("deletes entries older than the window", func(t *testing.T) {
		repo := &pruner{deleted: 7}
		w, m := newTestWorker(repo, 30)

		n, err := w.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		require.Len(t, repo.cutoffs, 1)
		assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), repo.cutoffs[0])
		assert.Equal(t, float64(7), testutil.ToFloat64(m.AuditRetentionDeleted))
	})

	t.Run("disabled window never deletes", func(t *testing.T) {
		repo := &pruner{deleted: 3}
		w, m := newTestWorker(repo, 0)

		assert.False(t, w.Enabled())
		n, err := w.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, repo.cutoffs)
		assert.Zero(t, testutil.ToFloat64(m.AuditRetentionDeleted))
	})

	t.Run("repository error is returned", func(t *testing.T) {
		repo := &pruner{err: errors.New("connection reset")}
		w, m := newTestWorker(repo, 90)

		_, err := w.Cleanup(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Zero(t, testutil.ToFloat64(m.AuditRetentionDeleted))
	})
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	repo := &pruner{deleted: 1}
	w, _ := newTestWorker(repo, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
		}
		cancel()
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, repo.cutoffs, 1)
}
