package expense

import (
	"context"
	"log/slog"
	"time"

	"github.com/fkhayef/expensesplitter/internal/metrics"
)

// Sweeper periodically hard-deletes expenses that have stayed soft-deleted
// longer than the retention period
type Sweeper struct {
	repo      *Repository
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSweeper creates a sweeper; a non-positive retention disables it
func NewSweeper(repo *Repository, retention, interval time.Duration, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		repo:      repo,
		retention: retention,
		interval:  interval,
		metrics:   m,
		now:       time.Now,
	}
}

// Sweep runs one purge and returns the number of expenses removed
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.repo.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.Purged(n)
	return n, nil
}

// Run sweeps once immediately and then on every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	if s.retention <= 0 {
		slog.Info("expense retention sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.Sweep(ctx)
		if err != nil {
			slog.Error("expense retention sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("purged deleted expenses", "count", n, "retention", s.retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
