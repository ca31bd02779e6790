package app

import (
	"context"
	"time"

	"deepresearch/internal/async"
	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

// RetentionSweeper deletes terminal tasks that finished longer ago than the
// retention window. Running tasks are never touched.
type RetentionSweeper struct {
	store     ports.TaskStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    logging.Logger
}

// NewRetentionSweeper returns nil when retention is disabled.
func NewRetentionSweeper(store ports.TaskStore, retention, interval time.Duration) *RetentionSweeper {
	if retention <= 0 || store == nil {
		return nil
	}
	if interval <= 0 {
		interval = retention / 2
	}
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logging.NewComponentLogger("RetentionSweeper"),
	}
}

// Sweep deletes expired tasks once and reports how many were removed.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	tasks, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			continue
		}
		finished := task.UpdatedAt
		if task.CompletedAt != nil {
			finished = *task.CompletedAt
		}
		if finished.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, task.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Start sweeps on a ticker until ctx is done.
func (s *RetentionSweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	async.Go(s.logger, "retention.sweeper", func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Warn("retention sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					s.logger.Info("retention sweep removed %d tasks", removed)
				}
			}
		}
	})
}
