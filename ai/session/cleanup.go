package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCleanupInterval is how often the cleanup job sweeps expired sessions.
const DefaultCleanupInterval = 10 * time.Minute

// CleanupConfig configures the background session sweep.
type CleanupConfig struct {
	Interval time.Duration
}

// CleanupJob periodically removes expired sessions from a Store.
type CleanupJob struct {
	store  Store
	config CleanupConfig
}

// NewCleanupJob creates a cleanup job. Zero config fields get defaults.
func NewCleanupJob(store Store, config CleanupConfig) *CleanupJob {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}
	return &CleanupJob{store: store, config: config}
}

// RunOnce performs a single sweep.
func (j *CleanupJob) RunOnce(ctx context.Context) (int, error) {
	return j.store.CleanupExpired(ctx)
}

// Start runs the sweep loop until the context is cancelled.
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	slog.Info("Session cleanup job started", "interval", j.config.Interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session cleanup job stopped")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				slog.Warn("Session cleanup sweep failed", "error", err)
			}
		}
	}
}
