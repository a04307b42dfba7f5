package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mikkel102454/storage-selfhosted/internal/metrics"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// Sweeper periodically deletes staging files that have not been written to for longer
// than the staging timeout, and evicts their sessions from the registry.
type Sweeper struct {
	store    storage.Backend
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper for the sessions and staging files of svc.
func NewSweeper(svc *Service, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		store:    svc.store,
		registry: svc.registry,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Start runs one sweep immediately, then schedules a sweep every interval.
// Overlapping runs are skipped.
func (sw *Sweeper) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	logger := cronLogger{slog.Default()}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", sw.interval), func() {
		sw.run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	slog.Info("stale upload sweeper started",
		"interval", sw.interval,
		"staging_timeout", sw.timeout,
	)

	// Picks up staging files left behind by a previous process.
	sw.run(ctx)

	c.Start()
	sw.cron = c
	return nil
}

// Stop stops scheduling sweeps and waits for a running one to finish or ctx to end.
func (sw *Sweeper) Stop(ctx context.Context) {
	sw.mu.Lock()
	c := sw.cron
	sw.cron = nil
	sw.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		slog.Info("stale upload sweeper stopped")
	case <-ctx.Done():
		slog.Warn("stale upload sweeper did not stop in time", "error", ctx.Err())
	}
}

func (sw *Sweeper) run(ctx context.Context) {
	start := time.Now()
	result, err := sw.Sweep(ctx)
	duration := time.Since(start)
	metrics.SweepDuration.Observe(duration.Seconds())

	if err != nil {
		slog.Error("stale upload sweep failed", "error", err, "duration", duration)
		return
	}

	if result.Deleted > 0 || result.Failed > 0 {
		slog.Info("stale upload sweep completed",
			"scanned", result.Scanned,
			"deleted", result.Deleted,
			"failed", result.Failed,
			"duration", duration,
		)
	} else {
		slog.Debug("stale upload sweep completed", "scanned", result.Scanned, "duration", duration)
	}
}

// Sweep deletes every staging file last modified before now minus the staging timeout.
// A file that cannot be deleted is logged and skipped.
func (sw *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	entries, err := sw.store.ListStaging(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list staging files: %w", err)
	}

	cutoff := sw.now().Add(-sw.timeout)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		if !e.ModTime.Before(cutoff) {
			continue
		}

		// Chunks for the key are refused until the delete returns, and writes that landed
		// after the listing keep the file.
		key := Key{Owner: e.Owner, UploadID: e.UploadID}
		removed, err := sw.registry.Reclaim(key, func() (bool, error) {
			current, err := sw.store.StatStaging(e.Owner, e.UploadID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			if !current.ModTime.Before(cutoff) {
				return false, nil
			}
			if err := sw.store.RemoveStaging(e.Owner, e.UploadID); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			result.Failed++
			metrics.SweptFilesTotal.WithLabelValues("failed").Inc()
			slog.Error("failed to delete stale staging file",
				"owner", e.Owner,
				"upload_id", e.UploadID,
				"path", e.Path,
				"error", err,
			)
			continue
		}
		if !removed {
			slog.Debug("staging file changed during sweep, kept",
				"owner", e.Owner,
				"upload_id", e.UploadID,
			)
			continue
		}

		result.Deleted++
		metrics.SweptFilesTotal.WithLabelValues("deleted").Inc()
		slog.Debug("deleted stale staging file",
			"owner", e.Owner,
			"upload_id", e.UploadID,
			"size", e.Size,
			"last_modified", e.ModTime,
		)
	}

	// Finished keys only need to outlive late retries of their chunks.
	sw.registry.PruneFinished(cutoff)

	return result, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
