package engine

import (
	"context"
	"time"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/models"
)

// Watchdog periodically fails playlists whose current step was dispatched
// long ago and never received a completion. Without it, a lost completion
// message leaves a playlist IN_PROCESS forever.
type Watchdog struct {
	engine   *Engine
	timeout  time.Duration
	interval time.Duration
	logger   logging.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewWatchdog creates a watchdog that scans at interval and fails steps
// older than timeout.
func NewWatchdog(engine *Engine, timeout, interval time.Duration) *Watchdog {
	return &Watchdog{
		engine:   engine,
		timeout:  timeout,
		interval: interval,
		logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "watchdog"}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called.
func (w *Watchdog) Start() {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				if err := w.Sweep(context.Background()); err != nil {
					w.logger.Warn("Watchdog sweep failed",
						logging.Field{Key: "error", Value: err.Error()})
				}
			}
		}
	}()
}

// Stop terminates the scan loop and waits for it to exit.
func (w *Watchdog) Stop() {
	close(w.stop)
	<-w.done
}

// Sweep fails every stuck playlist once. Exposed for tests and for manual
// runs.
func (w *Watchdog) Sweep(ctx context.Context) error {
	playlists, err := w.engine.store.ListPlaylistsByStatus(models.PlaylistStatusInProcess)
	if err != nil {
		return err
	}

	cutoff := w.engine.now().UTC().Add(-w.timeout)
	for _, playlist := range playlists {
		step, ok := playlist.Manifest.CurrentStep()
		if !ok || step.DispatchedAt == nil || !step.DispatchedAt.Before(cutoff) {
			continue
		}

		id := playlist.ID
		err := w.engine.locks.WithLock(ctx, playlistLockKey(id), func() error {
			// Re-read under the lock; a completion may have just landed.
			current, err := w.engine.store.GetPlaylist(id)
			if err != nil {
				return err
			}
			if current.Status != models.PlaylistStatusInProcess {
				return nil
			}
			step, ok := current.Manifest.CurrentStep()
			if !ok || step.DispatchedAt == nil || !step.DispatchedAt.Before(cutoff) {
				return nil
			}
			w.logger.Warn("Failing stuck playlist",
				logging.Field{Key: "playlist", Value: current.Slug},
				logging.Field{Key: "handle", Value: step.Plugin.Handle},
				logging.Field{Key: "dispatched_at", Value: step.DispatchedAt.Format(time.RFC3339)})
			return w.engine.fail(current)
		})
		if err != nil {
			w.logger.Warn("Failed to reap stuck playlist",
				logging.Field{Key: "playlist", Value: playlist.Slug},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return nil
}
