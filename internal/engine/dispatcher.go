package engine

import (
	"context"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/models"
)

// run moves the playlist into IN_PROCESS if it is not already there, then
// dispatches the next queued step. Callers must hold the playlist lock.
func (e *Engine) run(ctx context.Context, playlist *models.Playlist) error {
	if playlist.Status.Terminal() {
		return nil
	}

	if playlist.Status != models.PlaylistStatusInProcess {
		playlist.Status = models.PlaylistStatusInProcess
		if err := e.store.UpdatePlaylist(playlist); err != nil {
			return err
		}
		e.notifier.RefreshPlaylists()
	}

	return e.dispatchNext(ctx, playlist)
}

// dispatchNext pops the head of the pending queue, records the dispatch in
// the executed history, and either merges a passthrough plugin's metadata
// synchronously or fires the external worker and returns without waiting.
func (e *Engine) dispatchNext(ctx context.Context, playlist *models.Playlist) error {
	manifest, slot, ok := playlist.Manifest.Dispatch(e.now().UTC())
	if !ok {
		return e.complete(playlist)
	}

	handle := slot.Plugin.Handle
	playlist.Manifest = manifest
	playlist.NextStep = &handle

	if slot.Plugin.IsPassthrough() {
		playlist.Manifest = playlist.Manifest.MergeContext(slot.Metadata)
		if err := e.store.UpdatePlaylist(playlist); err != nil {
			return err
		}
		e.logger.Debug("Passthrough step merged",
			logging.Field{Key: "playlist", Value: playlist.Slug},
			logging.Field{Key: "handle", Value: handle})
		return e.advance(ctx, playlist)
	}

	if err := e.store.UpdatePlaylist(playlist); err != nil {
		return err
	}

	return e.invoke(ctx, playlist, slot)
}

// invoke fires the external worker for a dispatched slot, retrying up to the
// slot's retry budget. A slot that exhausts its budget fails the playlist
// rather than leaving it waiting for a completion that will never come.
func (e *Engine) invoke(ctx context.Context, playlist *models.Playlist, slot models.SlotSnapshot) error {
	handle := slot.Plugin.Handle
	attempts := slot.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = e.invoker.Invoke(ctx, handle, playlist)
		if lastErr == nil {
			e.logger.Info("Step dispatched",
				logging.Field{Key: "playlist", Value: playlist.Slug},
				logging.Field{Key: "handle", Value: handle})
			return nil
		}
		e.logger.Warn("Worker invocation failed",
			logging.Field{Key: "playlist", Value: playlist.Slug},
			logging.Field{Key: "handle", Value: handle},
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "error", Value: lastErr.Error()})
	}

	e.logger.Error("Step exhausted its retry budget, failing playlist", lastErr,
		logging.Field{Key: "playlist", Value: playlist.Slug},
		logging.Field{Key: "handle", Value: handle})
	return e.fail(playlist)
}

// advance completes the playlist when the queue is drained, otherwise
// dispatches the next step.
func (e *Engine) advance(ctx context.Context, playlist *models.Playlist) error {
	if len(playlist.Manifest.Sequence) == 0 {
		return e.complete(playlist)
	}
	return e.run(ctx, playlist)
}

func (e *Engine) complete(playlist *models.Playlist) error {
	playlist.Status = models.PlaylistStatusComplete
	playlist.NextStep = nil
	if err := e.store.UpdatePlaylist(playlist); err != nil {
		return err
	}
	e.logger.Info("Playlist complete", logging.Field{Key: "playlist", Value: playlist.Slug})
	e.notifier.RefreshPlaylists()
	return nil
}

func (e *Engine) fail(playlist *models.Playlist) error {
	playlist.Status = models.PlaylistStatusFailed
	if err := e.store.UpdatePlaylist(playlist); err != nil {
		return err
	}
	e.logger.Info("Playlist failed", logging.Field{Key: "playlist", Value: playlist.Slug})
	e.notifier.RefreshPlaylists()
	return nil
}
