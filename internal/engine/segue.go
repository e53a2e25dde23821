package engine

import (
	"context"
	"fmt"

	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/models"
)

// Segue processes an asynchronous completion message from an external
// worker. The full read-modify-write runs under the playlist's lock, so two
// completions for the same run cannot lose each other's updates.
//
// Unknown playlist ids and unknown plugin keys are hard errors and surface
// to the delivery layer, which may redeliver. Completions for the other
// deployment mode, and known-key completions for playlists that already
// reached a terminal state, are discarded without error. The key is
// resolved before the terminal check, so a bad key is rejected even when
// the playlist is finished.
func (e *Engine) Segue(ctx context.Context, msg SegueMessage) error {
	return e.locks.WithLock(ctx, playlistLockKey(msg.ID), func() error {
		return e.segue(ctx, msg)
	})
}

func (e *Engine) segue(ctx context.Context, msg SegueMessage) error {
	playlist, err := e.store.GetPlaylist(msg.ID)
	if err != nil {
		return err
	}

	if playlist.Manifest.IsBeta() != e.beta {
		e.logger.Debug("Discarding completion for other deployment mode",
			logging.Field{Key: "playlist", Value: playlist.Slug})
		return nil
	}

	plugin, err := e.store.GetPluginByKey(msg.Key)
	if err != nil {
		return err
	}

	if playlist.Status.Terminal() {
		e.logger.Debug("Discarding completion for terminal playlist",
			logging.Field{Key: "playlist", Value: playlist.Slug},
			logging.Field{Key: "status", Value: string(playlist.Status)})
		return nil
	}

	slot, ok := playlist.Manifest.ExecutedSlot(plugin.Handle)
	if !ok {
		return errors.NotFoundError(
			fmt.Sprintf("no dispatched step for plugin %q in playlist %s", plugin.Handle, playlist.Slug))
	}

	if msg.Failed {
		e.logger.Warn("Worker reported failure",
			logging.Field{Key: "playlist", Value: playlist.Slug},
			logging.Field{Key: "handle", Value: plugin.Handle})
		return e.fail(playlist)
	}

	var outputCount int
	if plugin.Type == models.PluginTypeSource {
		playlist.Manifest = playlist.Manifest.SetURL(msg.Output)
	} else {
		playlist.Manifest, outputCount = playlist.Manifest.AppendOutput(plugin.Handle, msg.Output)
	}

	e.applyHooks(ctx, playlist, plugin.Handle, msg.Output)

	if err := e.store.UpdatePlaylist(playlist); err != nil {
		return err
	}

	if outputCount >= slot.MinOutputs {
		return e.advance(ctx, playlist)
	}

	e.logger.Debug("Awaiting further completions",
		logging.Field{Key: "playlist", Value: playlist.Slug},
		logging.Field{Key: "handle", Value: plugin.Handle},
		logging.Field{Key: "outputs", Value: outputCount},
		logging.Field{Key: "required", Value: slot.MinOutputs})
	return nil
}
