// Package engine drives pipeline execution: it materializes strategies into
// playlists, dispatches one step at a time to external workers, accumulates
// their asynchronous completions, and advances or fails the run.
package engine

import (
	"context"
	"fmt"
	"time"

	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/locks"
	"pulse-engine/internal/models"
	"pulse-engine/internal/notify"
	"pulse-engine/internal/storage"
	"pulse-engine/internal/workers"
)

// TriggerMessage starts a pipeline run for a named strategy. It arrives
// through the trigger endpoint, published either by the ad hoc worker or by
// any other authorized producer.
type TriggerMessage struct {
	URL          string `json:"url"`
	MembershipID *int64 `json:"membership_id,omitempty"`
	Strategy     string `json:"strategy"`
	IsBeta       bool   `json:"isBeta"`
}

// SegueMessage is an asynchronous completion report from an external worker.
// Key is the plugin's secret callback key; Output is a JSON object or string.
type SegueMessage struct {
	ID     int64       `json:"id"`
	Key    string      `json:"key"`
	Output interface{} `json:"output"`
	Failed bool        `json:"failed"`
}

// Engine orchestrates playlist execution. All mutations of a playlist row
// happen under that playlist's lock, so concurrent completions for the same
// run are serialized instead of racing on read-modify-write.
type Engine struct {
	store    storage.Storage
	invoker  workers.Invoker
	notifier notify.Notifier
	locks    locks.Manager
	logger   logging.Logger
	beta     bool
	hooks    []outputHook

	// now is swappable in tests
	now func() time.Time
}

// New creates an engine bound to one deployment mode. A beta engine only
// acts on beta triggers and completions; production traffic is discarded,
// and vice versa.
func New(store storage.Storage, invoker workers.Invoker, notifier notify.Notifier, lockManager locks.Manager, beta bool) *Engine {
	return &Engine{
		store:    store,
		invoker:  invoker,
		notifier: notifier,
		locks:    lockManager,
		logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "engine"}),
		beta:     beta,
		now:      time.Now,
	}
}

// Beta reports the engine's deployment mode.
func (e *Engine) Beta() bool {
	return e.beta
}

// Trigger resolves the named strategy and starts a playlist for it. Messages
// for the other deployment mode are discarded without error.
func (e *Engine) Trigger(ctx context.Context, msg TriggerMessage) (*models.Playlist, error) {
	if msg.IsBeta != e.beta {
		e.logger.Debug("Discarding trigger for other deployment mode",
			logging.Field{Key: "strategy", Value: msg.Strategy},
			logging.Field{Key: "isBeta", Value: msg.IsBeta})
		return nil, nil
	}
	if msg.Strategy == "" {
		return nil, errors.ValidationError("trigger message missing strategy")
	}

	strategy, err := e.store.GetStrategyBySlug(msg.Strategy)
	if err != nil {
		return nil, err
	}

	initial := map[string]interface{}{
		models.ContextKeyBeta: msg.IsBeta,
	}
	if msg.URL != "" {
		initial[models.ContextKeyURL] = msg.URL
	}

	return e.Start(ctx, strategy, initial, nil, msg.MembershipID)
}

func playlistLockKey(id int64) string {
	return fmt.Sprintf("playlist:%d", id)
}
