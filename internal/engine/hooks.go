package engine

import (
	"context"
	"strings"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/models"
)

// OutputHook is a side effect applied to a worker's output before the
// advance decision, such as materializing a measurement record. Hooks are
// matched by a substring of the plugin's invocation handle.
type OutputHook func(ctx context.Context, playlist *models.Playlist, handle string, output interface{}) error

type outputHook struct {
	marker string
	fn     OutputHook
}

// RegisterOutputHook attaches a hook to every plugin whose invocation handle
// contains marker. Hooks run in registration order; hook errors are logged
// and do not block the pipeline.
func (e *Engine) RegisterOutputHook(marker string, fn OutputHook) {
	e.hooks = append(e.hooks, outputHook{marker: marker, fn: fn})
}

func (e *Engine) applyHooks(ctx context.Context, playlist *models.Playlist, handle string, output interface{}) {
	for _, hook := range e.hooks {
		if !strings.Contains(handle, hook.marker) {
			continue
		}
		if err := hook.fn(ctx, playlist, handle, output); err != nil {
			e.logger.Warn("Output hook failed",
				logging.Field{Key: "playlist", Value: playlist.Slug},
				logging.Field{Key: "handle", Value: handle},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
