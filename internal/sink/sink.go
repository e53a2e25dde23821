// Package sink receives measurement output produced by pipeline workers.
// Worker output whose invocation handle contains MeasurementMarker is routed
// here before the playlist's advance decision.
package sink

import (
	"context"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/models"
)

// MeasurementMarker routes a plugin's output to the measurement sink when it
// appears in the plugin's invocation handle.
const MeasurementMarker = "measure"

// Sink materializes a single worker output as a measurement record.
type Sink interface {
	Record(ctx context.Context, playlistSlug, handle string, output interface{}) error
}

// Hook adapts a Sink to the engine's output hook signature.
func Hook(s Sink) engine.OutputHook {
	return func(ctx context.Context, playlist *models.Playlist, handle string, output interface{}) error {
		return s.Record(ctx, playlist.Slug, handle, output)
	}
}

// LogSink records measurements to the structured log. It stands in where no
// dedicated measurement store is attached.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{
		logger: logging.WithFields(logging.Field{Key: "component", Value: "sink"}),
	}
}

func (s *LogSink) Record(ctx context.Context, playlistSlug, handle string, output interface{}) error {
	s.logger.Info("Measurement recorded",
		logging.Field{Key: "playlist", Value: playlistSlug},
		logging.Field{Key: "handle", Value: handle},
		logging.Field{Key: "output", Value: output})
	return nil
}
