package app

import (
	"context"
	"fmt"

	"pulse-engine/internal/engine"
	"pulse-engine/internal/notify"
	"pulse-engine/internal/sink"
	"pulse-engine/internal/workers"
)

func (app *App) initializeEngine(ctx context.Context) error {
	invoker, err := workers.NewLambdaInvoker(ctx, &workers.Config{
		Region:          app.Config.AWSRegion,
		AccessKeyID:     app.Config.AWSAccessKeyID,
		SecretAccessKey: app.Config.AWSSecretAccessKey,
		SessionToken:    app.Config.AWSSessionToken,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize worker invoker: %w", err)
	}
	app.Invoker = invoker

	var notifier notify.Notifier = notify.NoopNotifier{}
	if app.Config.RefreshTopicARN != "" {
		snsNotifier, err := notify.NewSNSNotifier(ctx, &notify.Config{
			Region:          app.Config.AWSRegion,
			TopicARN:        app.Config.RefreshTopicARN,
			AccessKeyID:     app.Config.AWSAccessKeyID,
			SecretAccessKey: app.Config.AWSSecretAccessKey,
			SessionToken:    app.Config.AWSSessionToken,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize refresh notifier: %w", err)
		}
		notifier = snsNotifier
	}

	app.Engine = engine.New(app.Storage, app.Invoker, notifier, app.Locks, app.Config.IsBeta)
	app.Engine.RegisterOutputHook(sink.MeasurementMarker, sink.Hook(sink.NewLogSink()))
	return nil
}
