package app

import (
	"context"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/config"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/locks"
	"pulse-engine/internal/redis"
	"pulse-engine/internal/scheduler"
	"pulse-engine/internal/storage"
	"pulse-engine/internal/workers"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	Locks       locks.Manager
	RedisClient *redis.Client
	Invoker     workers.Invoker
	Engine      *engine.Engine
	Scheduler   *scheduler.Scheduler
	Watchdog    *engine.Watchdog
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeLocks(); err != nil {
		return nil, err
	}

	if err := app.initializeEngine(ctx); err != nil {
		return nil, err
	}

	app.Scheduler = scheduler.New(app.Storage, app.Engine, cfg.SchedulerInterval)

	if cfg.WatchdogEnabled {
		app.Watchdog = engine.NewWatchdog(app.Engine, cfg.WatchdogTimeout, cfg.SchedulerInterval)
	}

	return app, nil
}

// Start launches the background loops.
func (app *App) Start() {
	app.Scheduler.Start()
	if app.Watchdog != nil {
		app.Watchdog.Start()
	}
}

// Shutdown stops the background loops.
func (app *App) Shutdown(ctx context.Context) error {
	app.Scheduler.Stop()
	if app.Watchdog != nil {
		app.Watchdog.Stop()
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Locks != nil {
		app.Locks.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
	if app.Storage != nil {
		app.Storage.Close()
	}
}
