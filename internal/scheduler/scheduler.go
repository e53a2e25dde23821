// Package scheduler polls schedule triggers and starts pipelines when their
// next execution time has passed.
package scheduler

import (
	"context"
	"time"

	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/models"
	"pulse-engine/internal/storage"
)

// Scheduler scans for due schedule triggers on a fixed interval. For each
// due trigger it advances next_execution and persists it before starting the
// pipeline, so an overlapping scan cannot fire the same occurrence twice.
type Scheduler struct {
	store    storage.Storage
	engine   *engine.Engine
	interval time.Duration
	logger   logging.Logger

	// now is swappable in tests
	now func() time.Time

	stop chan struct{}
	done chan struct{}
}

// New creates a scheduler bound to the engine's deployment mode.
func New(store storage.Storage, eng *engine.Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		engine:   eng,
		interval: interval,
		logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "scheduler"}),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.Tick(context.Background()); err != nil {
					s.logger.Warn("Scheduler tick failed",
						logging.Field{Key: "error", Value: err.Error()})
				}
			}
		}
	}()
}

// Stop terminates the poll loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Tick runs one scan. Exposed for tests.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()
	triggers, err := s.store.FindDueScheduleTriggers(now)
	if err != nil {
		return err
	}

	for _, trigger := range triggers {
		if trigger.IsBeta() != s.engine.Beta() {
			continue
		}
		if err := s.fire(ctx, trigger, now); err != nil {
			s.logger.Error("Failed to fire trigger", err,
				logging.Field{Key: "trigger", Value: trigger.ID})
		}
	}
	return nil
}

// fire advances and persists the trigger's schedule, then starts the
// pipeline. The order matters: once next_execution has moved forward, the
// trigger is no longer due and cannot double-fire.
func (s *Scheduler) fire(ctx context.Context, trigger *models.Trigger, now time.Time) error {
	sc, err := trigger.ScheduleContext()
	if err != nil {
		return err
	}

	next, err := NextExecution(sc.Cron, sc.NextExecution, now)
	if err != nil {
		return err
	}

	if err := s.store.UpdateTriggerContext(trigger.ID, trigger.WithNextExecution(next)); err != nil {
		return err
	}

	s.logger.Info("Trigger fired",
		logging.Field{Key: "trigger", Value: trigger.ID},
		logging.Field{Key: "next_execution", Value: next.UTC().Format(time.RFC3339)})

	strategy := trigger.Strategy
	if strategy == nil {
		strategy, err = s.store.GetStrategy(trigger.StrategyID)
		if err != nil {
			return err
		}
	}

	initial := map[string]interface{}{
		models.ContextKeyBeta: sc.IsBeta,
	}
	triggerID := trigger.ID
	_, err = s.engine.Start(ctx, strategy, initial, &triggerID, nil)
	return err
}
