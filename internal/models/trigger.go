package models

import (
	"encoding/json"
	"time"
)

// TriggerType distinguishes scheduled triggers from on-demand ones.
type TriggerType string

const (
	TriggerTypeOnDemand TriggerType = "ON_DEMAND"
	TriggerTypeSchedule TriggerType = "SCHEDULE"
)

// Trigger decides when a strategy runs. For SCHEDULE triggers the context
// carries a cron expression and the next execution timestamp that the
// scheduler advances after each fire; for ON_DEMAND it names the worker
// allowed to invoke it.
type Trigger struct {
	ID         int64                  `json:"id"`
	StrategyID int64                  `json:"strategy_id"`
	Strategy   *Strategy              `json:"strategy,omitempty"`
	Type       TriggerType            `json:"type"`
	Context    map[string]interface{} `json:"context"`
}

// ScheduleContext is the typed view of a SCHEDULE trigger's context.
type ScheduleContext struct {
	Cron          string    `json:"cron"`
	NextExecution time.Time `json:"next_execution"`
	IsBeta        bool      `json:"isBeta"`
}

// ScheduleContext decodes the trigger context into its schedule form.
func (t *Trigger) ScheduleContext() (ScheduleContext, error) {
	raw, err := json.Marshal(t.Context)
	if err != nil {
		return ScheduleContext{}, err
	}
	var sc ScheduleContext
	if err := json.Unmarshal(raw, &sc); err != nil {
		return ScheduleContext{}, err
	}
	return sc, nil
}

// IsBeta reports whether the trigger belongs to the beta population.
func (t *Trigger) IsBeta() bool {
	beta, _ := t.Context["isBeta"].(bool)
	return beta
}

// WithNextExecution returns a copy of the trigger context with the next
// execution timestamp replaced.
func (t *Trigger) WithNextExecution(next time.Time) map[string]interface{} {
	ctx := make(map[string]interface{}, len(t.Context)+1)
	for k, v := range t.Context {
		ctx[k] = v
	}
	ctx["next_execution"] = next.UTC().Format(time.RFC3339)
	return ctx
}
