package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"pulse-engine/internal/common/errors"
)

// NextExecution computes the occurrence after the previously scheduled time,
// rolled forward past any occurrences already in the past. Anchoring on the
// scheduled time rather than wall clock keeps the cadence drift-free; rolling
// forward keeps a trigger from firing once per missed occurrence after
// downtime.
func NextExecution(expression string, previous, now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return time.Time{}, errors.ValidationError("invalid cron expression: " + expression)
	}

	next := schedule.Next(previous)
	for !next.After(now) {
		next = schedule.Next(next)
	}
	return next, nil
}
