package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextExecution(t *testing.T) {
	t.Run("AnchoredOnScheduledTime", func(t *testing.T) {
		// Hourly schedule, fired a little late: the next occurrence is
		// computed from the scheduled time, not from now, so the cadence
		// does not drift.
		previous := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		now := time.Date(2026, 3, 1, 10, 0, 42, 0, time.UTC)

		next, err := NextExecution("0 * * * *", previous, now)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), next)
	})

	t.Run("RollsForwardPastMissedOccurrences", func(t *testing.T) {
		// After six hours of downtime the trigger fires once and lands on
		// the next future occurrence instead of replaying every miss.
		previous := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		now := time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)

		next, err := NextExecution("0 * * * *", previous, now)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC), next)
	})

	t.Run("EveryFiveMinutes", func(t *testing.T) {
		previous := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
		now := time.Date(2026, 3, 1, 10, 5, 1, 0, time.UTC)

		next, err := NextExecution("*/5 * * * *", previous, now)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC), next)
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		_, err := NextExecution("not a cron", time.Now(), time.Now())
		assert.Error(t, err)
	})
}
