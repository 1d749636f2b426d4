package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatcher(t *testing.T, s Schedule) Matcher {
	t.Helper()
	m, err := s.Matcher()
	require.NoError(t, err)
	return m
}

func minute(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestCronHourlyDueOnlyAtMinuteZero(t *testing.T) {
	m := mustMatcher(t, Cron("0 * * * *"))

	for hour := 0; hour < 24; hour++ {
		assert.True(t, m.DueAt(minute(2026, 3, 4, hour, 0)), "should be due at %02d:00", hour)
	}
	for _, min := range []int{1, 15, 30, 59} {
		assert.False(t, m.DueAt(minute(2026, 3, 4, 10, min)), "should not be due at 10:%02d", min)
	}
}

func TestCronFieldSemantics(t *testing.T) {
	tests := []struct {
		name string
		expr string
		due  []time.Time
		not  []time.Time
	}{
		{
			name: "exact value",
			expr: "30 14 * * *",
			due:  []time.Time{minute(2026, 3, 4, 14, 30)},
			not:  []time.Time{minute(2026, 3, 4, 14, 29), minute(2026, 3, 4, 15, 30)},
		},
		{
			name: "wildcard minute",
			expr: "* 9 * * *",
			due:  []time.Time{minute(2026, 3, 4, 9, 0), minute(2026, 3, 4, 9, 59)},
			not:  []time.Time{minute(2026, 3, 4, 10, 0)},
		},
		{
			name: "comma list",
			expr: "0,15,45 * * * *",
			due:  []time.Time{minute(2026, 3, 4, 7, 0), minute(2026, 3, 4, 7, 15), minute(2026, 3, 4, 7, 45)},
			not:  []time.Time{minute(2026, 3, 4, 7, 30)},
		},
		{
			name: "range",
			expr: "10-12 * * * *",
			due:  []time.Time{minute(2026, 3, 4, 3, 10), minute(2026, 3, 4, 3, 11), minute(2026, 3, 4, 3, 12)},
			not:  []time.Time{minute(2026, 3, 4, 3, 9), minute(2026, 3, 4, 3, 13)},
		},
		{
			name: "step",
			expr: "*/20 * * * *",
			due:  []time.Time{minute(2026, 3, 4, 5, 0), minute(2026, 3, 4, 5, 20), minute(2026, 3, 4, 5, 40)},
			not:  []time.Time{minute(2026, 3, 4, 5, 10), minute(2026, 3, 4, 5, 30)},
		},
		{
			name: "day of week",
			// 2026-03-04 is a Wednesday
			expr: "0 9 * * 3",
			due:  []time.Time{minute(2026, 3, 4, 9, 0)},
			not:  []time.Time{minute(2026, 3, 5, 9, 0)},
		},
		{
			name: "day of month and month",
			expr: "0 0 1 7 *",
			due:  []time.Time{minute(2026, 7, 1, 0, 0)},
			not:  []time.Time{minute(2026, 7, 2, 0, 0), minute(2026, 8, 1, 0, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMatcher(t, Cron(tt.expr))
			for _, at := range tt.due {
				assert.True(t, m.DueAt(at), "%s should be due at %s", tt.expr, at)
			}
			for _, at := range tt.not {
				assert.False(t, m.DueAt(at), "%s should not be due at %s", tt.expr, at)
			}
		})
	}
}

func TestCronDeterministic(t *testing.T) {
	m := mustMatcher(t, Cron("*/5 * * * *"))
	at := minute(2026, 3, 4, 12, 35)

	first := m.DueAt(at)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.DueAt(at))
	}
	// Sub-minute offsets within the same tick do not change the decision
	assert.Equal(t, first, m.DueAt(at.Add(30*time.Second)))
}

func TestIntervalMatcher(t *testing.T) {
	m := mustMatcher(t, Every(15*time.Minute))

	// Anchored to the epoch: minutes divisible by 15 are due
	assert.True(t, m.DueAt(minute(2026, 3, 4, 10, 0)))
	assert.True(t, m.DueAt(minute(2026, 3, 4, 10, 15)))
	assert.False(t, m.DueAt(minute(2026, 3, 4, 10, 7)))
	assert.False(t, m.DueAt(minute(2026, 3, 4, 10, 16)))
}

func TestIntervalEveryMinuteAlwaysDue(t *testing.T) {
	m := mustMatcher(t, Every(time.Minute))
	for _, min := range []int{0, 1, 13, 59} {
		assert.True(t, m.DueAt(minute(2026, 3, 4, 8, min)))
	}
}

func TestInvalidSchedules(t *testing.T) {
	_, err := Cron("not a cron").Matcher()
	assert.Error(t, err)

	_, err = Cron("* * * *").Matcher()
	assert.Error(t, err, "four fields is not a valid expression")

	_, err = Every(30 * time.Second).Matcher()
	assert.Error(t, err, "sub-minute intervals are not supported")

	_, err = Every(90 * time.Second).Matcher()
	assert.Error(t, err, "intervals must be whole minutes")

	_, err = Schedule{Kind: "unknown", Expr: "x"}.Matcher()
	assert.Error(t, err)
}
