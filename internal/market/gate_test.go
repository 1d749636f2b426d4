package market

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate(GateConfig{
		Timezone:  "America/New_York",
		OpenHour:  9,
		CloseHour: 16,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return gate
}

func eastern(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestGateOpenDuringWeekdaySession(t *testing.T) {
	gate := newTestGate(t)

	// 2026-03-04 is a Wednesday
	assert.True(t, gate.Open(eastern(t, 2026, 3, 4, 9, 0)), "open boundary is inclusive")
	assert.True(t, gate.Open(eastern(t, 2026, 3, 4, 12, 30)))
	assert.True(t, gate.Open(eastern(t, 2026, 3, 4, 15, 59)))
}

func TestGateClosedOutsideHours(t *testing.T) {
	gate := newTestGate(t)

	assert.False(t, gate.Open(eastern(t, 2026, 3, 4, 8, 59)))
	assert.False(t, gate.Open(eastern(t, 2026, 3, 4, 16, 0)), "close boundary is exclusive")
	assert.False(t, gate.Open(eastern(t, 2026, 3, 4, 23, 0)))
}

func TestGateClosedOnWeekends(t *testing.T) {
	gate := newTestGate(t)

	// 2026-03-07 is a Saturday, 2026-03-08 a Sunday
	assert.False(t, gate.Open(eastern(t, 2026, 3, 7, 12, 0)))
	assert.False(t, gate.Open(eastern(t, 2026, 3, 8, 12, 0)))
}

func TestGateConvertsToReferenceTimezone(t *testing.T) {
	gate := newTestGate(t)

	// 15:00 UTC on 2026-03-04 is 10:00 in New York (EST)
	assert.True(t, gate.Open(time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)))
	// 02:00 UTC is 21:00 the previous evening in New York
	assert.False(t, gate.Open(time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)))
}

func TestGateRejectsBadConfig(t *testing.T) {
	_, err := NewGate(GateConfig{Timezone: "Mars/Olympus", OpenHour: 9, CloseHour: 16})
	assert.Error(t, err)

	_, err = NewGate(GateConfig{Timezone: "UTC", OpenHour: 16, CloseHour: 9})
	assert.Error(t, err)

	_, err = NewGate(GateConfig{Timezone: "UTC", OpenHour: -1, CloseHour: 9})
	assert.Error(t, err)
}
