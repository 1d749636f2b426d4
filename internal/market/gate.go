package market

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Gate is a cheap, approximate session predicate: a weekday check plus an
// hour range in a fixed reference timezone. It deliberately ignores
// holidays; the invoked remote action performs its own authoritative
// check. The gate only trims call volume during predictably closed
// windows.
type Gate struct {
	location  *time.Location
	openHour  int
	closeHour int
	log       zerolog.Logger
}

// GateConfig holds gate configuration
type GateConfig struct {
	Timezone  string // IANA name, e.g. "America/New_York"
	OpenHour  int    // inclusive, local time
	CloseHour int    // exclusive, local time
	Log       zerolog.Logger
}

// NewGate creates a session gate for the given reference timezone
func NewGate(cfg GateConfig) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid session window %d-%d", cfg.OpenHour, cfg.CloseHour)
	}

	return &Gate{
		location:  loc,
		openHour:  cfg.OpenHour,
		closeHour: cfg.CloseHour,
		log:       cfg.Log.With().Str("component", "market_gate").Logger(),
	}, nil
}

// Open reports whether the reference market session is open at t.
// Weekdays only, hour range [open, close) in the reference timezone.
func (g *Gate) Open(t time.Time) bool {
	local := t.In(g.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	hour := local.Hour()
	return hour >= g.openHour && hour < g.closeHour
}
