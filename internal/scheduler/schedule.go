package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind distinguishes cron expressions from fixed intervals
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Schedule describes when a job is due, at minute resolution.
type Schedule struct {
	Kind Kind
	Expr string // five-field cron expression, or a duration like "15m"
}

// Cron builds a five-field cron schedule (minute, hour, day-of-month,
// month, day-of-week; supports *, values, lists, ranges and steps).
func Cron(expr string) Schedule {
	return Schedule{Kind: KindCron, Expr: expr}
}

// Every builds a fixed-interval schedule aligned to wall-clock minutes.
func Every(d time.Duration) Schedule {
	return Schedule{Kind: KindInterval, Expr: d.String()}
}

// String returns a human-readable form of the schedule
func (s Schedule) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Expr
	}
	return s.Expr
}

// Matcher answers whether a schedule is due at a given minute. Matchers
// are deterministic: the same minute always yields the same answer.
type Matcher interface {
	DueAt(t time.Time) bool
}

// Matcher parses the schedule into its matcher
func (s Schedule) Matcher() (Matcher, error) {
	switch s.Kind {
	case KindCron:
		sched, err := cron.ParseStandard(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", s.Expr, err)
		}
		return &cronMatcher{sched: sched}, nil

	case KindInterval:
		d, err := time.ParseDuration(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", s.Expr, err)
		}
		minutes := int64(d / time.Minute)
		if minutes < 1 || d%time.Minute != 0 {
			return nil, fmt.Errorf("interval %q must be a whole number of minutes", s.Expr)
		}
		return &intervalMatcher{minutes: minutes}, nil

	default:
		return nil, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// cronMatcher evaluates a parsed cron expression against a single minute.
type cronMatcher struct {
	sched cron.Schedule
}

func (m *cronMatcher) DueAt(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	// The expression is due at this minute iff the next activation after
	// the previous second lands exactly on it
	return m.sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// intervalMatcher fires every N wall-clock minutes, anchored to the epoch
// so the due decision is deterministic across restarts.
type intervalMatcher struct {
	minutes int64
}

func (m *intervalMatcher) DueAt(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return (minute.Unix()/60)%m.minutes == 0
}
