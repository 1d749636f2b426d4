package database

import (
	"fmt"
	"time"
)

// TimeFormat is the canonical UTC layout for TIMESTAMP columns. Fixed
// width, so lexicographic order matches chronological order.
const TimeFormat = "2006-01-02 15:04:05.000"

// FormatTime renders t for storage
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime reads a stored timestamp back
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
