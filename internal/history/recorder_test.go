package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trader-ops/internal/database"
	"github.com/aristath/trader-ops/internal/scheduler"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "ops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewRecorder(db.Conn(), 5*time.Second, zerolog.Nop())
}

func record(t *testing.T, rec *Recorder, runID, jobID string, start time.Time, status scheduler.Status, summary string) int {
	t.Helper()
	require.NoError(t, rec.RecordStart(runID, jobID, start))
	streak, err := rec.RecordOutcome(scheduler.RunOutcome{
		RunID:       runID,
		JobID:       jobID,
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
		Status:      status,
		Summary:     summary,
	})
	require.NoError(t, err)
	return streak
}

func TestRecordStartAndOutcome(t *testing.T) {
	rec := newTestRecorder(t)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	streak := record(t, rec, "run-1", "price_collection", start, scheduler.StatusOK, "processed 42 records")
	assert.Zero(t, streak)

	records, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "price_collection", r.JobID)
	assert.Equal(t, start, r.StartedAt)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, start.Add(3*time.Second), *r.CompletedAt)
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "processed 42 records", r.ResultSummary)
	assert.Equal(t, int64(3000), r.DurationMs)
}

func TestFailureStreakTransitions(t *testing.T) {
	rec := newTestRecorder(t)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	// Three consecutive failures walk the streak 0 -> 1 -> 2 -> 3
	for i := 1; i <= 3; i++ {
		streak := record(t, rec, "run-"+string(rune('0'+i)), "flaky", start.Add(time.Duration(i)*time.Minute),
			scheduler.StatusError, "network error")
		assert.Equal(t, i, streak)
	}

	// A success resets to zero
	streak := record(t, rec, "run-ok", "flaky", start.Add(10*time.Minute), scheduler.StatusOK, "recovered")
	assert.Zero(t, streak)

	streaks, err := rec.Streaks()
	require.NoError(t, err)
	require.Len(t, streaks, 1)
	assert.Equal(t, "flaky", streaks[0].JobID)
	assert.Zero(t, streaks[0].ConsecutiveFailures)
}

func TestStreaksAreIndependentPerJob(t *testing.T) {
	rec := newTestRecorder(t)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, record(t, rec, "a1", "job_a", start, scheduler.StatusError, "boom"))
	assert.Equal(t, 0, record(t, rec, "b1", "job_b", start, scheduler.StatusOK, "fine"))
	assert.Equal(t, 2, record(t, rec, "a2", "job_a", start.Add(time.Minute), scheduler.StatusError, "boom"))
}

func TestRecentAndForJobOrdering(t *testing.T) {
	rec := newTestRecorder(t)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	record(t, rec, "r1", "a", start, scheduler.StatusOK, "first")
	record(t, rec, "r2", "b", start.Add(time.Minute), scheduler.StatusOK, "second")
	record(t, rec, "r3", "a", start.Add(2*time.Minute), scheduler.StatusError, "third")

	recent, err := rec.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].RunID)
	assert.Equal(t, "r2", recent[1].RunID)

	forA, err := rec.ForJob("a", 10)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, "r3", forA[0].RunID)
	assert.Equal(t, "r1", forA[1].RunID)

	// Runs for one job never overlap
	for _, r := range forA {
		require.NotNil(t, r.CompletedAt)
	}
	assert.True(t, forA[1].CompletedAt.Before(forA[0].StartedAt) || forA[1].CompletedAt.Equal(forA[0].StartedAt))
}

func TestLastCompletedRuns(t *testing.T) {
	rec := newTestRecorder(t)
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	record(t, rec, "r1", "a", start, scheduler.StatusOK, "one")
	record(t, rec, "r2", "a", start.Add(time.Hour), scheduler.StatusError, "two")

	// An open record (no completion) is ignored
	require.NoError(t, rec.RecordStart("r3", "b", start.Add(2*time.Hour)))

	last, err := rec.LastCompletedRuns()
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, start.Add(time.Hour).Add(3*time.Second), last["a"])
}
