package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder tracks starts and outcomes in memory, mirroring the
// streak rules of the real recorder.
type fakeRecorder struct {
	mu       sync.Mutex
	starts   []string // job ids in RecordStart order
	outcomes []RunOutcome
	streaks  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{streaks: make(map[string]int)}
}

func (f *fakeRecorder) RecordStart(runID, jobID string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, jobID)
	return nil
}

func (f *fakeRecorder) RecordOutcome(o RunOutcome) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	if o.Status == StatusError {
		f.streaks[o.JobID]++
	} else {
		f.streaks[o.JobID] = 0
	}
	return f.streaks[o.JobID], nil
}

func (f *fakeRecorder) outcomeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outcomes)
}

func (f *fakeRecorder) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeRecorder) lastOutcome() RunOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[len(f.outcomes)-1]
}

type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAlerter) JobFailureStreak(jobID string, streak int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", jobID, streak))
}

func (f *fakeAlerter) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestDispatcher(t *testing.T, registry *Registry, rec Recorder, alerter Alerter) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherConfig{
		Registry: registry,
		Recorder: rec,
		Alerter:  alerter,
		Log:      zerolog.Nop(),
	})
}

func waitOutcomes(t *testing.T, rec *fakeRecorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return rec.outcomeCount() >= n },
		2*time.Second, 5*time.Millisecond)
}

func TestTickRunsDueJobAndRecordsSuccess(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "ok-job", schedule: Cron("0 * * * *"), run: func() (string, error) {
			return "synced 12 rows", nil
		}}, Options{}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	d.Tick(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	waitOutcomes(t, rec, 1)

	out := rec.lastOutcome()
	assert.Equal(t, "ok-job", out.JobID)
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, "synced 12 rows", out.Summary)
	assert.False(t, out.CompletedAt.Before(out.StartedAt))
}

func TestTickSkipsNotDueJobs(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "hourly", schedule: Cron("0 * * * *")}, Options{}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	d.Tick(time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC))
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, rec.startCount())
}

func TestConcurrencyInvariantSkipsRunningJob(t *testing.T) {
	release := make(chan struct{})
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "slow", schedule: Every(time.Minute), run: func() (string, error) {
			<-release
			return "finally", nil
		}}, Options{}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	tick := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	d.Tick(tick)
	require.Eventually(t, func() bool { return rec.startCount() == 1 },
		time.Second, 5*time.Millisecond)

	// Still running: the next two ticks must skip, not queue
	d.Tick(tick.Add(time.Minute))
	d.Tick(tick.Add(2 * time.Minute))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.startCount())
	assert.Equal(t, []string{"slow"}, d.Running())

	close(release)
	waitOutcomes(t, rec, 1)
	assert.Empty(t, d.Running())

	// Released: due again, runs again
	d.Tick(tick.Add(3 * time.Minute))
	waitOutcomes(t, rec, 2)
	assert.Equal(t, 2, rec.startCount())
}

func TestPanicIsCaughtAndRecordedAsError(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "panicky", schedule: Every(time.Minute), run: func() (string, error) {
			panic("boom")
		}}, Options{}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	d.Tick(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	waitOutcomes(t, rec, 1)

	out := rec.lastOutcome()
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Summary, "panic")
}

func TestTimeoutRecordedAsFailure(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "stuck", schedule: Every(time.Minute), run: func() (string, error) {
			time.Sleep(2 * time.Second)
			return "too late", nil
		}}, Options{Timeout: 50 * time.Millisecond}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	d.Tick(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	waitOutcomes(t, rec, 1)

	out := rec.lastOutcome()
	assert.Equal(t, StatusError, out.Status)
	assert.Contains(t, out.Summary, "timeout")
}

func TestFailureStreakEscalation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "flaky", schedule: Every(time.Minute), run: func() (string, error) {
			return "", errStub
		}}, Options{StreakThreshold: 3}))

	rec := newFakeRecorder()
	alerter := &fakeAlerter{}
	d := newTestDispatcher(t, registry, rec, alerter)

	tick := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		d.Tick(tick.Add(time.Duration(i) * time.Minute))
		waitOutcomes(t, rec, i+1)
	}

	// Streak walked 0 -> 1 -> 2 -> 3; the alert fires on the third failure
	assert.Equal(t, []string{"flaky:3"}, alerter.all())
}

func TestRunNowHonorsInflightInvariant(t *testing.T) {
	release := make(chan struct{})
	registry := NewRegistry()
	require.NoError(t, registry.Register(
		&stubJob{id: "manual", schedule: Cron("0 0 1 1 *"), run: func() (string, error) {
			<-release
			return "ok", nil
		}}, Options{}))

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	require.NoError(t, d.RunNow("manual"))
	require.Eventually(t, func() bool { return rec.startCount() == 1 },
		time.Second, 5*time.Millisecond)

	err := d.RunNow("manual")
	assert.Error(t, err, "second manual run while in flight must be refused")

	assert.Error(t, d.RunNow("no-such-job"))

	close(release)
	waitOutcomes(t, rec, 1)
}

func TestDifferentJobsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	registry := NewRegistry()
	for _, id := range []string{"one", "two", "three"} {
		id := id
		require.NoError(t, registry.Register(
			&stubJob{id: id, schedule: Every(time.Minute), run: func() (string, error) {
				<-release
				return id, nil
			}}, Options{}))
	}

	rec := newFakeRecorder()
	d := newTestDispatcher(t, registry, rec, nil)

	d.Tick(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	require.Eventually(t, func() bool { return rec.startCount() == 3 },
		time.Second, 5*time.Millisecond)
	assert.Len(t, d.Running(), 3)

	close(release)
	waitOutcomes(t, rec, 3)
	assert.Empty(t, d.Running())
}
