package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status of a completed execution
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// RunOutcome describes one finished (or timed-out) job run.
type RunOutcome struct {
	RunID       string
	JobID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Status      Status
	Summary     string
}

// Recorder persists execution records and maintains per-job failure
// streaks. RecordOutcome returns the streak after the update.
type Recorder interface {
	RecordStart(runID, jobID string, startedAt time.Time) error
	RecordOutcome(outcome RunOutcome) (consecutiveFailures int, err error)
}

// Alerter receives escalation signals for jobs whose failure streak
// crossed their threshold. Advisory only.
type Alerter interface {
	JobFailureStreak(jobID string, streak int)
}

// Dispatcher drives minute-resolution ticks over the registry and starts
// due jobs. It owns all mutable scheduler state and exposes an explicit
// start/tick/stop lifecycle.
type Dispatcher struct {
	registry *Registry
	recorder Recorder
	alerter  Alerter
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// DispatcherConfig holds dispatcher dependencies
type DispatcherConfig struct {
	Registry *Registry
	Recorder Recorder
	Alerter  Alerter
	Log      zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		registry: cfg.Registry,
		recorder: cfg.Recorder,
		alerter:  cfg.Alerter,
		log:      cfg.Log.With().Str("component", "dispatcher").Logger(),
		now:      now,
		inflight: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Start begins ticking on minute boundaries
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
	d.log.Info().Int("jobs", len(d.registry.All())).Msg("Dispatcher started")
}

// Stop halts ticking and waits for in-flight runs to be recorded
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
	d.log.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		now := d.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-d.stop:
			timer.Stop()
			return
		case <-timer.C:
			d.Tick(d.now())
		}
	}
}

// Tick scans the registry once and starts every due job that is not
// already running. A still-running job whose schedule matches again is
// skipped for this tick, not queued: slow jobs throttle themselves.
func (d *Dispatcher) Tick(now time.Time) {
	for _, def := range d.registry.All() {
		if !def.DueAt(now) {
			continue
		}

		jobID := def.Job.ID()
		if !d.tryAcquire(jobID) {
			d.log.Warn().Str("job", jobID).Msg("Previous run still in flight, skipping tick")
			continue
		}

		d.wg.Add(1)
		go d.execute(def, now)
	}
}

// RunNow starts a job immediately, outside its schedule. The at-most-one
// in-flight invariant still holds.
func (d *Dispatcher) RunNow(jobID string) error {
	def, ok := d.registry.Get(jobID)
	if !ok {
		return fmt.Errorf("unknown job %q", jobID)
	}
	if !d.tryAcquire(jobID) {
		return fmt.Errorf("job %q is already running", jobID)
	}

	d.log.Info().Str("job", jobID).Msg("Running job immediately")
	d.wg.Add(1)
	go d.execute(def, d.now())
	return nil
}

// Running returns the ids of jobs currently in flight, sorted
func (d *Dispatcher) Running() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.inflight))
	for id := range d.inflight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Dispatcher) tryAcquire(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[jobID] {
		return false
	}
	d.inflight[jobID] = true
	return true
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, jobID)
}

type runResult struct {
	summary string
	err     error
}

// execute runs one job to completion, timeout, or panic, and records the
// outcome. Nothing here is allowed to propagate: a misbehaving job body
// must never stop the dispatcher.
func (d *Dispatcher) execute(def *Definition, startedAt time.Time) {
	defer d.wg.Done()

	jobID := def.Job.ID()
	defer d.release(jobID)

	runID := uuid.NewString()
	log := d.log.With().Str("job", jobID).Str("run_id", runID).Logger()

	if err := d.recorder.RecordStart(runID, jobID, startedAt); err != nil {
		log.Error().Err(err).Msg("Failed to record job start")
	}

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		summary, err := def.Job.Run()
		done <- runResult{summary: summary, err: err}
	}()

	timer := time.NewTimer(def.Timeout)
	defer timer.Stop()

	var status Status
	var summary string
	select {
	case res := <-done:
		if res.err != nil {
			status = StatusError
			summary = res.err.Error()
		} else {
			status = StatusOK
			summary = res.summary
		}
	case <-timer.C:
		// The body is abandoned: an in-flight remote call may still
		// complete server-side, but the engine stops tracking it
		status = StatusError
		summary = fmt.Sprintf("timeout after %s", def.Timeout)
	}

	completedAt := d.now()
	streak, err := d.recorder.RecordOutcome(RunOutcome{
		RunID:       runID,
		JobID:       jobID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Status:      status,
		Summary:     summary,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record job outcome")
	}

	duration := completedAt.Sub(startedAt)
	if status == StatusOK {
		log.Info().Dur("duration", duration).Str("summary", summary).Msg("Job completed")
		return
	}

	log.Error().Dur("duration", duration).Str("summary", summary).Msg("Job failed")
	if d.alerter != nil && streak >= def.StreakThreshold {
		d.alerter.JobFailureStreak(jobID, streak)
	}
}
