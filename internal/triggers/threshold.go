package triggers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/database"
)

// Baseline is the accumulated-change counter and reset point for one
// threshold-triggered job.
type Baseline struct {
	JobID         string     `json:"job_id"`
	CurrentCount  int64      `json:"current_count"`
	Threshold     int64      `json:"threshold"`
	LastTriggerAt *time.Time `json:"last_trigger_at,omitempty"`
}

// BaselineRepository persists threshold baselines. Counter updates are
// single atomic statements so concurrent producers never lose increments.
type BaselineRepository struct {
	db      *sql.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewBaselineRepository creates a new baseline repository
func NewBaselineRepository(db *sql.DB, timeout time.Duration, log zerolog.Logger) *BaselineRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BaselineRepository{
		db:      db,
		timeout: timeout,
		log:     log.With().Str("repo", "baselines").Logger(),
	}
}

// Ensure creates the baseline row if missing and keeps its threshold in
// sync with configuration.
func (r *BaselineRepository) Ensure(jobID string, threshold int64) error {
	ctx, cancel := r.ctx()
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO threshold_baselines (job_id, current_count, threshold)
		 VALUES (?, 0, ?)
		 ON CONFLICT(job_id) DO UPDATE SET threshold = excluded.threshold`,
		jobID, threshold)
	if err != nil {
		return fmt.Errorf("failed to ensure baseline %s: %w", jobID, err)
	}
	return nil
}

// Get reads one baseline
func (r *BaselineRepository) Get(jobID string) (*Baseline, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var b Baseline
	var lastTrigger sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT job_id, current_count, threshold, last_trigger_at
		 FROM threshold_baselines WHERE job_id = ?`, jobID).
		Scan(&b.JobID, &b.CurrentCount, &b.Threshold, &lastTrigger)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", jobID, err)
	}

	if lastTrigger.Valid {
		t, err := database.ParseTime(lastTrigger.String)
		if err != nil {
			return nil, err
		}
		b.LastTriggerAt = &t
	}
	return &b, nil
}

// All returns every baseline, for the observability API
func (r *BaselineRepository) All() ([]Baseline, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, current_count, threshold, last_trigger_at
		 FROM threshold_baselines ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", err)
	}
	defer rows.Close()

	var baselines []Baseline
	for rows.Next() {
		var b Baseline
		var lastTrigger sql.NullString
		if err := rows.Scan(&b.JobID, &b.CurrentCount, &b.Threshold, &lastTrigger); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		if lastTrigger.Valid {
			t, err := database.ParseTime(lastTrigger.String)
			if err != nil {
				return nil, err
			}
			b.LastTriggerAt = &t
		}
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

// Increment adds delta to the accumulated-change counter in one atomic
// statement.
func (r *BaselineRepository) Increment(jobID string, delta int64) error {
	ctx, cancel := r.ctx()
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE threshold_baselines SET current_count = current_count + ? WHERE job_id = ?`,
		delta, jobID)
	if err != nil {
		return fmt.Errorf("failed to increment baseline %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no baseline registered for %s", jobID)
	}
	return nil
}

// Reset zeroes the counter and stamps the trigger time in a single
// idempotent statement, so a re-applied reset cannot double-trigger.
func (r *BaselineRepository) Reset(jobID string, at time.Time) error {
	ctx, cancel := r.ctx()
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`UPDATE threshold_baselines SET current_count = 0, last_trigger_at = ? WHERE job_id = ?`,
		database.FormatTime(at), jobID)
	if err != nil {
		return fmt.Errorf("failed to reset baseline %s: %w", jobID, err)
	}
	return nil
}

func (r *BaselineRepository) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

// Outcome of one threshold evaluation
type Outcome string

const (
	// OutcomeFired means the action ran and the baseline was reset
	OutcomeFired Outcome = "fired"
	// OutcomeSkipped means the counter had not reached the threshold
	OutcomeSkipped Outcome = "skipped"
	// OutcomePartial means the action ran but the baseline reset failed;
	// the action is not retried, the reset is retried on a later pass
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the action itself failed; the baseline is untouched
	OutcomeFailed Outcome = "failed"
)

// ThresholdTrigger acts only once enough change has accumulated. Each
// evaluation reads the baseline, fires the external action at or above
// the threshold, and resets the counter atomically.
type ThresholdTrigger struct {
	jobID  string
	repo   *BaselineRepository
	action func() error
	now    func() time.Time
	log    zerolog.Logger

	mu           sync.Mutex
	resetPending bool
}

// ThresholdTriggerConfig holds trigger dependencies
type ThresholdTriggerConfig struct {
	JobID  string
	Repo   *BaselineRepository
	Action func() error
	Now    func() time.Time // defaults to time.Now
	Log    zerolog.Logger
}

// NewThresholdTrigger creates a new threshold trigger
func NewThresholdTrigger(cfg ThresholdTriggerConfig) *ThresholdTrigger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ThresholdTrigger{
		jobID:  cfg.JobID,
		repo:   cfg.Repo,
		action: cfg.Action,
		now:    now,
		log:    cfg.Log.With().Str("trigger", cfg.JobID).Logger(),
	}
}

// Evaluate performs one pass. Below the threshold it is a recorded no-op.
// If a previous pass left the reset pending, the reset is retried first;
// the action is never re-fired for the same accumulation.
func (t *ThresholdTrigger) Evaluate() (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resetPending {
		if err := t.repo.Reset(t.jobID, t.now()); err != nil {
			return OutcomePartial, fmt.Errorf("baseline reset still failing: %w", err)
		}
		t.resetPending = false
		t.log.Info().Msg("Deferred baseline reset completed")
	}

	baseline, err := t.repo.Get(t.jobID)
	if err != nil {
		return OutcomeFailed, err
	}

	if baseline.CurrentCount < baseline.Threshold {
		t.log.Debug().
			Int64("count", baseline.CurrentCount).
			Int64("threshold", baseline.Threshold).
			Msg("Below threshold, skipping")
		return OutcomeSkipped, nil
	}

	t.log.Info().
		Int64("count", baseline.CurrentCount).
		Int64("threshold", baseline.Threshold).
		Msg("Threshold reached, firing action")

	if err := t.action(); err != nil {
		return OutcomeFailed, fmt.Errorf("action failed: %w", err)
	}

	if err := t.repo.Reset(t.jobID, t.now()); err != nil {
		// The action already ran; losing that fact would re-fire it on the
		// next pass, so defer the reset instead
		t.resetPending = true
		t.log.Error().Err(err).Msg("Action succeeded but baseline reset failed, deferring reset")
		return OutcomePartial, nil
	}

	return OutcomeFired, nil
}
