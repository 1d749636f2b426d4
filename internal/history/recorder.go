package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/database"
	"github.com/aristath/trader-ops/internal/scheduler"
)

// ExecutionRecord is one persisted job run. Append-only: completed
// records are never mutated.
type ExecutionRecord struct {
	RunID         string     `json:"run_id"`
	JobID         string     `json:"job_id"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Status        string     `json:"status,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
	DurationMs    int64      `json:"duration_ms"`
}

// FailureStreak is the current consecutive-failure count for one job
type FailureStreak struct {
	JobID               string    `json:"job_id"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Recorder persists execution records and failure streaks. It implements
// scheduler.Recorder; the execution-history and streak tables are read by
// the dashboard as external collaborators.
type Recorder struct {
	db      *sql.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewRecorder creates a new execution recorder
func NewRecorder(db *sql.DB, timeout time.Duration, log zerolog.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{
		db:      db,
		timeout: timeout,
		log:     log.With().Str("repo", "history").Logger(),
	}
}

// RecordStart writes the open execution record for a run
func (r *Recorder) RecordStart(runID, jobID string, startedAt time.Time) error {
	ctx, cancel := r.ctx()
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO executions (run_id, job_id, started_at) VALUES (?, ?, ?)`,
		runID, jobID, database.FormatTime(startedAt))
	if err != nil {
		return fmt.Errorf("failed to record start of %s: %w", jobID, err)
	}
	return nil
}

// RecordOutcome completes the execution record and updates the failure
// streak in one transaction: increment on error, reset to zero on ok.
// Returns the streak after the update.
func (r *Recorder) RecordOutcome(o scheduler.RunOutcome) (int, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outcome tx: %w", err)
	}
	defer tx.Rollback()

	durationMs := o.CompletedAt.Sub(o.StartedAt).Milliseconds()
	_, err = tx.ExecContext(ctx,
		`UPDATE executions
		 SET completed_at = ?, status = ?, result_summary = ?, duration_ms = ?
		 WHERE run_id = ? AND completed_at IS NULL`,
		database.FormatTime(o.CompletedAt), string(o.Status), o.Summary, durationMs, o.RunID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete execution record: %w", err)
	}

	now := database.FormatTime(o.CompletedAt)
	if o.Status == scheduler.StatusOK {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failure_streaks (job_id, consecutive_failures, updated_at)
			 VALUES (?, 0, ?)
			 ON CONFLICT(job_id) DO UPDATE SET consecutive_failures = 0, updated_at = excluded.updated_at`,
			o.JobID, now)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failure_streaks (job_id, consecutive_failures, updated_at)
			 VALUES (?, 1, ?)
			 ON CONFLICT(job_id) DO UPDATE SET consecutive_failures = consecutive_failures + 1, updated_at = excluded.updated_at`,
			o.JobID, now)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update failure streak: %w", err)
	}

	var streak int
	if err := tx.QueryRowContext(ctx,
		`SELECT consecutive_failures FROM failure_streaks WHERE job_id = ?`,
		o.JobID).Scan(&streak); err != nil {
		return 0, fmt.Errorf("failed to read failure streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outcome: %w", err)
	}
	return streak, nil
}

// Recent returns the most recent execution records across all jobs
func (r *Recorder) Recent(limit int) ([]ExecutionRecord, error) {
	return r.queryRecords(
		`SELECT run_id, job_id, started_at, completed_at, status, result_summary, duration_ms
		 FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
}

// ForJob returns the most recent execution records for one job
func (r *Recorder) ForJob(jobID string, limit int) ([]ExecutionRecord, error) {
	return r.queryRecords(
		`SELECT run_id, job_id, started_at, completed_at, status, result_summary, duration_ms
		 FROM executions WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`, jobID, limit)
}

// Streaks returns the current failure streak for every job that has run
func (r *Recorder) Streaks() ([]FailureStreak, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, consecutive_failures, updated_at FROM failure_streaks ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []FailureStreak
	for rows.Next() {
		var s FailureStreak
		var updatedAt string
		if err := rows.Scan(&s.JobID, &s.ConsecutiveFailures, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		streaks = append(streaks, s)
	}
	return streaks, rows.Err()
}

// LastCompletedRuns returns the most recent completion time per job,
// used by the staleness quality check.
func (r *Recorder) LastCompletedRuns() (map[string]time.Time, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, MAX(completed_at) FROM executions
		 WHERE completed_at IS NOT NULL GROUP BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query last runs: %w", err)
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var jobID, completedAt string
		if err := rows.Scan(&jobID, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan last run: %w", err)
		}
		t, err := database.ParseTime(completedAt)
		if err != nil {
			return nil, err
		}
		last[jobID] = t
	}
	return last, rows.Err()
}

func (r *Recorder) queryRecords(query string, args ...interface{}) ([]ExecutionRecord, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var startedAt string
		var completedAt, status, summary sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&rec.RunID, &rec.JobID, &startedAt, &completedAt, &status, &summary, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		if rec.StartedAt, err = database.ParseTime(startedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := database.ParseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			rec.CompletedAt = &t
		}
		rec.Status = status.String
		rec.ResultSummary = summary.String
		rec.DurationMs = durationMs.Int64
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Recorder) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}
