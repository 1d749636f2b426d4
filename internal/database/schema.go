package database

import "fmt"

// schema holds the DDL for all engine-owned tables. The execution history
// and failure streaks are consumed read-only by the dashboard; the quality
// tables additionally feed the digest-email collaborator.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		run_id         TEXT PRIMARY KEY,
		job_id         TEXT NOT NULL,
		started_at     TIMESTAMP NOT NULL,
		completed_at   TIMESTAMP,
		status         TEXT,
		result_summary TEXT,
		duration_ms    INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_job_started
		ON executions(job_id, started_at)`,

	`CREATE TABLE IF NOT EXISTS failure_streaks (
		job_id               TEXT PRIMARY KEY,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		updated_at           TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS check_results (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		check_id    TEXT NOT NULL,
		tier        INTEGER NOT NULL,
		status      TEXT NOT NULL,
		issue_count INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_check_results_created
		ON check_results(created_at)`,

	`CREATE TABLE IF NOT EXISTS issues (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		check_id    TEXT NOT NULL,
		tier        INTEGER NOT NULL,
		severity    TEXT NOT NULL,
		type        TEXT NOT NULL,
		entity      TEXT,
		field       TEXT,
		count       INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_created
		ON issues(created_at)`,

	`CREATE TABLE IF NOT EXISTS weekly_rollups (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		week_start     TIMESTAMP NOT NULL,
		week_end       TIMESTAMP NOT NULL,
		checks_total   INTEGER NOT NULL,
		checks_passed  INTEGER NOT NULL,
		pass_rate      REAL NOT NULL,
		critical_count INTEGER NOT NULL,
		warning_count  INTEGER NOT NULL,
		info_count     INTEGER NOT NULL,
		counts_by_type TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS threshold_baselines (
		job_id          TEXT PRIMARY KEY,
		current_count   INTEGER NOT NULL DEFAULT 0,
		threshold       INTEGER NOT NULL,
		last_trigger_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		job_id     TEXT,
		payload    TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates all engine tables if they do not exist
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
