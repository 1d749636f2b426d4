package quality

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/trader-ops/internal/database"
)

// StoredCheckResult is a persisted check result row, as served to the
// dashboard and digest-email collaborators.
type StoredCheckResult struct {
	RunID      string    `json:"run_id"`
	CheckID    string    `json:"check_id"`
	Tier       Tier      `json:"tier"`
	Status     string    `json:"status"`
	IssueCount int       `json:"issue_count"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoredIssue is a persisted issue row
type StoredIssue struct {
	RunID     string    `json:"run_id"`
	CheckID   string    `json:"check_id"`
	Tier      Tier      `json:"tier"`
	Issue
	CreatedAt time.Time `json:"created_at"`
}

// WeeklyRollup summarizes one week of recorded check results
type WeeklyRollup struct {
	WeekStart     time.Time      `json:"week_start"`
	WeekEnd       time.Time      `json:"week_end"`
	ChecksTotal   int            `json:"checks_total"`
	ChecksPassed  int            `json:"checks_passed"`
	PassRate      float64        `json:"pass_rate"`
	CriticalCount int            `json:"critical_count"`
	WarningCount  int            `json:"warning_count"`
	InfoCount     int            `json:"info_count"`
	CountsByType  map[string]int `json:"counts_by_type"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Repository persists quality check results, issues and weekly rollups.
// Implements ResultStore.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewRepository creates a new quality result repository
func NewRepository(db *sql.DB, timeout time.Duration, log zerolog.Logger) *Repository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Repository{
		db:      db,
		timeout: timeout,
		log:     log.With().Str("repo", "quality").Logger(),
	}
}

// SaveRun persists one result row per sub-check plus the run's issue
// rows (the aggregate issue list, keyed by run_id) in one transaction.
func (r *Repository) SaveRun(runID string, tier Tier, results []CheckResult, at time.Time) error {
	ctx, cancel := r.ctx()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin quality tx: %w", err)
	}
	defer tx.Rollback()

	created := database.FormatTime(at)
	for _, res := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO check_results (run_id, check_id, tier, status, issue_count, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, res.CheckID, int(tier), string(res.Status), res.IssueCount,
			res.Duration.Milliseconds(), created)
		if err != nil {
			return fmt.Errorf("failed to insert check result %s: %w", res.CheckID, err)
		}

		for _, issue := range res.Issues {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO issues (run_id, check_id, tier, severity, type, entity, field, count, description, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, res.CheckID, int(tier), string(issue.Severity), issue.Type,
				issue.Entity, issue.Field, issue.Count, issue.Description, created)
			if err != nil {
				return fmt.Errorf("failed to insert issue: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quality run: %w", err)
	}
	return nil
}

// ComputeWeeklyRollup aggregates the preceding week of recorded results
// (pass rate, issue counts by severity and type) and persists one rollup
// row.
func (r *Repository) ComputeWeeklyRollup(until time.Time) (*WeeklyRollup, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	since := until.Add(-7 * 24 * time.Hour)
	sinceStr := database.FormatTime(since)
	untilStr := database.FormatTime(until)

	rows, err := r.db.QueryContext(ctx,
		`SELECT status FROM check_results WHERE created_at > ? AND created_at <= ?`,
		sinceStr, untilStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query week results: %w", err)
	}
	defer rows.Close()

	var outcomes []float64
	total, passed := 0, 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		total++
		if CheckStatus(status) == StatusPassed {
			passed++
			outcomes = append(outcomes, 1)
		} else {
			outcomes = append(outcomes, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	passRate := 0.0
	if len(outcomes) > 0 {
		passRate = stat.Mean(outcomes, nil)
	}

	rollup := &WeeklyRollup{
		WeekStart:    since,
		WeekEnd:      until,
		ChecksTotal:  total,
		ChecksPassed: passed,
		PassRate:     passRate,
		CountsByType: make(map[string]int),
		CreatedAt:    until,
	}

	issueRows, err := r.db.QueryContext(ctx,
		`SELECT severity, type, COUNT(*) FROM issues
		 WHERE created_at > ? AND created_at <= ?
		 GROUP BY severity, type`,
		sinceStr, untilStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query week issues: %w", err)
	}
	defer issueRows.Close()

	for issueRows.Next() {
		var severity, issueType string
		var count int
		if err := issueRows.Scan(&severity, &issueType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan issue counts: %w", err)
		}
		rollup.CountsByType[issueType] += count
		switch Severity(severity) {
		case SeverityCritical:
			rollup.CriticalCount += count
		case SeverityWarning:
			rollup.WarningCount += count
		case SeverityInfo:
			rollup.InfoCount += count
		}
	}
	if err := issueRows.Err(); err != nil {
		return nil, err
	}

	countsJSON, err := json.Marshal(rollup.CountsByType)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal type counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO weekly_rollups (week_start, week_end, checks_total, checks_passed, pass_rate,
		                             critical_count, warning_count, info_count, counts_by_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sinceStr, untilStr, rollup.ChecksTotal, rollup.ChecksPassed, rollup.PassRate,
		rollup.CriticalCount, rollup.WarningCount, rollup.InfoCount, string(countsJSON),
		database.FormatTime(rollup.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert weekly rollup: %w", err)
	}

	return rollup, nil
}

// RecentResults returns the newest persisted check results
func (r *Repository) RecentResults(limit int) ([]StoredCheckResult, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, check_id, tier, status, issue_count, duration_ms, created_at
		 FROM check_results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query check results: %w", err)
	}
	defer rows.Close()

	var results []StoredCheckResult
	for rows.Next() {
		var res StoredCheckResult
		var tier int
		var createdAt string
		if err := rows.Scan(&res.RunID, &res.CheckID, &tier, &res.Status, &res.IssueCount, &res.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan check result: %w", err)
		}
		res.Tier = Tier(tier)
		if res.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// RecentIssues returns the newest persisted issues
func (r *Repository) RecentIssues(limit int) ([]StoredIssue, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, check_id, tier, severity, type, entity, field, count, description, created_at
		 FROM issues ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []StoredIssue
	for rows.Next() {
		var si StoredIssue
		var tier int
		var severity, createdAt string
		var entity, field, description sql.NullString
		if err := rows.Scan(&si.RunID, &si.CheckID, &tier, &severity, &si.Type, &entity, &field, &si.Count, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		si.Tier = Tier(tier)
		si.Severity = Severity(severity)
		si.Entity = entity.String
		si.Field = field.String
		si.Description = description.String
		if si.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		issues = append(issues, si)
	}
	return issues, rows.Err()
}

// Rollups returns the newest weekly rollups
func (r *Repository) Rollups(limit int) ([]WeeklyRollup, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT week_start, week_end, checks_total, checks_passed, pass_rate,
		        critical_count, warning_count, info_count, counts_by_type, created_at
		 FROM weekly_rollups ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer rows.Close()

	var rollups []WeeklyRollup
	for rows.Next() {
		var ru WeeklyRollup
		var weekStart, weekEnd, countsJSON, createdAt string
		if err := rows.Scan(&weekStart, &weekEnd, &ru.ChecksTotal, &ru.ChecksPassed, &ru.PassRate,
			&ru.CriticalCount, &ru.WarningCount, &ru.InfoCount, &countsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		if ru.WeekStart, err = database.ParseTime(weekStart); err != nil {
			return nil, err
		}
		if ru.WeekEnd, err = database.ParseTime(weekEnd); err != nil {
			return nil, err
		}
		if ru.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(countsJSON), &ru.CountsByType); err != nil {
			return nil, fmt.Errorf("failed to parse type counts: %w", err)
		}
		rollups = append(rollups, ru)
	}
	return rollups, rows.Err()
}

func (r *Repository) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}
