package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/database"
	"github.com/aristath/trader-ops/internal/invoker"
	"github.com/aristath/trader-ops/internal/quality"
)

// Kind labels alert channel entries
type Kind string

const (
	KindFailureStreak  Kind = "FAILURE_STREAK"
	KindCriticalIssues Kind = "CRITICAL_ISSUES"
	KindPartialReset   Kind = "THRESHOLD_PARTIAL_RESET"
)

// Alert is a persisted alert row, served read-only to the dashboard
type Alert struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	JobID     string          `json:"job_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Manager routes escalation signals to the always-on alert channel: a
// structured log line with channel=alerts, a persisted alerts row, and an
// optional webhook. Alerts are advisory only; a job is never disabled by
// one.
type Manager struct {
	db      *sql.DB
	inv     *invoker.Client
	webhook string
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// ManagerConfig holds alert manager dependencies
type ManagerConfig struct {
	DB         *sql.DB
	Invoker    *invoker.Client
	WebhookURL string // empty disables webhook delivery
	Timeout    time.Duration
	Now        func() time.Time // defaults to time.Now
	Log        zerolog.Logger
}

// NewManager creates a new alert manager
func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		db:      cfg.DB,
		inv:     cfg.Invoker,
		webhook: cfg.WebhookURL,
		timeout: timeout,
		now:     now,
		log:     cfg.Log.With().Str("component", "alerts").Logger(),
	}
}

// JobFailureStreak signals that a job's consecutive-failure count crossed
// its escalation threshold. Implements scheduler.Alerter.
func (m *Manager) JobFailureStreak(jobID string, streak int) {
	m.emit(KindFailureStreak, jobID, map[string]interface{}{
		"consecutive_failures": streak,
	})
}

// CriticalIssues routes critical-severity issues to the immediate alert
// path. Implements quality.Alerter.
func (m *Manager) CriticalIssues(tier quality.Tier, issues []quality.Issue) {
	m.emit(KindCriticalIssues, "", map[string]interface{}{
		"tier":   int(tier),
		"count":  len(issues),
		"issues": issues,
	})
}

// ThresholdPartialReset signals a threshold trigger whose action ran but
// whose baseline reset failed.
func (m *Manager) ThresholdPartialReset(jobID string, cause string) {
	m.emit(KindPartialReset, jobID, map[string]interface{}{
		"cause": cause,
	})
}

func (m *Manager) emit(kind Kind, jobID string, payload map[string]interface{}) {
	payloadJSON, _ := json.Marshal(payload)

	m.log.Error().
		Str("channel", "alerts").
		Str("kind", string(kind)).
		Str("job", jobID).
		RawJSON("payload", payloadJSON).
		Msg("Alert emitted")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO alerts (kind, job_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(kind), jobID, string(payloadJSON), database.FormatTime(m.now()))
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to persist alert")
	}

	if m.webhook != "" && m.inv != nil {
		// Fire-and-forget; a lost webhook must not block dispatch
		go m.deliver(kind, jobID, payload)
	}
}

func (m *Manager) deliver(kind Kind, jobID string, payload map[string]interface{}) {
	out := m.inv.Invoke(invoker.Request{
		Target: m.webhook,
		Payload: map[string]interface{}{
			"kind":   string(kind),
			"job_id": jobID,
			"data":   payload,
		},
		Timeout: 10 * time.Second,
	})
	if !out.OK() {
		m.log.Warn().
			Str("kind", string(kind)).
			Str("outcome", string(out.Kind)).
			Msg("Alert webhook delivery failed")
	}
}

// Recent returns the newest persisted alerts
func (m *Manager) Recent(limit int) ([]Alert, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, kind, job_id, payload, created_at FROM alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var kind, createdAt string
		var jobID, payload sql.NullString
		if err := rows.Scan(&a.ID, &kind, &jobID, &payload, &createdAt); err != nil {
			return nil, err
		}
		a.Kind = Kind(kind)
		a.JobID = jobID.String
		if payload.Valid {
			a.Payload = json.RawMessage(payload.String)
		}
		if a.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
