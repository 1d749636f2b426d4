package quality

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Check is a single named sub-check: a zero-argument operation returning
// the issues it found, or an error.
type Check struct {
	ID string
	Fn func() ([]Issue, error)
}

// ResultStore persists per-check results and issues, and computes the
// weekly rollup over recorded history.
type ResultStore interface {
	SaveRun(runID string, tier Tier, results []CheckResult, at time.Time) error
	ComputeWeeklyRollup(until time.Time) (*WeeklyRollup, error)
}

// Alerter receives critical issues on the immediate alert path
type Alerter interface {
	CriticalIssues(tier Tier, issues []Issue)
}

// Report is the aggregate outcome of one tier run
type Report struct {
	RunID   string        `json:"run_id"`
	Tier    Tier          `json:"tier"`
	Status  CheckStatus   `json:"status"`
	Results []CheckResult `json:"results"`
	Issues  []Issue       `json:"issues"`
	Rollup  *WeeklyRollup `json:"rollup,omitempty"` // weekly tier only
}

// Aggregator runs an ordered list of sub-checks with per-check fault
// isolation, classifies issues by severity, persists the results, and
// escalates: critical issues to the immediate alert path, warning/info
// issues to the digest queue.
type Aggregator struct {
	store  ResultStore
	digest *DigestQueue
	alerts Alerter
	now    func() time.Time
	log    zerolog.Logger
}

// AggregatorConfig holds aggregator dependencies
type AggregatorConfig struct {
	Store  ResultStore
	Digest *DigestQueue
	Alerts Alerter
	Now    func() time.Time // defaults to time.Now
	Log    zerolog.Logger
}

// NewAggregator creates a new tiered check aggregator
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:  cfg.Store,
		digest: cfg.Digest,
		alerts: cfg.Alerts,
		now:    now,
		log:    cfg.Log.With().Str("component", "quality_aggregator").Logger(),
	}
}

// Run executes every check in order. A raising check becomes its own
// result with status=error and never prevents the remaining checks from
// running.
func (a *Aggregator) Run(tier Tier, checks []Check) (*Report, error) {
	runID := uuid.NewString()
	log := a.log.With().Int("tier", int(tier)).Str("run_id", runID).Logger()

	results := make([]CheckResult, 0, len(checks))
	var all []Issue

	for _, check := range checks {
		start := a.now()
		issues, err := a.runCheck(check)
		duration := a.now().Sub(start)

		if err != nil {
			log.Error().Err(err).Str("check", check.ID).Msg("Check raised, isolating")
			results = append(results, CheckResult{
				CheckID:  check.ID,
				Tier:     tier,
				Status:   StatusError,
				Duration: duration,
			})
			continue
		}

		results = append(results, CheckResult{
			CheckID:    check.ID,
			Tier:       tier,
			Status:     Classify(issues),
			IssueCount: len(issues),
			Issues:     issues,
			Duration:   duration,
		})
		all = append(all, issues...)
	}

	a.escalate(tier, all)

	at := a.now()
	if err := a.store.SaveRun(runID, tier, results, at); err != nil {
		return nil, fmt.Errorf("failed to persist tier %d run: %w", tier, err)
	}

	report := &Report{
		RunID:   runID,
		Tier:    tier,
		Status:  aggregateStatus(results),
		Results: results,
		Issues:  all,
	}

	if tier == TierWeekly {
		rollup, err := a.store.ComputeWeeklyRollup(at)
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute weekly rollup")
		} else {
			report.Rollup = rollup
		}
	}

	log.Info().
		Int("checks", len(results)).
		Int("issues", len(all)).
		Str("status", string(report.Status)).
		Msg("Tier run completed")

	return report, nil
}

// runCheck isolates a single check, converting panics into errors
func (a *Aggregator) runCheck(c Check) (issues []Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return c.Fn()
}

// escalate routes issues by severity: critical immediately, the rest into
// the digest queue for batched delivery.
func (a *Aggregator) escalate(tier Tier, issues []Issue) {
	var critical, deferred []Issue
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			critical = append(critical, issue)
		} else {
			deferred = append(deferred, issue)
		}
	}

	if len(critical) > 0 && a.alerts != nil {
		a.alerts.CriticalIssues(tier, critical)
	}
	if len(deferred) > 0 && a.digest != nil {
		a.digest.Append(deferred...)
	}
}

// aggregateStatus is the worst status across all checks of a run
func aggregateStatus(results []CheckResult) CheckStatus {
	worst := StatusPassed
	for _, r := range results {
		if statusRank(r.Status) > statusRank(worst) {
			worst = r.Status
		}
	}
	return worst
}
