package jobs

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/quality"
	"github.com/aristath/trader-ops/internal/scheduler"
)

// TierJob runs one quality tier (hourly/fast, daily/deep, weekly/audit)
// through the check aggregator.
type TierJob struct {
	id       string
	name     string
	schedule scheduler.Schedule
	tier     quality.Tier
	agg      *quality.Aggregator
	checks   []quality.Check
	log      zerolog.Logger
}

// TierJobConfig holds tier job dependencies
type TierJobConfig struct {
	ID         string
	Name       string
	Schedule   scheduler.Schedule
	Tier       quality.Tier
	Aggregator *quality.Aggregator
	Checks     []quality.Check
	Log        zerolog.Logger
}

// NewTierJob creates a quality tier job
func NewTierJob(cfg TierJobConfig) *TierJob {
	return &TierJob{
		id:       cfg.ID,
		name:     cfg.Name,
		schedule: cfg.Schedule,
		tier:     cfg.Tier,
		agg:      cfg.Aggregator,
		checks:   cfg.Checks,
		log:      cfg.Log.With().Str("job", cfg.ID).Logger(),
	}
}

// ID returns the job id
func (j *TierJob) ID() string { return j.id }

// Name returns the human-readable job name
func (j *TierJob) Name() string { return j.name }

// Schedule returns the tier cadence
func (j *TierJob) Schedule() scheduler.Schedule { return j.schedule }

// Metadata describes the job for observability
func (j *TierJob) Metadata() map[string]interface{} {
	ids := make([]string, 0, len(j.checks))
	for _, c := range j.checks {
		ids = append(ids, c.ID)
	}
	return map[string]interface{}{
		"tier":   int(j.tier),
		"checks": ids,
	}
}

// Run executes the tier's check set through the aggregator
func (j *TierJob) Run() (string, error) {
	report, err := j.agg.Run(j.tier, j.checks)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("checks=%d issues=%d status=%s",
		len(report.Results), len(report.Issues), report.Status), nil
}
