package jobs

import (
	"time"

	"github.com/aristath/trader-ops/internal/config"
	"github.com/aristath/trader-ops/internal/scheduler"
)

// JobSpec declares one remote-action job as data. One generic executor
// (RemoteActionJob) interprets the whole fleet, so adding a job is a new
// entry here rather than a new type.
type JobSpec struct {
	ID              string
	Name            string
	Schedule        scheduler.Schedule
	Timeout         time.Duration
	StreakThreshold int

	Target string
	Method string
	Params map[string]interface{}

	// CallTimeout bounds the remote call itself; defaults to Timeout minus
	// a small margin
	CallTimeout time.Duration

	// Gated jobs are skipped while the reference market session is closed
	Gated bool

	// MutationFeed names the threshold baseline credited with this job's
	// record count on success (feeding the retraining trigger)
	MutationFeed string
}

// Options converts the entry's execution policy for registration
func (s JobSpec) Options() scheduler.Options {
	return scheduler.Options{
		Timeout:         s.Timeout,
		StreakThreshold: s.StreakThreshold,
	}
}

// FleetSpecs returns the data-collection, enrichment and portfolio
// execution fleet. Collection jobs feed the retraining baseline with
// their mutation counts.
func FleetSpecs(cfg *config.Config) []JobSpec {
	return []JobSpec{
		{
			ID:           "price_collection",
			Name:         "Price Collection",
			Schedule:     scheduler.Every(15 * time.Minute),
			Timeout:      2 * time.Minute,
			Target:       cfg.CollectorServiceURL + "/collect/prices",
			Gated:        true,
			MutationFeed: RetrainJobID,
		},
		{
			ID:              "fundamentals_collection",
			Name:            "Fundamentals Collection",
			Schedule:        scheduler.Cron("20 6 * * *"),
			Timeout:         15 * time.Minute,
			Target:          cfg.CollectorServiceURL + "/collect/fundamentals",
			MutationFeed:    RetrainJobID,
			StreakThreshold: 4,
		},
		{
			ID:       "filings_collection",
			Name:     "Filings Collection",
			Schedule: scheduler.Cron("50 6 * * 1-5"),
			Timeout:  20 * time.Minute,
			Target:   cfg.CollectorServiceURL + "/collect/filings",
			Params:   map[string]interface{}{"parse_pdfs": true},
		},
		{
			ID:           "news_enrichment",
			Name:         "News Enrichment",
			Schedule:     scheduler.Cron("45 * * * *"),
			Timeout:      10 * time.Minute,
			Target:       cfg.EnrichmentServiceURL + "/enrich/news",
			MutationFeed: RetrainJobID,
		},
		{
			ID:       "security_enrichment",
			Name:     "Security Enrichment",
			Schedule: scheduler.Cron("10 5 * * 1-5"),
			Timeout:  15 * time.Minute,
			Target:   cfg.EnrichmentServiceURL + "/enrich/securities",
		},
		{
			ID:              "portfolio_execution",
			Name:            "Portfolio Execution Cycle",
			Schedule:        scheduler.Cron("35 10,14 * * 1-5"),
			Timeout:         25 * time.Minute,
			Target:          cfg.ExecutionServiceURL + "/execute/cycle",
			Gated:           true,
			StreakThreshold: 5,
		},
	}
}
