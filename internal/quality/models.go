package quality

import "time"

// Severity of a detected data-quality problem
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Tier is one of the three check cadences sharing the aggregator pattern
type Tier int

const (
	TierHourly Tier = 1 // fast
	TierDaily  Tier = 2 // deep
	TierWeekly Tier = 3 // audit
)

// CheckStatus classifies one sub-check's outcome
type CheckStatus string

const (
	StatusPassed  CheckStatus = "passed"
	StatusWarning CheckStatus = "warning"
	StatusFailed  CheckStatus = "failed"
	StatusError   CheckStatus = "error"
)

// Issue is a single detected data-quality problem. Produced by one check,
// never mutated; consumed by escalation and by the digest queue.
type Issue struct {
	Severity    Severity `json:"severity"`
	Type        string   `json:"type"`
	Entity      string   `json:"entity,omitempty"`
	Field       string   `json:"field,omitempty"`
	Count       int      `json:"count"`
	Description string   `json:"description"`
}

// CheckResult is the outcome of one sub-check within a tier run
type CheckResult struct {
	CheckID    string        `json:"check_id"`
	Tier       Tier          `json:"tier"`
	Status     CheckStatus   `json:"status"`
	IssueCount int           `json:"issue_count"`
	Issues     []Issue       `json:"issues,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Classify derives a check status from the worst issue severity:
// failed iff any critical, warning iff any issue but no critical,
// passed iff empty.
func Classify(issues []Issue) CheckStatus {
	if len(issues) == 0 {
		return StatusPassed
	}
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return StatusFailed
		}
	}
	return StatusWarning
}

// statusRank orders check statuses from best to worst for aggregation
func statusRank(s CheckStatus) int {
	switch s {
	case StatusPassed:
		return 0
	case StatusWarning:
		return 1
	case StatusError:
		return 2
	case StatusFailed:
		return 3
	}
	return 0
}
