package jobs

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/invoker"
	"github.com/aristath/trader-ops/internal/scheduler"
	"github.com/aristath/trader-ops/internal/triggers"
)

// RetrainJobID is the id of the retraining trigger job and of the
// threshold baseline the collection jobs feed.
const RetrainJobID = "ml_retrain"

// Escalator receives the partial-success signal when the retrain action
// ran but the baseline reset failed.
type Escalator interface {
	ThresholdPartialReset(jobID string, cause string)
}

// RetrainJob evaluates the retraining threshold trigger on a fixed
// cadence: it fires the remote training action only once enough data
// mutations have accumulated.
type RetrainJob struct {
	schedule scheduler.Schedule
	trigger  *triggers.ThresholdTrigger
	alerts   Escalator
	log      zerolog.Logger
}

// RetrainConfig holds retrain job dependencies
type RetrainConfig struct {
	Schedule scheduler.Schedule
	Trigger  *triggers.ThresholdTrigger
	Alerts   Escalator
	Log      zerolog.Logger
}

// NewRetrainJob creates the retraining trigger job
func NewRetrainJob(cfg RetrainConfig) *RetrainJob {
	return &RetrainJob{
		schedule: cfg.Schedule,
		trigger:  cfg.Trigger,
		alerts:   cfg.Alerts,
		log:      cfg.Log.With().Str("job", RetrainJobID).Logger(),
	}
}

// NewRetrainAction builds the remote training call the trigger fires
func NewRetrainAction(inv *invoker.Client, target string, timeout time.Duration) func() error {
	return func() error {
		out := inv.Invoke(invoker.Request{
			Target:  target,
			Payload: map[string]interface{}{"reason": "mutation_threshold"},
			Timeout: timeout,
		})
		if !out.OK() {
			return &RemoteError{Kind: out.Kind, Status: out.StatusCode, Detail: outcomeDetail(out)}
		}
		return nil
	}
}

func outcomeDetail(out invoker.Outcome) string {
	switch out.Kind {
	case invoker.OutcomeSuccess:
		return out.ServiceError()
	case invoker.OutcomeHTTPError:
		return truncate(out.Body, 200)
	default:
		if out.Err != nil {
			return out.Err.Error()
		}
		return string(out.Kind)
	}
}

// ID returns the job id
func (j *RetrainJob) ID() string { return RetrainJobID }

// Name returns the human-readable job name
func (j *RetrainJob) Name() string { return "ML Retraining Trigger" }

// Schedule returns the evaluation cadence
func (j *RetrainJob) Schedule() scheduler.Schedule { return j.schedule }

// Metadata describes the job for observability
func (j *RetrainJob) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"kind":     "threshold_trigger",
		"baseline": RetrainJobID,
	}
}

// Run performs one trigger evaluation. A partial success (action fired,
// reset deferred) is reported distinctly and escalated, never dropped.
func (j *RetrainJob) Run() (string, error) {
	outcome, err := j.trigger.Evaluate()

	switch outcome {
	case triggers.OutcomeSkipped:
		return "action=skipped", nil

	case triggers.OutcomeFired:
		return "action=fired", nil

	case triggers.OutcomePartial:
		cause := "baseline reset failed"
		if err != nil {
			cause = err.Error()
		}
		if j.alerts != nil {
			j.alerts.ThresholdPartialReset(RetrainJobID, cause)
		}
		if err != nil {
			return "", fmt.Errorf("partial success pending: %w", err)
		}
		return "action=fired reset=deferred (partial success)", nil

	default:
		return "", err
	}
}
