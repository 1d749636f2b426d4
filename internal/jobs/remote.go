package jobs

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/invoker"
	"github.com/aristath/trader-ops/internal/market"
	"github.com/aristath/trader-ops/internal/scheduler"
	"github.com/aristath/trader-ops/internal/triggers"
)

// RemoteError is the typed failure a remote job surfaces when the
// external call did not succeed.
type RemoteError struct {
	Kind   invoker.OutcomeKind
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Kind == invoker.OutcomeHTTPError {
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// RemoteActionJob is the generic executor for JobSpec entries: it
// optionally consults the market gate, triggers the remote action, and
// classifies the outcome into the job's own result.
type RemoteActionJob struct {
	spec      JobSpec
	inv       *invoker.Client
	gate      *market.Gate
	baselines *triggers.BaselineRepository
	now       func() time.Time
	log       zerolog.Logger
}

// RemoteActionConfig holds remote job dependencies
type RemoteActionConfig struct {
	Spec      JobSpec
	Invoker   *invoker.Client
	Gate      *market.Gate // required only for gated specs
	Baselines *triggers.BaselineRepository
	Now       func() time.Time // defaults to time.Now
	Log       zerolog.Logger
}

// NewRemoteActionJob creates a generic remote-action job from its spec
func NewRemoteActionJob(cfg RemoteActionConfig) *RemoteActionJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RemoteActionJob{
		spec:      cfg.Spec,
		inv:       cfg.Invoker,
		gate:      cfg.Gate,
		baselines: cfg.Baselines,
		now:       now,
		log:       cfg.Log.With().Str("job", cfg.Spec.ID).Logger(),
	}
}

// ID returns the job id
func (j *RemoteActionJob) ID() string { return j.spec.ID }

// Name returns the human-readable job name
func (j *RemoteActionJob) Name() string { return j.spec.Name }

// Schedule returns the job schedule
func (j *RemoteActionJob) Schedule() scheduler.Schedule { return j.spec.Schedule }

// Metadata describes the job for observability
func (j *RemoteActionJob) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"target":        j.spec.Target,
		"gated":         j.spec.Gated,
		"mutation_feed": j.spec.MutationFeed,
	}
}

// Run triggers the remote action once and classifies the outcome
func (j *RemoteActionJob) Run() (string, error) {
	if j.spec.Gated && j.gate != nil && !j.gate.Open(j.now()) {
		j.log.Debug().Msg("Market session closed, skipping call")
		return "skipped: market session closed", nil
	}

	out := j.inv.Invoke(invoker.Request{
		Target:  j.spec.Target,
		Method:  j.spec.Method,
		Payload: j.spec.Params,
		Timeout: j.callTimeout(),
	})

	switch out.Kind {
	case invoker.OutcomeSuccess:
		if !out.Response.Success {
			return "", &RemoteError{Kind: out.Kind, Status: out.StatusCode, Detail: out.ServiceError()}
		}
		count := recordCount(out.Response.Data)
		j.feedMutations(count)
		if count >= 0 {
			return fmt.Sprintf("processed %d records", count), nil
		}
		return "completed", nil

	case invoker.OutcomeHTTPError:
		return "", &RemoteError{Kind: out.Kind, Status: out.StatusCode, Detail: truncate(out.Body, 200)}

	case invoker.OutcomeDecodeError:
		return "", &RemoteError{Kind: out.Kind, Status: out.StatusCode, Detail: out.Err.Error()}

	default:
		return "", &RemoteError{Kind: invoker.OutcomeNetworkError, Detail: out.Err.Error()}
	}
}

// callTimeout leaves the dispatcher a margin to record the timeout itself
func (j *RemoteActionJob) callTimeout() time.Duration {
	if j.spec.CallTimeout > 0 {
		return j.spec.CallTimeout
	}
	if j.spec.Timeout > 30*time.Second {
		return j.spec.Timeout - 15*time.Second
	}
	return j.spec.Timeout
}

// feedMutations credits the configured threshold baseline with this run's
// record count.
func (j *RemoteActionJob) feedMutations(count int64) {
	if count <= 0 || j.spec.MutationFeed == "" || j.baselines == nil {
		return
	}
	if err := j.baselines.Increment(j.spec.MutationFeed, count); err != nil {
		j.log.Warn().Err(err).Str("feed", j.spec.MutationFeed).Msg("Failed to feed mutation count")
	}
}

// recordCount extracts the processed-record count from a service
// response, -1 when the service reported none.
func recordCount(data map[string]interface{}) int64 {
	for _, key := range []string{"count", "records", "processed"} {
		if v, ok := data[key]; ok {
			if f, ok := v.(float64); ok {
				return int64(f)
			}
		}
	}
	return -1
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
