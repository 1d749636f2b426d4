package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/trader-ops/internal/history"
	"github.com/aristath/trader-ops/internal/invoker"
	"github.com/aristath/trader-ops/internal/quality"
	"github.com/aristath/trader-ops/internal/scheduler"
)

// RemoteAuditCheck delegates one audit to the external audit service and
// maps its reported problems to issues. The response envelope carries an
// "issues" array in the standard issue shape.
func RemoteAuditCheck(id string, inv *invoker.Client, target string, timeout time.Duration) quality.Check {
	return quality.Check{
		ID: id,
		Fn: func() ([]quality.Issue, error) {
			out := inv.Invoke(invoker.Request{
				Target:  target,
				Timeout: timeout,
			})
			if !out.OK() {
				return nil, &RemoteError{Kind: out.Kind, Status: out.StatusCode, Detail: outcomeDetail(out)}
			}

			raw, ok := out.Response.Data["issues"]
			if !ok {
				return nil, nil
			}

			// Round-trip through JSON to map the loosely-typed envelope
			// onto the issue shape
			buf, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("audit %s: unreadable issues payload: %w", id, err)
			}
			var issues []quality.Issue
			if err := json.Unmarshal(buf, &issues); err != nil {
				return nil, fmt.Errorf("audit %s: unexpected issues shape: %w", id, err)
			}
			return issues, nil
		},
	}
}

// StaleExecutionsCheck flags registered jobs whose last completed run is
// older than maxAge (or that have never completed at all).
func StaleExecutionsCheck(rec *history.Recorder, registry *scheduler.Registry, maxAge time.Duration, now func() time.Time) quality.Check {
	if now == nil {
		now = time.Now
	}
	return quality.Check{
		ID: "stale_executions",
		Fn: func() ([]quality.Issue, error) {
			last, err := rec.LastCompletedRuns()
			if err != nil {
				return nil, err
			}

			cutoff := now().Add(-maxAge)
			var issues []quality.Issue
			for _, def := range registry.All() {
				jobID := def.Job.ID()
				completed, ok := last[jobID]
				if ok && completed.After(cutoff) {
					continue
				}

				desc := fmt.Sprintf("no completed run since %s", completed.Format(time.RFC3339))
				if !ok {
					desc = "no completed run recorded"
				}
				issues = append(issues, quality.Issue{
					Severity:    quality.SeverityWarning,
					Type:        "stale_execution",
					Entity:      jobID,
					Count:       1,
					Description: desc,
				})
			}
			return issues, nil
		},
	}
}

// DigestBacklogCheck warns when the digest queue grows past limit,
// meaning the notification collaborator has stopped flushing.
func DigestBacklogCheck(digest *quality.DigestQueue, limit int) quality.Check {
	return quality.Check{
		ID: "digest_backlog",
		Fn: func() ([]quality.Issue, error) {
			backlog := digest.Len()
			if backlog <= limit {
				return nil, nil
			}
			return []quality.Issue{{
				Severity:    quality.SeverityWarning,
				Type:        "digest_backlog",
				Entity:      "digest_queue",
				Count:       backlog,
				Description: fmt.Sprintf("digest backlog of %d issues exceeds limit of %d", backlog, limit),
			}}, nil
		},
	}
}
