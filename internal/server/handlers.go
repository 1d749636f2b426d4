package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultLimit = 50

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes a JSON error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}

// handleHealth reports process liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSystemStatus reports scheduler state
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"registered_jobs": len(s.registry.All()),
		"running_jobs":    s.dispatcher.Running(),
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"digest_backlog":  s.digest.Len(),
	})
}

// handleListJobs lists registered job definitions
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	type jobView struct {
		ID              string                 `json:"id"`
		Name            string                 `json:"name"`
		Schedule        string                 `json:"schedule"`
		TimeoutSeconds  int                    `json:"timeout_seconds"`
		StreakThreshold int                    `json:"streak_threshold"`
		Metadata        map[string]interface{} `json:"metadata"`
	}

	defs := s.registry.All()
	views := make([]jobView, 0, len(defs))
	for _, def := range defs {
		views = append(views, jobView{
			ID:              def.Job.ID(),
			Name:            def.Job.Name(),
			Schedule:        def.Job.Schedule().String(),
			TimeoutSeconds:  int(def.Timeout.Seconds()),
			StreakThreshold: def.StreakThreshold,
			Metadata:        def.Job.Metadata(),
		})
	}
	s.respondJSON(w, http.StatusOK, views)
}

// handleRunJob triggers a job immediately, honoring the one-run-per-job
// invariant.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := s.dispatcher.RunNow(jobID); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "started"})
}

// handleExecutions lists recent execution records across all jobs
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	records, err := s.recorder.Recent(limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

// handleJobExecutions lists recent execution records for one job
func (s *Server) handleJobExecutions(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	records, err := s.recorder.ForJob(jobID, limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

// handleStreaks lists current failure streaks
func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	streaks, err := s.recorder.Streaks()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, streaks)
}

// handleBaselines lists threshold baselines
func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	baselines, err := s.baselines.All()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, baselines)
}

// handleAlerts lists recent alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	recent, err := s.alerts.Recent(limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, recent)
}

// handleQualityResults lists recent quality check results
func (s *Server) handleQualityResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.quality.RecentResults(limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

// handleQualityIssues lists recent quality issues
func (s *Server) handleQualityIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.quality.RecentIssues(limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, issues)
}

// handleQualityRollups lists weekly rollups
func (s *Server) handleQualityRollups(w http.ResponseWriter, r *http.Request) {
	rollups, err := s.quality.Rollups(limitParam(r))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rollups)
}

// handleDigestFlush atomically drains the digest queue for the external
// notification collaborator.
func (s *Server) handleDigestFlush(w http.ResponseWriter, r *http.Request) {
	issues := s.digest.Flush()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(issues),
		"issues": issues,
	})
}
