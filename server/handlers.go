package server

import (
	"net/http"
	"time"
)

// handleTriggerDispatch runs one dispatch cycle. Duplicate invocations in
// the same dispatch window return the suppressed summary with 200: from the
// scheduler's point of view the window was handled either way.
func (s *Server) handleTriggerDispatch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "http"
	}

	start := time.Now()
	summary, err := s.dispatcher.RunCycle(r.Context(), source)
	if err != nil {
		s.log.Errorw("Dispatch cycle failed", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.collector.RecordCycle(summary.Suppressed, summary.Enqueued, summary.Inline, summary.Failed, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, summary)
}

// handleTriggerQueue runs one webhook queue pass. Partial failures inside
// the pass are reported in the summary, not as an HTTP error.
func (s *Server) handleTriggerQueue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	start := time.Now()
	summary, err := s.runner.RunPass(r.Context())
	if err != nil {
		s.log.Errorw("Webhook queue pass failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.collector.RecordPass(
		summary.Processed, summary.Succeeded, summary.Failed,
		summary.Retried, summary.Skipped, summary.ReleasedStale,
		summary.Remaining, time.Since(start).Seconds(),
	)
	writeJSON(w, http.StatusOK, summary)
}

// handleTriggerMaintenance runs one maintenance sweep. The report carries
// per-section errors; section failures still return 200 so schedulers do
// not retry a sweep that mostly succeeded.
func (s *Server) handleTriggerMaintenance(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	report := s.sweeper.Sweep(r.Context())
	s.collector.RecordSweep(report.PrunedRuns.Count + report.PrunedEvents.Count + report.PrunedContacts.Count)
	writeJSON(w, http.StatusOK, report)
}
