// Package maintenance runs the periodic health sweep: staleness checks on
// the webhook queue and function runs, stale-draft recovery, and retention
// pruning. Sections are independent; one failing section never prevents
// the others from running.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/contacts"
	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/webhookq"
)

// DraftRecoverer resets drafts abandoned by crashed or interrupted runs so
// their jobs become dispatchable again. Implementations live with the job
// domain; the sweep only needs the count of recovered drafts.
type DraftRecoverer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// SectionResult is the outcome of one sweep section. Error is a string so
// the report serializes cleanly for the trigger endpoint.
type SectionResult struct {
	Ran   bool   `json:"ran"`
	Count int    `json:"count,omitempty"`
	Alert bool   `json:"alert,omitempty"`
	Error string `json:"error,omitempty"`
}

// Report aggregates the per-section results of one sweep.
type Report struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	QueueStaleness SectionResult `json:"queue_staleness"`
	RunStaleness   SectionResult `json:"run_staleness"`
	DraftRecovery  SectionResult `json:"draft_recovery"`
	StaleRuns      SectionResult `json:"stale_runs"`
	PrunedRuns     SectionResult `json:"pruned_runs"`
	PrunedEvents   SectionResult `json:"pruned_events"`
	PrunedContacts SectionResult `json:"pruned_contacts"`
}

// HasErrors reports whether any section failed.
func (r Report) HasErrors() bool {
	for _, section := range []SectionResult{
		r.QueueStaleness, r.RunStaleness, r.DraftRecovery,
		r.StaleRuns, r.PrunedRuns, r.PrunedEvents, r.PrunedContacts,
	} {
		if section.Error != "" {
			return true
		}
	}
	return false
}

// Sweeper owns the maintenance sweep over the dispatch and queue stores.
type Sweeper struct {
	runs      *dispatch.RunStore
	events    *webhookq.Store
	contacts  *contacts.Store
	recoverer DraftRecoverer // nil disables draft recovery
	dispatch  config.DispatchConfig
	cfg       config.MaintenanceConfig
	log       *zap.SugaredLogger
}

// NewSweeper creates a maintenance sweeper. recoverer may be nil when no
// draft domain is wired in.
func NewSweeper(
	runs *dispatch.RunStore,
	events *webhookq.Store,
	contactStore *contacts.Store,
	recoverer DraftRecoverer,
	dispatchCfg config.DispatchConfig,
	cfg config.MaintenanceConfig,
	log *zap.SugaredLogger,
) *Sweeper {
	return &Sweeper{
		runs:      runs,
		events:    events,
		contacts:  contactStore,
		recoverer: recoverer,
		dispatch:  dispatchCfg,
		cfg:       cfg,
		log:       log,
	}
}

// Sweep runs every section in order and returns the aggregate report.
// It never returns an error: failures are captured per section so callers
// always get a full report.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	start := time.Now()
	report := Report{StartedAt: start.UTC()}

	report.QueueStaleness = s.checkQueueStaleness(start)
	report.RunStaleness = s.checkRunStaleness()
	report.DraftRecovery = s.recoverDrafts(ctx)
	report.StaleRuns = s.recoverStaleRuns()
	report.PrunedRuns = s.pruneRuns()
	report.PrunedEvents = s.pruneEvents()
	report.PrunedContacts = s.pruneContacts(start)

	report.Duration = time.Since(start)
	s.log.Infow("Maintenance sweep complete",
		"duration", report.Duration.Round(time.Millisecond),
		"queue_alert", report.QueueStaleness.Alert,
		"run_alert", report.RunStaleness.Alert,
		"drafts_recovered", report.DraftRecovery.Count,
		"stale_runs_recovered", report.StaleRuns.Count,
		"runs_pruned", report.PrunedRuns.Count,
		"events_pruned", report.PrunedEvents.Count,
		"contacts_pruned", report.PrunedContacts.Count,
		"has_errors", report.HasErrors(),
	)
	return report
}

// checkQueueStaleness alerts when the oldest due webhook event has waited
// longer than the alert threshold, which means passes are not keeping up.
func (s *Sweeper) checkQueueStaleness(now time.Time) SectionResult {
	result := SectionResult{Ran: true}
	age, found, err := s.events.OldestDueAge(now)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Queue staleness check failed", "error", err)
		return result
	}
	if !found {
		return result
	}

	threshold := time.Duration(s.cfg.QueueAlertMinutes) * time.Minute
	if age > threshold {
		result.Alert = true
		s.log.Warnw("Webhook queue is falling behind",
			"oldest_due_age", age.Round(time.Second),
			"threshold", threshold,
		)
	}
	return result
}

// checkRunStaleness alerts when a function run has been RUNNING longer than
// the alert threshold.
func (s *Sweeper) checkRunStaleness() SectionResult {
	result := SectionResult{Ran: true}
	age, found, err := s.runs.OldestRunningAge(dispatch.ProcessFunctionName)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Run staleness check failed", "error", err)
		return result
	}
	if !found {
		return result
	}

	threshold := time.Duration(s.cfg.RunAlertMinutes) * time.Minute
	if age > threshold {
		result.Alert = true
		s.log.Warnw("Function run has been running too long",
			"oldest_running_age", age.Round(time.Second),
			"threshold", threshold,
		)
	}
	return result
}

func (s *Sweeper) recoverDrafts(ctx context.Context) SectionResult {
	if s.recoverer == nil {
		return SectionResult{}
	}

	result := SectionResult{Ran: true}
	olderThan := time.Duration(s.dispatch.StaleRunMinutes) * time.Minute
	recovered, err := s.recoverer.RecoverStale(ctx, olderThan)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Draft recovery failed", "error", err)
		return result
	}
	result.Count = recovered
	if recovered > 0 {
		s.log.Infow("Recovered stale drafts", "count", recovered)
	}
	return result
}

func (s *Sweeper) recoverStaleRuns() SectionResult {
	result := SectionResult{Ran: true}
	recovery, err := s.runs.RecoverStaleRuns(
		dispatch.ProcessFunctionName,
		s.dispatch.StaleRunMinutes,
		s.dispatch.StaleRunRecoveryLimit,
		"exceeded stale run threshold during maintenance sweep",
	)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Stale run recovery failed", "error", err)
		return result
	}
	result.Count = recovery.Recovered
	if recovery.Recovered > 0 {
		s.log.Warnw("Force-failed stale function runs",
			"count", recovery.Recovered,
			"run_keys", recovery.RunKeys,
		)
	}
	return result
}

func (s *Sweeper) pruneRuns() SectionResult {
	result := SectionResult{Ran: true}
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	pruned, err := s.runs.CleanupOldRuns(retention, s.cfg.PruneBatchLimit)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Function run pruning failed", "error", err)
		return result
	}
	result.Count = pruned
	return result
}

func (s *Sweeper) pruneEvents() SectionResult {
	result := SectionResult{Ran: true}
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	pruned, err := s.events.CleanupOldEvents(retention, s.cfg.PruneBatchLimit)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Webhook event pruning failed", "error", err)
		return result
	}
	result.Count = pruned
	return result
}

func (s *Sweeper) pruneContacts(now time.Time) SectionResult {
	result := SectionResult{Ran: true}
	pruned, err := s.contacts.PruneExpired(now, s.cfg.PruneBatchLimit)
	if err != nil {
		result.Error = err.Error()
		s.log.Errorw("Inferred contact pruning failed", "error", err)
		return result
	}
	result.Count = pruned
	return result
}
