package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/logger"
)

// ProcessFunctionName names the primary recurring processing function in the
// function_runs table.
const ProcessFunctionName = "process-pending-jobs"

// JobSource supplies the dispatcher with pending work and live per-workspace
// activity. The backing table is owned by business logic; this package only
// reads from it.
type JobSource interface {
	// PendingJobs returns the current backlog in arrival order.
	PendingJobs(ctx context.Context) ([]Job, error)

	// ActiveCounts returns how many jobs are currently executing per
	// workspace, seeding the claimer so quotas hold across cycles.
	ActiveCounts(ctx context.Context) (map[string]int, error)
}

// JobExecutor hands claimed jobs to downstream execution. Enqueue is the
// normal path; ExecuteInline is the synchronous emergency fallback used when
// enqueueing is unavailable.
type JobExecutor interface {
	Enqueue(ctx context.Context, job Job) error
	ExecuteInline(ctx context.Context, job Job) error
}

// CycleSummary reports what one dispatch cycle did.
type CycleSummary struct {
	DispatchKey   string `json:"dispatch_key"`
	CorrelationID string `json:"correlation_id"`
	Suppressed    bool   `json:"suppressed"`
	Pending       int    `json:"pending"`
	Claimed       int    `json:"claimed"`
	Enqueued      int    `json:"enqueued"`
	Inline        int    `json:"inline"`
	Failed        int    `json:"failed"`
}

// Dispatcher runs the outer dispatch cycle: window dedup, fair ordering,
// quota-aware claiming, and handoff to execution.
//
// Safe under multiple concurrent processes invoking the same cycle: all
// cross-invocation coordination happens in the durable store via the window
// ledger's unique constraint.
type Dispatcher struct {
	windows  *WindowStore
	runs     *RunStore
	source   JobSource
	executor JobExecutor
	quota    QuotaPolicy
	eligible EligibilityFunc
	cfg      config.DispatchConfig
	log      *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(windows *WindowStore, runs *RunStore, source JobSource, executor JobExecutor, cfg config.DispatchConfig, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		windows:  windows,
		runs:     runs,
		source:   source,
		executor: executor,
		quota:    NewQuotaPolicy(cfg.DefaultQuota, cfg.HighQuota),
		eligible: NewEligibility(cfg.HighQuotaWorkspaces, nil),
		cfg:      cfg,
		log:      log,
	}
}

// SetEligibility replaces the high-quota eligibility resolver. Call before
// the first cycle; typically wired to workspace settings by the host.
func (d *Dispatcher) SetEligibility(fn EligibilityFunc) {
	if fn != nil {
		d.eligible = fn
	}
}

// PollInterval returns the configured window quantization interval.
func (d *Dispatcher) PollInterval() time.Duration {
	if d.cfg.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(d.cfg.PollIntervalSeconds) * time.Second
}

// RunCycle executes one dispatch cycle for the given trigger source.
//
// The cycle proceeds even when ledger tracking is degraded (fail open); it
// skips entirely only when another invocation demonstrably owns the window.
func (d *Dispatcher) RunCycle(ctx context.Context, source string) (CycleSummary, error) {
	now := time.Now()
	interval := d.PollInterval()
	windowStart := now.UTC().Truncate(interval)
	dispatchKey := DispatchKey(source, now, interval)
	correlationID := uuid.NewString()

	summary := CycleSummary{DispatchKey: dispatchKey, CorrelationID: correlationID}

	reg := d.windows.Register(dispatchKey, source, now, windowStart, int(interval.Seconds()), correlationID)
	if reg.DuplicateSuppressed {
		summary.Suppressed = true
		return summary, nil
	}

	// Run bookkeeping is best-effort; a ledger outage must not block dispatch.
	run, err := d.runs.StartRun(ProcessFunctionName, dispatchKey)
	if err != nil {
		d.log.Warnw("Failed to record function run for dispatch cycle",
			logger.FieldDispatchKey, dispatchKey,
			logger.FieldError, err,
		)
	}

	cycleErr := d.runCycleBody(ctx, dispatchKey, &summary)

	if run != nil {
		if err := d.runs.FinishRun(run.ID, cycleErr); err != nil {
			d.log.Warnw("Failed to finish function run",
				logger.FieldRunID, run.ID,
				logger.FieldError, err,
			)
		}
	}

	return summary, cycleErr
}

func (d *Dispatcher) runCycleBody(ctx context.Context, dispatchKey string, summary *CycleSummary) error {
	jobs, err := d.source.PendingJobs(ctx)
	if err != nil {
		d.windows.MarkFailed(dispatchKey, err.Error())
		return err
	}
	summary.Pending = len(jobs)

	if len(jobs) == 0 {
		d.windows.MarkEnqueued(dispatchKey, "", "", "", "")
		return nil
	}

	active, err := d.source.ActiveCounts(ctx)
	if err != nil {
		d.windows.MarkFailed(dispatchKey, err.Error())
		return err
	}

	quotaFn := func(workspaceID string) int {
		return d.quota.Resolve(workspaceID, d.eligible(workspaceID))
	}

	queue := BuildFairQueue(jobs)
	claimer := NewClaimerWithActive(quotaFn, active)

	batchLimit := d.cfg.CycleBatchLimit
	if batchLimit <= 0 {
		batchLimit = 25
	}

	inlineMode := false
	var lastErr error
	for summary.Claimed < batchLimit {
		job, ok := claimer.Claim(&queue)
		if !ok {
			// Every remaining workspace is at quota; wait for in-flight
			// work to finish rather than spinning.
			break
		}
		summary.Claimed++

		if !inlineMode {
			err := d.executor.Enqueue(ctx, job)
			if err == nil {
				summary.Enqueued++
				continue
			}
			lastErr = err
			inlineMode = true
			d.log.Warnw("Enqueue failed, falling back to inline execution",
				logger.FieldDispatchKey, dispatchKey,
				logger.FieldJobID, job.ID,
				logger.FieldError, err,
			)
		}

		if err := d.executor.ExecuteInline(ctx, job); err != nil {
			summary.Failed++
			lastErr = err
			claimer.Release(job.WorkspaceID)
			d.log.Errorw("Inline job execution failed",
				logger.FieldDispatchKey, dispatchKey,
				logger.FieldJobID, job.ID,
				logger.FieldWorkspaceID, job.WorkspaceID,
				logger.FieldError, err,
			)
			continue
		}
		summary.Inline++
		claimer.Release(job.WorkspaceID)
	}

	switch {
	case inlineMode && summary.Inline > 0:
		msg := ""
		if lastErr != nil {
			msg = lastErr.Error()
		}
		d.windows.MarkInlineEmergency(dispatchKey, msg)
	case inlineMode:
		d.windows.MarkFailed(dispatchKey, lastErr.Error())
		return lastErr
	default:
		d.windows.MarkEnqueued(dispatchKey, summary.CorrelationID, "", "", "")
	}

	d.log.Infow("Dispatch cycle complete",
		logger.FieldDispatchKey, dispatchKey,
		"pending", summary.Pending,
		"claimed", summary.Claimed,
		"enqueued", summary.Enqueued,
		"inline", summary.Inline,
		"failed", summary.Failed,
	)
	return nil
}
