package webhookq

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/outflowhq/outflow/config"
)

// PassSummary reports what one runner pass did. Remaining is a fresh count
// of still-due PENDING rows after the pass, used to detect backlog growth.
type PassSummary struct {
	InvocationID  string `json:"invocation_id"`
	ReleasedStale int    `json:"released_stale"`
	Processed     int    `json:"processed"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	Retried       int    `json:"retried"`
	Skipped       int    `json:"skipped"`
	Remaining     int    `json:"remaining"`
}

// Runner drives the webhook event queue: releases abandoned locks, claims
// due events optimistically, dispatches to registered handlers, and records
// success, retry, or terminal failure.
//
// Runners hold no cross-pass state; multiple processes may run overlapping
// passes safely because every claim is a conditional update in the store.
type Runner struct {
	store    *Store
	registry *Registry
	backoff  Backoff
	limiter  *rate.Limiter // nil disables throttling
	cfg      config.QueueConfig
	log      *zap.SugaredLogger
}

// NewRunner creates a queue runner.
func NewRunner(store *Store, registry *Registry, cfg config.QueueConfig, log *zap.SugaredLogger) *Runner {
	backoff := Backoff{
		Initial: time.Duration(cfg.BackoffInitialSeconds) * time.Second,
		Max:     time.Duration(cfg.BackoffMaxSeconds) * time.Second,
	}
	if backoff.Initial <= 0 || backoff.Max <= 0 {
		backoff = DefaultBackoff()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Runner{
		store:    store,
		registry: registry,
		backoff:  backoff,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
	}
}

// RunPass executes one pass over the queue.
//
// Order matters: stale-lock release always precedes selection so abandoned
// rows are eligible for reclaiming within the same pass. Claiming stops when
// the wall-clock deadline (time budget minus safety margin) is reached;
// rows left over are picked up by the next scheduled pass.
func (r *Runner) RunPass(ctx context.Context) (PassSummary, error) {
	invocationID := uuid.NewString()
	start := time.Now()
	summary := PassSummary{InvocationID: invocationID}

	deadline := start.Add(r.timeBudget() - r.safetyMargin())

	staleMinutes := r.cfg.LockStaleMinutes
	if staleMinutes <= 0 {
		staleMinutes = 10
	}
	released, err := r.store.ReleaseStaleLocks(start.Add(-time.Duration(staleMinutes) * time.Minute))
	if err != nil {
		return summary, err
	}
	summary.ReleasedStale = released
	if released > 0 {
		r.log.Warnw("Released stale webhook event locks",
			"count", released,
			"invocation_id", invocationID,
		)
	}

	batchLimit := r.cfg.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 50
	}
	due, err := r.store.ListDue(start, batchLimit)
	if err != nil {
		return summary, err
	}

	for _, event := range due {
		select {
		case <-ctx.Done():
			r.log.Warnw("Runner pass cancelled", "invocation_id", invocationID)
			return r.finish(summary)
		default:
		}

		if time.Now().After(deadline) {
			r.log.Infow("Runner pass time budget reached, deferring remaining events",
				"invocation_id", invocationID,
				"processed", summary.Processed,
			)
			break
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return r.finish(summary)
			}
		}

		claimed, err := r.store.Claim(event.ID, invocationID)
		if err != nil {
			r.log.Errorw("Failed to claim webhook event",
				"event_id", event.ID,
				"error", err,
			)
			continue
		}
		if !claimed {
			// Another invocation got there first. Expected contention.
			continue
		}
		event.Attempts++

		r.processClaimed(ctx, event, &summary)
	}

	return r.finish(summary)
}

// processClaimed dispatches one claimed event and records its outcome.
func (r *Runner) processClaimed(ctx context.Context, event *Event, summary *PassSummary) {
	summary.Processed++

	handler := r.registry.Get(event.Provider, event.EventType)
	if handler == nil {
		// Permanently skipped: without a handler, retrying can never help.
		summary.Skipped++
		r.log.Warnw("No handler registered for webhook event, skipping permanently",
			"event_id", event.ID,
			"provider", event.Provider,
			"event_type", event.EventType,
		)
		if err := r.store.MarkFailed(event.ID, "no handler registered for "+event.Provider+"/"+event.EventType); err != nil {
			r.log.Errorw("Failed to mark unhandled event", "event_id", event.ID, "error", err)
		}
		return
	}

	handlerErr := handler.Handle(ctx, event)
	if handlerErr == nil {
		summary.Succeeded++
		if err := r.store.MarkSucceeded(event.ID); err != nil {
			r.log.Errorw("Failed to mark webhook event succeeded", "event_id", event.ID, "error", err)
		}
		return
	}

	// Classification is the load-bearing branch: a terminal error retried
	// forever loops; a transient error failed terminally drops work.
	if IsTerminal(handlerErr) || event.Attempts >= event.MaxAttempts {
		summary.Failed++
		r.log.Errorw("Webhook event failed permanently",
			"event_id", event.ID,
			"provider", event.Provider,
			"event_type", event.EventType,
			"attempts", event.Attempts,
			"terminal", IsTerminal(handlerErr),
			"error", handlerErr,
		)
		if err := r.store.MarkFailed(event.ID, handlerErr.Error()); err != nil {
			r.log.Errorw("Failed to mark webhook event failed", "event_id", event.ID, "error", err)
		}
		return
	}

	delay := r.backoff.Delay(event.Attempts)
	runAt := time.Now().Add(delay)
	summary.Retried++
	r.log.Warnw("Webhook event failed, retry scheduled",
		"event_id", event.ID,
		"provider", event.Provider,
		"event_type", event.EventType,
		"attempts", event.Attempts,
		"max_attempts", event.MaxAttempts,
		"retry_in", delay.Round(time.Second),
		"error", handlerErr,
	)
	if err := r.store.MarkRetry(event.ID, handlerErr.Error(), runAt); err != nil {
		r.log.Errorw("Failed to schedule webhook event retry", "event_id", event.ID, "error", err)
	}
}

// finish refreshes the remaining-due count and logs the pass outcome.
func (r *Runner) finish(summary PassSummary) (PassSummary, error) {
	remaining, err := r.store.CountDue(time.Now())
	if err != nil {
		r.log.Warnw("Failed to count remaining due events", "error", err)
	} else {
		summary.Remaining = remaining
	}

	r.log.Infow("Webhook queue pass complete",
		"invocation_id", summary.InvocationID,
		"released_stale", summary.ReleasedStale,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"skipped", summary.Skipped,
		"remaining", summary.Remaining,
	)
	return summary, nil
}

// QueueStatus is a point-in-time backlog snapshot.
type QueueStatus struct {
	Due          int    `json:"due"`
	OldestDueAge string `json:"oldest_due_age,omitempty"`
}

// Status reports the current backlog without processing anything.
func (r *Runner) Status() (QueueStatus, error) {
	now := time.Now()
	due, err := r.store.CountDue(now)
	if err != nil {
		return QueueStatus{}, err
	}
	status := QueueStatus{Due: due}

	age, found, err := r.store.OldestDueAge(now)
	if err != nil {
		return QueueStatus{}, err
	}
	if found {
		status.OldestDueAge = age.Round(time.Second).String()
	}
	return status, nil
}

func (r *Runner) timeBudget() time.Duration {
	if r.cfg.TimeBudgetSeconds <= 0 {
		return 55 * time.Second
	}
	return time.Duration(r.cfg.TimeBudgetSeconds) * time.Second
}

func (r *Runner) safetyMargin() time.Duration {
	if r.cfg.SafetyMarginSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.cfg.SafetyMarginSeconds) * time.Second
}
