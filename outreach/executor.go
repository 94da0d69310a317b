package outreach

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/errors"
	"github.com/outflowhq/outflow/webhookq"
)

// Event type used for delivery handoff through the durable queue.
const (
	EventProvider    = "outflow"
	EventTypeDeliver = "outreach.deliver"
)

// Sender performs the actual outreach delivery (email, chat, sequence step).
// Implementations wrap external clients; transient failures should return a
// plain error, unrecoverable ones a webhookq terminal error.
type Sender interface {
	Send(ctx context.Context, job *Job) error
}

// deliverPayload is the queue event body: a pointer to the durable job row,
// not a copy of it, so the row stays the single source of truth.
type deliverPayload struct {
	JobID string `json:"job_id"`
}

// Executor hands claimed jobs to execution. It implements
// dispatch.JobExecutor: Enqueue parks a durable delivery event for the queue
// runner, ExecuteInline delivers synchronously as the emergency fallback.
type Executor struct {
	jobs   *Store
	events *webhookq.Store
	sender Sender
	cfg    EventConfig
	log    *zap.SugaredLogger
}

// EventConfig carries the queue settings delivery events are created with.
type EventConfig struct {
	MaxAttempts int
}

// NewExecutor creates an executor.
func NewExecutor(jobs *Store, events *webhookq.Store, sender Sender, cfg EventConfig, log *zap.SugaredLogger) *Executor {
	return &Executor{jobs: jobs, events: events, sender: sender, cfg: cfg, log: log}
}

// Enqueue creates a durable delivery event and marks the job ENQUEUED.
func (e *Executor) Enqueue(ctx context.Context, job dispatch.Job) error {
	payload, err := json.Marshal(deliverPayload{JobID: job.ID})
	if err != nil {
		return errors.Wrap(err, "failed to encode delivery payload")
	}

	event := webhookq.NewEvent(EventProvider, EventTypeDeliver, job.WorkspaceID, payload, e.cfg.MaxAttempts)
	if err := e.events.CreateEvent(event); err != nil {
		return errors.Wrapf(err, "failed to enqueue delivery for job %s", job.ID)
	}

	if err := e.jobs.SetStatus(job.ID, StatusEnqueued, ""); err != nil {
		// The event exists either way; the handler re-checks job status, so
		// a missed status update costs a log line, not a double send.
		e.log.Warnw("Failed to mark outreach job enqueued",
			"job_id", job.ID,
			"error", err,
		)
	}
	return nil
}

// ExecuteInline delivers the job synchronously, bypassing the queue.
func (e *Executor) ExecuteInline(ctx context.Context, job dispatch.Job) error {
	full, err := e.jobs.GetJob(job.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to load outreach job %s", job.ID)
	}
	return deliver(ctx, e.jobs, e.sender, full)
}

// deliver runs one delivery attempt and settles the job row.
func deliver(ctx context.Context, jobs *Store, sender Sender, job *Job) error {
	if err := jobs.SetStatus(job.ID, StatusSending, ""); err != nil {
		return err
	}

	if err := sender.Send(ctx, job); err != nil {
		if statusErr := jobs.SetStatus(job.ID, StatusFailed, err.Error()); statusErr != nil {
			return statusErr
		}
		return err
	}
	return jobs.SetStatus(job.ID, StatusSent, "")
}
