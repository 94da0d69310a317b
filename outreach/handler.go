package outreach

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/outflowhq/outflow/errors"
	"github.com/outflowhq/outflow/webhookq"
)

// DeliveryHandler processes queued delivery events. The event payload only
// carries a job ID; the job row is re-read on every attempt so stale events
// for jobs already settled elsewhere become no-ops.
type DeliveryHandler struct {
	jobs   *Store
	sender Sender
	log    *zap.SugaredLogger
}

// NewDeliveryHandler creates the queue handler for outreach delivery.
func NewDeliveryHandler(jobs *Store, sender Sender, log *zap.SugaredLogger) *DeliveryHandler {
	return &DeliveryHandler{jobs: jobs, sender: sender, log: log}
}

func (h *DeliveryHandler) Provider() string  { return EventProvider }
func (h *DeliveryHandler) EventType() string { return EventTypeDeliver }

// Handle delivers the referenced job. Malformed payloads and missing jobs
// are terminal: retrying cannot repair them. Send failures stay retryable
// and park the job back in ENQUEUED for the next attempt.
func (h *DeliveryHandler) Handle(ctx context.Context, event *webhookq.Event) error {
	var payload deliverPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return webhookq.Terminalf("malformed delivery payload: %v", err)
	}
	if payload.JobID == "" {
		return webhookq.Terminal(errors.New("delivery payload missing job_id"))
	}

	job, err := h.jobs.GetJob(payload.JobID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return webhookq.Terminalf("outreach job not found: %s", payload.JobID)
		}
		return err
	}

	// Already settled by an inline fallback or a concurrent attempt.
	if job.Status == StatusSent {
		h.log.Debugw("Skipping delivery for settled job", "job_id", job.ID, "status", job.Status)
		return nil
	}

	if err := h.jobs.SetStatus(job.ID, StatusSending, ""); err != nil {
		return err
	}

	if err := h.sender.Send(ctx, job); err != nil {
		if webhookq.IsTerminal(err) {
			if statusErr := h.jobs.SetStatus(job.ID, StatusFailed, err.Error()); statusErr != nil {
				return statusErr
			}
			return err
		}
		// Park for retry; the queue owns the backoff schedule.
		if statusErr := h.jobs.SetStatus(job.ID, StatusEnqueued, err.Error()); statusErr != nil {
			return statusErr
		}
		return err
	}

	return h.jobs.SetStatus(job.ID, StatusSent, "")
}
