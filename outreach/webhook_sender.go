package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/outflowhq/outflow/errors"
	"github.com/outflowhq/outflow/internal/httpclient"
	"github.com/outflowhq/outflow/webhookq"
)

// WebhookSender delivers jobs by POSTing their payload to a
// workspace-configured callback URL. The URL lives inside the job payload
// (`callback_url`); customer-controlled, so requests go through the
// SSRF-hardened client.
type WebhookSender struct {
	client *httpclient.SaferClient
}

// NewWebhookSender creates a webhook-based sender.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{client: httpclient.NewSaferClient(timeout)}
}

type callbackEnvelope struct {
	CallbackURL string `json:"callback_url"`
}

// Send posts the job payload to its callback URL. A missing or invalid URL
// is terminal; HTTP 4xx (except 408 and 429) is terminal; everything else
// stays retryable.
func (s *WebhookSender) Send(ctx context.Context, job *Job) error {
	var envelope callbackEnvelope
	if err := json.Unmarshal(job.Payload, &envelope); err != nil {
		return webhookq.Terminalf("malformed job payload: %v", err)
	}
	if envelope.CallbackURL == "" {
		return webhookq.Terminal(errors.New("job payload missing callback_url"))
	}

	u, err := s.client.ValidateURL(envelope.CallbackURL)
	if err != nil {
		return webhookq.Terminalf("callback URL rejected: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(job.Payload))
	if err != nil {
		return errors.Wrap(err, "failed to build callback request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Outflow-Job-ID", job.ID)
	req.Header.Set("X-Outflow-Workspace-ID", job.WorkspaceID)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "callback request to %s failed", u.Hostname())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Newf("callback returned %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The receiver rejected the request outright; retrying the same
		// payload cannot change the answer.
		return webhookq.Terminalf("callback returned %d", resp.StatusCode)
	default:
		return errors.Newf("callback returned %d", resp.StatusCode)
	}
}
