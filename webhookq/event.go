// Package webhookq implements the durable, retryable webhook event queue:
// crash-safe optimistic locking, exponential backoff with jitter, and
// terminal-vs-retryable error classification.
package webhookq

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the queue state of a webhook event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusRunning   EventStatus = "RUNNING"
	EventStatusSucceeded EventStatus = "SUCCEEDED"
	EventStatusFailed    EventStatus = "FAILED"
)

// Event is one unit of retryable side-effect work. The payload is opaque:
// produced and consumed by the registered handler for (provider, event type).
//
// Invariant: status=RUNNING always carries locked_at; a RUNNING row whose
// locked_at predates the staleness cutoff is abandoned and must be released
// back to PENDING before normal dispatch scans.
type Event struct {
	ID          string          `json:"id"`
	Provider    string          `json:"provider"`
	EventType   string          `json:"event_type"`
	WorkspaceID string          `json:"workspace_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      EventStatus     `json:"status"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewEvent creates a PENDING event due immediately.
func NewEvent(provider, eventType, workspaceID string, payload json.RawMessage, maxAttempts int) *Event {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	now := time.Now().UTC()
	return &Event{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventType:   eventType,
		WorkspaceID: workspaceID,
		Payload:     payload,
		Status:      EventStatusPending,
		RunAt:       now,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
