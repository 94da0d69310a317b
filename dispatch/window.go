package dispatch

import "time"

// WindowStatus is the lifecycle state of a dispatch window.
type WindowStatus string

const (
	WindowStatusDispatching     WindowStatus = "DISPATCHING"
	WindowStatusEnqueued        WindowStatus = "ENQUEUED"
	WindowStatusEnqueueFailed   WindowStatus = "ENQUEUE_FAILED"
	WindowStatusInlineEmergency WindowStatus = "INLINE_EMERGENCY"
)

// DispatchWindow identifies one polling cycle. The dispatch key is derived
// from a quantized time bucket plus a source tag, so two overlapping
// invocations of the same cycle compute the same key and collide on the
// unique constraint.
type DispatchWindow struct {
	ID            string       `json:"id"`
	DispatchKey   string       `json:"dispatch_key"`
	Source        string       `json:"source"`
	RequestedAt   time.Time    `json:"requested_at"`
	WindowStart   time.Time    `json:"window_start"`
	WindowSeconds int          `json:"window_seconds"`
	CorrelationID string       `json:"correlation_id"`
	Status        WindowStatus `json:"status"`

	ProcessDispatchID     *string `json:"process_dispatch_id,omitempty"`
	MaintenanceDispatchID *string `json:"maintenance_dispatch_id,omitempty"`
	ProcessEventID        *string `json:"process_event_id,omitempty"`
	MaintenanceEventID    *string `json:"maintenance_event_id,omitempty"`

	ErrorMessage *string   `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DispatchKey derives the quantized window key for a source and instant.
// All invocations within the same poll interval derive the same key.
func DispatchKey(source string, at time.Time, pollInterval time.Duration) string {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	bucket := at.UTC().Truncate(pollInterval)
	return source + ":" + bucket.Format(time.RFC3339)
}

// RegisterResult is the outcome of attempting to claim a dispatch window.
//
// TrackingEnabled=false means the ledger itself was unavailable; tracking
// degrades but the caller must still proceed with dispatch (fail open).
// DuplicateSuppressed=true means another invocation already owns this window
// and the caller must skip dispatch entirely.
type RegisterResult struct {
	TrackingEnabled     bool
	DuplicateSuppressed bool
	Existing            *DispatchWindow
}
