// Package dispatch implements the Outflow background dispatch cycle:
// duplicate-invocation suppression via the dispatch window ledger,
// workspace-fair ordering of pending jobs, quota-aware claiming, and
// recovery of function runs left behind by crashed cycles.
package dispatch

import "encoding/json"

// Job is one unit of pending workspace work, read from wherever pending
// work lives and discarded after being handed to execution. The payload is
// opaque to this package; domain code owns its structure.
type Job struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
