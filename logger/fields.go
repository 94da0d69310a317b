package logger

// Standard field names for consistent structured logging across Outflow.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldWorkspaceID   = "workspace_id"
	FieldJobID         = "job_id"
	FieldEventID       = "event_id"
	FieldRunID         = "run_id"
	FieldRunKey        = "run_key"
	FieldDispatchKey   = "dispatch_key"
	FieldCorrelationID = "correlation_id"
	FieldInvocationID  = "invocation_id"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldEventType = "event_type"
	FieldFunction  = "function_name"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldRunAt      = "run_at"
	FieldLockedAt   = "locked_at"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount     = "count"
	FieldAttempts  = "attempts"
	FieldBatchSize = "batch_size"
	FieldRemaining = "remaining"

	// Status
	FieldStatus = "status"
)
