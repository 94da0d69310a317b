// Package config holds the Outflow background-processing configuration.
//
// Every numeric setting here is a tuning knob, not a correctness switch:
// invalid or missing values fall back to documented defaults, and quota
// values are additionally clamped at resolution time (see dispatch.QuotaPolicy).
package config

// Config represents the core Outflow configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Server      ServerConfig      `mapstructure:"server"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Outreach    OutreachConfig    `mapstructure:"outreach"`
}

// OutreachConfig configures outreach delivery
type OutreachConfig struct {
	// SenderMode selects the delivery backend: "log" (development no-op)
	// or "webhook" (POST to the job's callback URL).
	SenderMode string `mapstructure:"sender_mode"`

	SendTimeoutSeconds int `mapstructure:"send_timeout_seconds"` // per-delivery HTTP timeout (default: 30)
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the Outflow trigger server
type ServerConfig struct {
	Port int `mapstructure:"port"` // HTTP port for trigger endpoints (default: 8710)

	// TriggerSecret guards the internal trigger endpoints. Accepted as a
	// bearer token, the X-Outflow-Secret header, or the ?secret query
	// parameter. Empty disables the trigger endpoints entirely.
	TriggerSecret string `mapstructure:"trigger_secret"`
}

// DispatchConfig configures the outer dispatch cycle and workspace quotas
type DispatchConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // dispatch window quantization (default: 60)

	// Per-workspace concurrency quotas. Both are clamped to [1,100] at
	// resolution time, and high_quota is raised to at least default_quota.
	DefaultQuota int `mapstructure:"default_quota"` // default: 2
	HighQuota    int `mapstructure:"high_quota"`    // default: 6

	// HighQuotaWorkspaces is the legacy static allow-list of workspace IDs
	// that always receive the high quota tier, merged with per-workspace
	// settings resolved by the caller.
	HighQuotaWorkspaces []string `mapstructure:"high_quota_workspaces"`

	CycleBatchLimit int `mapstructure:"cycle_batch_limit"` // max jobs claimed per cycle (default: 25)

	StaleRunMinutes       int `mapstructure:"stale_run_minutes"`        // RUNNING rows older than this are stuck (default: 30)
	StaleRunRecoveryLimit int `mapstructure:"stale_run_recovery_limit"` // max runs force-failed per sweep (default: 50)
}

// QueueConfig configures the webhook event queue runner
type QueueConfig struct {
	BatchLimit       int `mapstructure:"batch_limit"`        // max events selected per pass (default: 50)
	MaxAttempts      int `mapstructure:"max_attempts"`       // default ceiling for new events (default: 5)
	LockStaleMinutes int `mapstructure:"lock_stale_minutes"` // RUNNING locks older than this are abandoned (default: 10)

	BackoffInitialSeconds int `mapstructure:"backoff_initial_seconds"` // default: 30
	BackoffMaxSeconds     int `mapstructure:"backoff_max_seconds"`     // default: 3600

	TimeBudgetSeconds   int `mapstructure:"time_budget_seconds"`   // wall-clock budget per pass (default: 55)
	SafetyMarginSeconds int `mapstructure:"safety_margin_seconds"` // stop claiming this close to the deadline (default: 5)

	// RatePerSecond throttles handler dispatch within a pass to protect
	// downstream receivers. 0 disables throttling.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// MaintenanceConfig configures the periodic maintenance sweep
type MaintenanceConfig struct {
	RetentionDays   int `mapstructure:"retention_days"`    // prune run/event rows older than this (default: 30)
	PruneBatchLimit int `mapstructure:"prune_batch_limit"` // rows deleted per table per sweep (default: 500)

	QueueAlertMinutes int `mapstructure:"queue_alert_minutes"` // oldest-due-event age worth alerting on (default: 15)
	RunAlertMinutes   int `mapstructure:"run_alert_minutes"`   // oldest-RUNNING-run age worth alerting on (default: 30)

	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"` // serve-mode sweep cadence (default: 15)
}

// DefaultServerPort is the development port for the trigger server.
const DefaultServerPort = 8710
