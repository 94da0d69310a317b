package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "outflow.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.trigger_secret", "")

	// Dispatch defaults
	v.SetDefault("dispatch.poll_interval_seconds", 60)
	v.SetDefault("dispatch.default_quota", 2)
	v.SetDefault("dispatch.high_quota", 6)
	v.SetDefault("dispatch.high_quota_workspaces", []string{})
	v.SetDefault("dispatch.cycle_batch_limit", 25)
	v.SetDefault("dispatch.stale_run_minutes", 30)
	v.SetDefault("dispatch.stale_run_recovery_limit", 50)

	// Queue defaults
	v.SetDefault("queue.batch_limit", 50)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.lock_stale_minutes", 10)
	v.SetDefault("queue.backoff_initial_seconds", 30)
	v.SetDefault("queue.backoff_max_seconds", 3600)
	v.SetDefault("queue.time_budget_seconds", 55)
	v.SetDefault("queue.safety_margin_seconds", 5)
	v.SetDefault("queue.rate_per_second", 0.0)

	// Maintenance defaults
	v.SetDefault("maintenance.retention_days", 30)
	v.SetDefault("maintenance.prune_batch_limit", 500)
	v.SetDefault("maintenance.queue_alert_minutes", 15)
	v.SetDefault("maintenance.run_alert_minutes", 30)
	v.SetDefault("maintenance.sweep_interval_minutes", 15)

	// Outreach defaults
	v.SetDefault("outreach.sender_mode", "log")
	v.SetDefault("outreach.send_timeout_seconds", 30)
}
