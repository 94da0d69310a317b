package config

import "github.com/outflowhq/outflow/errors"

// Validate checks that the configuration is structurally valid.
//
// Only shape errors are rejected here (negative counts, zero ports).
// Out-of-range quota values are accepted and clamped at resolution time,
// since no tuning value is load-bearing for correctness.
func (c *Config) Validate() error {
	if c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}

	if c.Dispatch.PollIntervalSeconds < 0 {
		return errors.Newf("dispatch.poll_interval_seconds must be >= 0, got %d", c.Dispatch.PollIntervalSeconds)
	}
	if c.Dispatch.CycleBatchLimit < 0 {
		return errors.Newf("dispatch.cycle_batch_limit must be >= 0, got %d", c.Dispatch.CycleBatchLimit)
	}
	if c.Dispatch.StaleRunMinutes < 0 {
		return errors.Newf("dispatch.stale_run_minutes must be >= 0, got %d", c.Dispatch.StaleRunMinutes)
	}

	if c.Queue.BatchLimit < 0 {
		return errors.Newf("queue.batch_limit must be >= 0, got %d", c.Queue.BatchLimit)
	}
	if c.Queue.MaxAttempts < 0 {
		return errors.Newf("queue.max_attempts must be >= 0, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.LockStaleMinutes < 0 {
		return errors.Newf("queue.lock_stale_minutes must be >= 0, got %d", c.Queue.LockStaleMinutes)
	}
	if c.Queue.RatePerSecond < 0 {
		return errors.Newf("queue.rate_per_second must be >= 0, got %f", c.Queue.RatePerSecond)
	}

	if c.Maintenance.RetentionDays < 0 {
		return errors.Newf("maintenance.retention_days must be >= 0, got %d", c.Maintenance.RetentionDays)
	}
	if c.Maintenance.PruneBatchLimit < 0 {
		return errors.Newf("maintenance.prune_batch_limit must be >= 0, got %d", c.Maintenance.PruneBatchLimit)
	}

	if c.Outreach.SenderMode != "" && c.Outreach.SenderMode != "log" && c.Outreach.SenderMode != "webhook" {
		return errors.Newf("outreach.sender_mode must be \"log\" or \"webhook\", got %q", c.Outreach.SenderMode)
	}

	return nil
}
