package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "outflow.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Empty(t, cfg.Server.TriggerSecret)

	assert.Equal(t, 60, cfg.Dispatch.PollIntervalSeconds)
	assert.Equal(t, 2, cfg.Dispatch.DefaultQuota)
	assert.Equal(t, 6, cfg.Dispatch.HighQuota)
	assert.Empty(t, cfg.Dispatch.HighQuotaWorkspaces)
	assert.Equal(t, 25, cfg.Dispatch.CycleBatchLimit)
	assert.Equal(t, 30, cfg.Dispatch.StaleRunMinutes)
	assert.Equal(t, 50, cfg.Dispatch.StaleRunRecoveryLimit)

	assert.Equal(t, 50, cfg.Queue.BatchLimit)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10, cfg.Queue.LockStaleMinutes)
	assert.Equal(t, 30, cfg.Queue.BackoffInitialSeconds)
	assert.Equal(t, 3600, cfg.Queue.BackoffMaxSeconds)
	assert.Equal(t, 55, cfg.Queue.TimeBudgetSeconds)
	assert.Equal(t, 5, cfg.Queue.SafetyMarginSeconds)
	assert.Zero(t, cfg.Queue.RatePerSecond)

	assert.Equal(t, 30, cfg.Maintenance.RetentionDays)
	assert.Equal(t, 500, cfg.Maintenance.PruneBatchLimit)
	assert.Equal(t, 15, cfg.Maintenance.QueueAlertMinutes)
	assert.Equal(t, 30, cfg.Maintenance.RunAlertMinutes)
	assert.Equal(t, 15, cfg.Maintenance.SweepIntervalMinutes)

	assert.Equal(t, "log", cfg.Outreach.SenderMode)
	assert.Equal(t, 30, cfg.Outreach.SendTimeoutSeconds)
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"negative port":               func(c *Config) { c.Server.Port = -1 },
		"negative poll interval":      func(c *Config) { c.Dispatch.PollIntervalSeconds = -5 },
		"negative cycle batch limit":  func(c *Config) { c.Dispatch.CycleBatchLimit = -1 },
		"negative stale run minutes":  func(c *Config) { c.Dispatch.StaleRunMinutes = -1 },
		"negative queue batch limit":  func(c *Config) { c.Queue.BatchLimit = -1 },
		"negative max attempts":       func(c *Config) { c.Queue.MaxAttempts = -1 },
		"negative lock stale minutes": func(c *Config) { c.Queue.LockStaleMinutes = -1 },
		"negative rate":               func(c *Config) { c.Queue.RatePerSecond = -0.5 },
		"negative retention":          func(c *Config) { c.Maintenance.RetentionDays = -1 },
		"negative prune batch limit":  func(c *Config) { c.Maintenance.PruneBatchLimit = -1 },
		"unknown sender mode":         func(c *Config) { c.Outreach.SenderMode = "carrier-pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsClampableQuotas(t *testing.T) {
	// Out-of-range quotas are clamped at resolution time, not rejected here.
	cfg := Default()
	cfg.Dispatch.DefaultQuota = 0
	cfg.Dispatch.HighQuota = 10000
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outflow.toml")
	content := `
[database]
path = "/var/lib/outflow/outflow.db"

[server]
port = 9000
trigger_secret = "s3cret"

[dispatch]
default_quota = 3
high_quota_workspaces = ["ws-vip"]

[queue]
batch_limit = 10
rate_per_second = 2.5

[outreach]
sender_mode = "webhook"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/outflow/outflow.db", cfg.Database.Path)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.TriggerSecret)
	assert.Equal(t, 3, cfg.Dispatch.DefaultQuota)
	assert.Equal(t, []string{"ws-vip"}, cfg.Dispatch.HighQuotaWorkspaces)
	assert.Equal(t, 10, cfg.Queue.BatchLimit)
	assert.InDelta(t, 2.5, cfg.Queue.RatePerSecond, 0.001)
	assert.Equal(t, "webhook", cfg.Outreach.SenderMode)

	// Unset keys keep their defaults.
	assert.Equal(t, 6, cfg.Dispatch.HighQuota)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadFromFileInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outflow.toml")
	content := `
[outreach]
sender_mode = "smoke-signal"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadWithViperEnvOverride(t *testing.T) {
	t.Setenv("OUTFLOW_QUEUE_BATCH_LIMIT", "7")
	t.Setenv("OUTFLOW_SERVER_PORT", "8123")

	v := viper.New()
	v.SetEnvPrefix("OUTFLOW")
	v.SetEnvKeyReplacer(envKeyReplacer())
	v.AutomaticEnv()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Queue.BatchLimit)
	assert.Equal(t, 8123, cfg.Server.Port)
}
