package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runtimeerrors "github.com/docpulse/runtime-node/internal/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
node:
  node_id: "test-node"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.Node.NodeID)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 0.9, cfg.Trail.DecayFactor)
	assert.Equal(t, 0.1, cfg.Trail.ReinforcementAmount)
	assert.Equal(t, 5*time.Minute, cfg.Health.Window)
	assert.Equal(t, 0.10, cfg.Health.SoftErrorRate)
	assert.Equal(t, 0.50, cfg.Health.HardErrorRate)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, "every_5_minutes", cfg.Scheduler.HealthSnapshotSpec)
	assert.Equal(t, "file", cfg.Watchdog.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	path := writeConfigFile(t, `
cache:
  max_entries: 2
  default_ttl: 30s
trail:
  reinforcement_amount: 0.2
  decay_factor: 0.5
  weight_ceiling: 2.0
health:
  window: 1m
  bucket: 5s
scheduler:
  tick_interval: 250ms
watchdog:
  enabled: true
  mode: grpc
  target: "localhost:50051"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 0.5, cfg.Trail.DecayFactor)
	assert.Equal(t, 2.0, cfg.Trail.WeightCeiling)
	assert.Equal(t, time.Minute, cfg.Health.Window)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, "grpc", cfg.Watchdog.Mode)
	assert.Equal(t, "localhost:50051", cfg.Watchdog.Target)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "cache: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max entries", func(c *Config) { c.Cache.MaxEntries = -1 }},
		{"decay factor of one", func(c *Config) { c.Trail.DecayFactor = 1.0 }},
		{"decay factor above one", func(c *Config) { c.Trail.DecayFactor = 1.5 }},
		{"negative prune floor", func(c *Config) { c.Trail.PruneFloor = -0.1 }},
		{"ceiling below reinforcement", func(c *Config) {
			c.Trail.ReinforcementAmount = 0.5
			c.Trail.WeightCeiling = 0.1
		}},
		{"bucket larger than window", func(c *Config) {
			c.Health.Window = time.Second
			c.Health.Bucket = time.Minute
		}},
		{"soft error rate above hard", func(c *Config) {
			c.Health.SoftErrorRate = 0.6
			c.Health.HardErrorRate = 0.5
		}},
		{"hard error rate above one", func(c *Config) { c.Health.HardErrorRate = 1.5 }},
		{"resource percent above hundred", func(c *Config) { c.Health.HardResourcePercent = 120 }},
		{"negative tick interval", func(c *Config) { c.Scheduler.TickInterval = -time.Second }},
		{"unknown watchdog mode", func(c *Config) { c.Watchdog.Mode = "tcp" }},
		{"grpc watchdog without target", func(c *Config) {
			c.Watchdog.Enabled = true
			c.Watchdog.Mode = "grpc"
			c.Watchdog.Target = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, runtimeerrors.ErrCodeInvalidConfig, runtimeerrors.GetCode(err))
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
