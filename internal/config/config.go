package config

import (
	"fmt"
	"os"
	"time"

	"github.com/docpulse/runtime-node/internal/errors"
	"gopkg.in/yaml.v3"
)

// NodeConfig holds node identity configuration
type NodeConfig struct {
	NodeID  string `yaml:"node_id"`
	DataDir string `yaml:"data_dir"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// TrailConfig holds trail tracker configuration.
// Smell thresholds are heuristics and deliberately tunable.
type TrailConfig struct {
	ReinforcementAmount  float64       `yaml:"reinforcement_amount"`
	DecayFactor          float64       `yaml:"decay_factor"`
	PruneFloor           float64       `yaml:"prune_floor"`
	WeightCeiling        float64       `yaml:"weight_ceiling"`
	SmellVolumeThreshold uint64        `yaml:"smell_volume_threshold"`
	SmellThrashInterval  time.Duration `yaml:"smell_thrash_interval"`
	VolumeWindow         time.Duration `yaml:"volume_window"`
}

// HealthConfig holds health aggregator configuration
type HealthConfig struct {
	Window              time.Duration `yaml:"window"`
	Bucket              time.Duration `yaml:"bucket"`
	SoftErrorRate       float64       `yaml:"soft_error_rate"`
	HardErrorRate       float64       `yaml:"hard_error_rate"`
	SoftResourcePercent float64       `yaml:"soft_resource_percent"`
	HardResourcePercent float64       `yaml:"hard_resource_percent"`
}

// SchedulerConfig holds maintenance scheduler configuration
type SchedulerConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	HealthSnapshotSpec string        `yaml:"health_snapshot_spec"`
	CacheCleanupSpec   string        `yaml:"cache_cleanup_spec"`
	TrailDecaySpec     string        `yaml:"trail_decay_spec"`
}

// WatchdogConfig holds backing-store watchdog configuration
type WatchdogConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Mode          string        `yaml:"mode"` // "file" or "grpc"
	Path          string        `yaml:"path"`
	Target        string        `yaml:"target"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// StoreConfig holds document store collaborator configuration
type StoreConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// GossipConfig holds health gossip configuration
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the runtime node
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Cache     CacheConfig     `yaml:"cache"`
	Trail     TrailConfig     `yaml:"trail"`
	Health    HealthConfig    `yaml:"health"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Gossip    GossipConfig    `yaml:"gossip"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults for unspecified values only; explicitly invalid values
	// are rejected by Validate, never coerced.
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
// Useful for embedding the runtime as a library.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Node.NodeID == "" {
		host, _ := os.Hostname()
		cfg.Node.NodeID = host
	}
	if cfg.Node.DataDir == "" {
		cfg.Node.DataDir = "/var/lib/docpulse"
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = time.Hour
	}

	if cfg.Trail.ReinforcementAmount == 0 {
		cfg.Trail.ReinforcementAmount = 0.1
	}
	if cfg.Trail.DecayFactor == 0 {
		cfg.Trail.DecayFactor = 0.9
	}
	if cfg.Trail.PruneFloor == 0 {
		cfg.Trail.PruneFloor = 0.01
	}
	if cfg.Trail.WeightCeiling == 0 {
		cfg.Trail.WeightCeiling = 1.0
	}
	if cfg.Trail.SmellVolumeThreshold == 0 {
		cfg.Trail.SmellVolumeThreshold = 50
	}
	if cfg.Trail.SmellThrashInterval == 0 {
		cfg.Trail.SmellThrashInterval = 2 * time.Second
	}
	if cfg.Trail.VolumeWindow == 0 {
		cfg.Trail.VolumeWindow = 10 * time.Minute
	}

	if cfg.Health.Window == 0 {
		cfg.Health.Window = 5 * time.Minute
	}
	if cfg.Health.Bucket == 0 {
		cfg.Health.Bucket = 10 * time.Second
	}
	if cfg.Health.SoftErrorRate == 0 {
		cfg.Health.SoftErrorRate = 0.10
	}
	if cfg.Health.HardErrorRate == 0 {
		cfg.Health.HardErrorRate = 0.50
	}
	if cfg.Health.SoftResourcePercent == 0 {
		cfg.Health.SoftResourcePercent = 80
	}
	if cfg.Health.HardResourcePercent == 0 {
		cfg.Health.HardResourcePercent = 95
	}

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Second
	}
	if cfg.Scheduler.HealthSnapshotSpec == "" {
		cfg.Scheduler.HealthSnapshotSpec = "every_5_minutes"
	}
	if cfg.Scheduler.CacheCleanupSpec == "" {
		cfg.Scheduler.CacheCleanupSpec = "hourly"
	}
	if cfg.Scheduler.TrailDecaySpec == "" {
		cfg.Scheduler.TrailDecaySpec = "1m"
	}

	if cfg.Watchdog.Mode == "" {
		cfg.Watchdog.Mode = "file"
	}
	if cfg.Watchdog.Path == "" {
		cfg.Watchdog.Path = cfg.Node.DataDir
	}
	if cfg.Watchdog.ProbeInterval == 0 {
		cfg.Watchdog.ProbeInterval = 30 * time.Second
	}
	if cfg.Watchdog.ProbeTimeout == 0 {
		cfg.Watchdog.ProbeTimeout = 5 * time.Second
	}
	if cfg.Watchdog.MaxRetries == 0 {
		cfg.Watchdog.MaxRetries = 5
	}
	if cfg.Watchdog.RetryInterval == 0 {
		cfg.Watchdog.RetryInterval = 5 * time.Second
	}

	if cfg.Store.BaseURL == "" {
		cfg.Store.BaseURL = "http://localhost:8000"
	}
	if cfg.Store.RequestTimeout == 0 {
		cfg.Store.RequestTimeout = 10 * time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9102
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Gossip.BindPort == 0 {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.MaxEntries < 1 {
		return errors.InvalidConfig("cache.max_entries", "must be at least 1")
	}
	if c.Cache.DefaultTTL < 0 {
		return errors.InvalidConfig("cache.default_ttl", "must not be negative")
	}

	if c.Trail.ReinforcementAmount <= 0 {
		return errors.InvalidConfig("trail.reinforcement_amount", "must be positive")
	}
	if c.Trail.DecayFactor <= 0 || c.Trail.DecayFactor >= 1 {
		return errors.InvalidConfig("trail.decay_factor", "must be strictly between 0 and 1")
	}
	if c.Trail.PruneFloor < 0 {
		return errors.InvalidConfig("trail.prune_floor", "must not be negative")
	}
	if c.Trail.WeightCeiling < c.Trail.ReinforcementAmount {
		return errors.InvalidConfig("trail.weight_ceiling", "must be at least trail.reinforcement_amount")
	}

	if c.Health.Bucket <= 0 || c.Health.Window <= 0 {
		return errors.InvalidConfig("health.window", "window and bucket must be positive")
	}
	if c.Health.Bucket > c.Health.Window {
		return errors.InvalidConfig("health.bucket", "must not exceed health.window")
	}
	if c.Health.SoftErrorRate <= 0 || c.Health.SoftErrorRate >= c.Health.HardErrorRate {
		return errors.InvalidConfig("health.soft_error_rate", "must be positive and below health.hard_error_rate")
	}
	if c.Health.HardErrorRate > 1 {
		return errors.InvalidConfig("health.hard_error_rate", "must not exceed 1")
	}
	if c.Health.SoftResourcePercent <= 0 || c.Health.SoftResourcePercent >= c.Health.HardResourcePercent {
		return errors.InvalidConfig("health.soft_resource_percent", "must be positive and below health.hard_resource_percent")
	}
	if c.Health.HardResourcePercent > 100 {
		return errors.InvalidConfig("health.hard_resource_percent", "must not exceed 100")
	}

	if c.Scheduler.TickInterval <= 0 {
		return errors.InvalidConfig("scheduler.tick_interval", "must be positive")
	}

	switch c.Watchdog.Mode {
	case "file", "grpc":
	default:
		return errors.InvalidConfig("watchdog.mode", "must be 'file' or 'grpc'")
	}
	if c.Watchdog.Enabled && c.Watchdog.Mode == "grpc" && c.Watchdog.Target == "" {
		return errors.InvalidConfig("watchdog.target", "required when watchdog.mode is 'grpc'")
	}
	if c.Watchdog.MaxRetries < 1 {
		return errors.InvalidConfig("watchdog.max_retries", "must be at least 1")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.InvalidConfig("metrics.port", "must be between 1 and 65535")
	}

	return nil
}
