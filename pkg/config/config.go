// Package config loads the frame cache's YAML configuration file,
// following the defaults-then-unmarshal-then-validate shape of the
// teacher's pkg/config/config.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"framecache/internal/logging"
)

// Config is the root configuration structure.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Store     StoreConfig     `yaml:"store"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Pattern   PatternConfig   `yaml:"pattern"`
	Preload   PreloadConfig   `yaml:"preload"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   logging.LogConfig `yaml:"logging"`
}

// NodeConfig identifies this cache instance for logging correlation.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// StoreConfig mirrors spec.md section 6's store options.
type StoreConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	ByteLimit  string `yaml:"byte_limit"` // e.g. "2GB", parsed by ParseByteSize
}

// MonitorConfig mirrors spec.md section 6's monitor options.
type MonitorConfig struct {
	SampleIntervalMS int     `yaml:"sample_interval_ms"`
	HistoryCapacity  int     `yaml:"history_capacity"`
	ForceEvictHigh   float64 `yaml:"force_evict_high"`
	ForceEvictLow    float64 `yaml:"force_evict_low"`
}

// PatternConfig mirrors spec.md section 6's pattern analyzer options.
type PatternConfig struct {
	WindowCapacity    int `yaml:"window_capacity"`
	MinSamples        int `yaml:"min_samples"`
	VerdictCacheTTLMS int `yaml:"verdict_cache_ttl_ms"`
}

// PreloadConfig mirrors spec.md section 6's preloader options.
type PreloadConfig struct {
	Workers           int `yaml:"workers"`
	PreloadRadiusBase int `yaml:"preload_radius_base"`
}

// OptimizerConfig mirrors spec.md section 6's optimizer options.
type OptimizerConfig struct {
	RoutineIntervalS           int     `yaml:"routine_interval_s"`
	WarnLatencyMS              int     `yaml:"warn_latency_ms"`
	EmergencyOccupancyFraction float64 `yaml:"emergency_occupancy_fraction"`
	HistoryCapacity            int     `yaml:"history_capacity"`
}

// AgentConfig mirrors spec.md section 6's top-level agent options.
type AgentConfig struct {
	GetDeadlineMS int `yaml:"get_deadline_ms"`
}

// Load reads and parses the configuration file at path, falling back to
// documented defaults if it does not exist — same behavior as the
// teacher's Load.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("configuration file %s not found, using defaults\n", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{ID: "framecache-node-1"},
		Store: StoreConfig{
			MaxEntries: 500,
			ByteLimit:  "2GB",
		},
		Monitor: MonitorConfig{
			SampleIntervalMS: 5000,
			HistoryCapacity:  720,
			ForceEvictHigh:   0.95,
			ForceEvictLow:    0.75,
		},
		Pattern: PatternConfig{
			WindowCapacity:    200,
			MinSamples:        10,
			VerdictCacheTTLMS: 10_000,
		},
		Preload: PreloadConfig{
			Workers:           3,
			PreloadRadiusBase: 25,
		},
		Optimizer: OptimizerConfig{
			RoutineIntervalS:           30,
			WarnLatencyMS:              45,
			EmergencyOccupancyFraction: 0.80,
			HistoryCapacity:            100,
		},
		Agent: AgentConfig{
			GetDeadlineMS: 50,
		},
		Logging: logging.LogConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			BufferSize:    1000,
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id cannot be empty")
	}
	if c.Store.MaxEntries <= 0 {
		return fmt.Errorf("store.max_entries must be positive")
	}
	if _, err := ParseByteSize(c.Store.ByteLimit); err != nil {
		return fmt.Errorf("store.byte_limit: %w", err)
	}
	if c.Preload.Workers <= 0 {
		return fmt.Errorf("preload.workers must be positive")
	}
	if c.Agent.GetDeadlineMS <= 0 {
		return fmt.Errorf("agent.get_deadline_ms must be positive")
	}
	if c.Optimizer.WarnLatencyMS <= 0 {
		return fmt.Errorf("optimizer.warn_latency_ms must be positive")
	}
	if c.Optimizer.RoutineIntervalS <= 0 {
		return fmt.Errorf("optimizer.routine_interval_s must be positive")
	}
	if c.Monitor.SampleIntervalMS <= 0 {
		return fmt.Errorf("monitor.sample_interval_ms must be positive")
	}
	return nil
}

// SampleInterval returns Monitor.SampleIntervalMS as a Duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Monitor.SampleIntervalMS) * time.Millisecond
}

// RoutineInterval returns Optimizer.RoutineIntervalS as a Duration.
func (c *Config) RoutineInterval() time.Duration {
	return time.Duration(c.Optimizer.RoutineIntervalS) * time.Second
}

// WarnLatency returns Optimizer.WarnLatencyMS as a Duration.
func (c *Config) WarnLatency() time.Duration {
	return time.Duration(c.Optimizer.WarnLatencyMS) * time.Millisecond
}

// GetDeadline returns Agent.GetDeadlineMS as a Duration.
func (c *Config) GetDeadline() time.Duration {
	return time.Duration(c.Agent.GetDeadlineMS) * time.Millisecond
}

// VerdictCacheTTL returns Pattern.VerdictCacheTTLMS as a Duration.
func (c *Config) VerdictCacheTTL() time.Duration {
	return time.Duration(c.Pattern.VerdictCacheTTLMS) * time.Millisecond
}
