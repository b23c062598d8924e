// Package config provides configuration types, defaults, and persistence
// for sessionflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/sessionflow/internal/log"
)

// Config holds all configuration options for sessionflow.
type Config struct {
	// StorePath is the SQLite database file holding sessions.
	// Default: ~/.sessionflow/sessions.db
	StorePath string `mapstructure:"store_path"`

	// AutoReload reloads the active session when the store file changes
	// outside this process (another device syncing, a backup restore).
	AutoReload bool `mapstructure:"auto_reload"`

	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// CoordinatorConfig tunes the operation coordinator. Zero values fall back
// to the coordinator's own defaults.
type CoordinatorConfig struct {
	// MaxConcurrent caps operations executing at once. Default: 3
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// Debounce is the retry delay when queued operations are blocked by
	// in-flight work on the same session. Default: 75ms
	Debounce time.Duration `mapstructure:"debounce"`

	// StarvationAge is the queue wait beyond which an operation jumps the
	// priority order. Default: 10s
	StarvationAge time.Duration `mapstructure:"starvation_age"`

	// MaxRunTime is how long an operation may execute before the health
	// monitor force-clears it. Default: 30s
	MaxRunTime time.Duration `mapstructure:"max_run_time"`

	// HealthInterval is the health monitor sweep cadence. Default: 30s
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// ErrorThreshold is the consecutive-failure count that triggers a full
	// reset. Default: 3
	ErrorThreshold int `mapstructure:"error_threshold"`
}

// WatcherConfig controls the store file watcher.
type WatcherConfig struct {
	// Enabled turns the watcher on. Default: true
	Enabled bool `mapstructure:"enabled"`

	// Debounce collapses bursts of file events into one notification.
	// Default: 500ms
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active. Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: traces.jsonl next to the store.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// 1.0 = all traces, 0.1 = 10% of traces
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultStorePath returns the default sessions database location.
// Returns ~/.sessionflow/sessions.db or a relative fallback if the home
// directory is unavailable.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sessions.db"
	}
	return filepath.Join(home, ".sessionflow", "sessions.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		StorePath:  DefaultStorePath(),
		AutoReload: true,
		Coordinator: CoordinatorConfig{
			MaxConcurrent:  3,
			Debounce:       75 * time.Millisecond,
			StarvationAge:  10 * time.Second,
			MaxRunTime:     30 * time.Second,
			HealthInterval: 30 * time.Second,
			ErrorThreshold: 3,
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration for errors.
func Validate(cfg Config) error {
	if err := ValidateCoordinator(cfg.Coordinator); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateCoordinator checks coordinator tuning for errors.
// Returns nil if the configuration is valid (zero values use defaults).
func ValidateCoordinator(c CoordinatorConfig) error {
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("coordinator.max_concurrent must not be negative, got %d", c.MaxConcurrent)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("coordinator.debounce must not be negative, got %v", c.Debounce)
	}
	if c.StarvationAge < 0 {
		return fmt.Errorf("coordinator.starvation_age must not be negative, got %v", c.StarvationAge)
	}
	if c.MaxRunTime < 0 {
		return fmt.Errorf("coordinator.max_run_time must not be negative, got %v", c.MaxRunTime)
	}
	if c.HealthInterval < 0 {
		return fmt.Errorf("coordinator.health_interval must not be negative, got %v", c.HealthInterval)
	}
	if c.ErrorThreshold < 0 {
		return fmt.Errorf("coordinator.error_threshold must not be negative, got %d", c.ErrorThreshold)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Sessionflow Configuration

# Path to the sessions database
# store_path: ~/.sessionflow/sessions.db

# Reload the active session when the store file changes outside this process
auto_reload: true

# Operation coordinator tuning
coordinator:
  max_concurrent: 3      # Operations executing at once
  debounce: 75ms         # Retry delay when an operation is blocked by in-flight work
  starvation_age: 10s    # Queue wait beyond which an operation jumps the priority order
  max_run_time: 30s      # Running longer than this is treated as stuck
  health_interval: 30s   # Health monitor sweep cadence
  error_threshold: 3     # Consecutive failures before a full reset

# Store file watcher
watcher:
  enabled: true
  debounce: 500ms        # Collapse bursts of file events into one notification

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ""                  # Output file for file exporter (default: traces.jsonl next to the store)
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
