package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.NotEmpty(t, cfg.StorePath)
	require.True(t, cfg.AutoReload)
	require.Equal(t, 3, cfg.Coordinator.MaxConcurrent)
	require.Equal(t, 75*time.Millisecond, cfg.Coordinator.Debounce)
	require.Equal(t, 10*time.Second, cfg.Coordinator.StarvationAge)
	require.Equal(t, 30*time.Second, cfg.Coordinator.MaxRunTime)
	require.Equal(t, 30*time.Second, cfg.Coordinator.HealthInterval)
	require.Equal(t, 3, cfg.Coordinator.ErrorThreshold)
	require.True(t, cfg.Watcher.Enabled)
	require.Equal(t, 500*time.Millisecond, cfg.Watcher.Debounce)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)

	require.NoError(t, Validate(cfg), "Defaults must validate")
}

func TestValidateCoordinator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CoordinatorConfig
		wantErr bool
	}{
		{name: "zero values are valid", cfg: CoordinatorConfig{}},
		{name: "defaults are valid", cfg: Defaults().Coordinator},
		{name: "negative max_concurrent", cfg: CoordinatorConfig{MaxConcurrent: -1}, wantErr: true},
		{name: "negative debounce", cfg: CoordinatorConfig{Debounce: -time.Second}, wantErr: true},
		{name: "negative starvation_age", cfg: CoordinatorConfig{StarvationAge: -time.Second}, wantErr: true},
		{name: "negative max_run_time", cfg: CoordinatorConfig{MaxRunTime: -time.Second}, wantErr: true},
		{name: "negative health_interval", cfg: CoordinatorConfig{HealthInterval: -time.Second}, wantErr: true},
		{name: "negative error_threshold", cfg: CoordinatorConfig{ErrorThreshold: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinator(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracingConfig
		wantErr bool
	}{
		{name: "empty config is valid", cfg: TracingConfig{}},
		{name: "stdout exporter", cfg: TracingConfig{Enabled: true, Exporter: "stdout", SampleRate: 1.0}},
		{name: "none exporter", cfg: TracingConfig{Enabled: true, Exporter: "none"}},
		{name: "otlp with endpoint", cfg: TracingConfig{Enabled: true, Exporter: "otlp", OTLPEndpoint: "localhost:4317", SampleRate: 0.5}},
		{name: "file exporter", cfg: TracingConfig{Enabled: true, Exporter: "file", FilePath: "/tmp/traces.jsonl", SampleRate: 1.0}},
		{name: "otlp without endpoint", cfg: TracingConfig{Enabled: true, Exporter: "otlp"}, wantErr: true},
		{name: "unknown exporter", cfg: TracingConfig{Exporter: "jaeger"}, wantErr: true},
		{name: "sample rate too high", cfg: TracingConfig{SampleRate: 1.5}, wantErr: true},
		{name: "sample rate negative", cfg: TracingConfig{SampleRate: -0.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfigTemplate_IsValidYAML(t *testing.T) {
	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate()), &out))
	require.Contains(t, out, "coordinator")
	require.Contains(t, out, "watcher")
}

func TestWriteDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}
