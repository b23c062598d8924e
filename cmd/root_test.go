package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sessionflow/internal/config"
)

func TestCoordinatorConfigFrom_MapsAllFields(t *testing.T) {
	in := config.CoordinatorConfig{
		MaxConcurrent:  7,
		Debounce:       20 * time.Millisecond,
		StarvationAge:  5 * time.Second,
		MaxRunTime:     time.Minute,
		HealthInterval: 15 * time.Second,
		ErrorThreshold: 9,
	}

	out := coordinatorConfigFrom(in)
	require.Equal(t, 7, out.MaxConcurrent)
	require.Equal(t, 20*time.Millisecond, out.Debounce)
	require.Equal(t, 5*time.Second, out.StarvationAge)
	require.Equal(t, time.Minute, out.MaxRunTime)
	require.Equal(t, 15*time.Second, out.HealthInterval)
	require.Equal(t, 9, out.ErrorThreshold)
}

func TestCoordinatorConfigFrom_ZeroPassesThrough(t *testing.T) {
	// Zero values reach the coordinator untouched so its own defaults apply.
	out := coordinatorConfigFrom(config.CoordinatorConfig{})
	require.Zero(t, out.MaxConcurrent)
	require.Zero(t, out.Debounce)
	require.Nil(t, out.RecoveryHook)
}

func TestTraceFilePath(t *testing.T) {
	cfg := config.Config{StorePath: "/data/sessionflow/sessions.db"}
	require.Equal(t, "/data/sessionflow/traces.jsonl", traceFilePath(cfg))

	cfg.Tracing.FilePath = "/tmp/custom.jsonl"
	require.Equal(t, "/tmp/custom.jsonl", traceFilePath(cfg))
}
