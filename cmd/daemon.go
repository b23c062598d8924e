package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/sessionflow/internal/config"
	"github.com/zjrosen/sessionflow/internal/coordinator"
	"github.com/zjrosen/sessionflow/internal/infrastructure/sqlite"
	"github.com/zjrosen/sessionflow/internal/log"
	"github.com/zjrosen/sessionflow/internal/paths"
	"github.com/zjrosen/sessionflow/internal/service"
	"github.com/zjrosen/sessionflow/internal/tracing"
	"github.com/zjrosen/sessionflow/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the session coordinator daemon",
	Long: `Run sessionflow as a long-lived daemon. The daemon owns the session
store, schedules all operations through the coordinator, and watches the
store file so sessions changed by another process are reloaded.

Example:
  sessionflow daemon
  sessionflow daemon --store ~/.sessionflow/sessions.db
  SESSIONFLOW_DEBUG=1 sessionflow daemon   # with debug logging`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

// coordinatorConfigFrom maps file configuration onto the coordinator's
// config. Zero values pass through so the coordinator's own defaults apply.
func coordinatorConfigFrom(c config.CoordinatorConfig) coordinator.Config {
	return coordinator.Config{
		MaxConcurrent:  c.MaxConcurrent,
		Debounce:       c.Debounce,
		StarvationAge:  c.StarvationAge,
		MaxRunTime:     c.MaxRunTime,
		HealthInterval: c.HealthInterval,
		ErrorThreshold: c.ErrorThreshold,
	}
}

// traceFilePath resolves the file exporter output path, defaulting to
// traces.jsonl next to the store.
func traceFilePath(cfg config.Config) string {
	if cfg.Tracing.FilePath != "" {
		return cfg.Tracing.FilePath
	}
	return filepath.Join(filepath.Dir(cfg.StorePath), "traces.jsonl")
}

func runDaemon(_ *cobra.Command, _ []string) error {
	// Initialize logging if debug mode enabled (via flag or env var)
	debug := os.Getenv("SESSIONFLOW_DEBUG") != "" || debugFlag
	if debug {
		logPath := os.Getenv("SESSIONFLOW_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}

		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()

		log.Info(log.CatConfig, "Sessionflow daemon starting", "debug", true, "logPath", logPath)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.StorePath = paths.ResolveStorePath(cfg.StorePath)
	db, err := sqlite.NewDB(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() { _ = db.Close() }()
	log.Info(log.CatStore, "session store open", "path", db.Path())

	tracingCfg := cfg.Tracing
	if tracingCfg.Enabled && tracingCfg.Exporter == "file" && tracingCfg.FilePath == "" {
		tracingCfg.FilePath = traceFilePath(cfg)
	}
	provider, err := tracing.NewProvider(tracingCfg)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	coordCfg := coordinatorConfigFrom(cfg.Coordinator)
	coordCfg.RecoveryHook = db.IntegrityCheck
	if provider.Enabled() {
		coordCfg.Tracer = provider.Tracer()
	}

	coord := coordinator.New(coordCfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)

	svc := service.NewSessionService(coord, db.SessionRepository())

	// Watch the store for external writes and reload the active session
	// through the coordinator so the usual scheduling rules apply.
	var storeWatcher *watcher.Watcher
	if cfg.Watcher.Enabled && cfg.AutoReload {
		storeWatcher, err = watcher.New(watcher.Config{
			StorePath:   cfg.StorePath,
			DebounceDur: cfg.Watcher.Debounce,
		})
		if err != nil {
			return fmt.Errorf("creating store watcher: %w", err)
		}
		onChange, err := storeWatcher.Start()
		if err != nil {
			return fmt.Errorf("starting store watcher: %w", err)
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-onChange:
					if !ok {
						return
					}
					svc.InvalidateCache(ctx)
					if _, err := svc.Active(ctx); err != nil {
						log.Debug(log.CatWatcher, "active session reload skipped", "reason", err)
					}
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Sessionflow daemon started (store: %s)\n", db.Path())
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	fmt.Printf("\nReceived %s, shutting down...\n", sig)

	// Stop feeding new work before draining the coordinator.
	if storeWatcher != nil {
		if err := storeWatcher.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "Error stopping store watcher", err)
		}
	}
	cancel()
	coord.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatTrace, "Error shutting down tracing", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}
