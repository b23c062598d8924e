// Package cmd wires the sessionflow CLI.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/sessionflow/internal/config"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sessionflow",
	Short: "Session store with coordinated concurrent access",
	Long: `Sessionflow keeps a local SQLite store of sessions and schedules every
load, save, delete, and activation through an operation coordinator so
concurrent access stays ordered, write bursts coalesce, and stuck
operations are cleared automatically.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/sessionflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging")
	rootCmd.PersistentFlags().StringP("store", "s", "",
		"path to the sessions database")

	// Bind flags to viper
	_ = viper.BindPFlag("store_path", rootCmd.PersistentFlags().Lookup("store"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("store_path", defaults.StorePath)
	viper.SetDefault("auto_reload", defaults.AutoReload)
	viper.SetDefault("coordinator.max_concurrent", defaults.Coordinator.MaxConcurrent)
	viper.SetDefault("coordinator.debounce", defaults.Coordinator.Debounce)
	viper.SetDefault("coordinator.starvation_age", defaults.Coordinator.StarvationAge)
	viper.SetDefault("coordinator.max_run_time", defaults.Coordinator.MaxRunTime)
	viper.SetDefault("coordinator.health_interval", defaults.Coordinator.HealthInterval)
	viper.SetDefault("coordinator.error_threshold", defaults.Coordinator.ErrorThreshold)
	viper.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	viper.SetDefault("watcher.debounce", defaults.Watcher.Debounce)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .sessionflow/config.yaml (current directory)
		// 2. ~/.config/sessionflow/config.yaml (user config)
		if _, err := os.Stat(".sessionflow/config.yaml"); err == nil {
			viper.SetConfigFile(".sessionflow/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "sessionflow"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .sessionflow/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".sessionflow/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
