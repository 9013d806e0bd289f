package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordlesssteve/layered-memory/pkg/config"
)

var (
	// Version is set during build.
	Version = "0.1.0"

	cfgFile  string
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "memoryengine",
	Short: "Administrative CLI for the hierarchical memory engine",
	Long: `memoryengine operates a hierarchical, tenant-scoped AI-assistant memory
store: session/project/global/temporal layers behind a router, a
relationship engine, and a tenant access overlay.

This CLI is administrative only: inspecting layer stats, triggering
backups and restores, validating configuration, and running the admin
HTTP surface. Store/search/retrieve is a library surface
(internal/router + internal/tenant), not a CLI concern.

Examples:
  memoryengine stats
  memoryengine backup --layer project
  memoryengine restore <layer> <backup-id>
  memoryengine config validate
  memoryengine serve-admin --port 8090`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
