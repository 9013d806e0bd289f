package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load configuration and report any validation errors",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config... ERROR: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config... ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Config... OK")
	fmt.Printf("  Data dir: %s\n", cfg.DataDir)
	fmt.Printf("  Tenant isolation: %v, require_auth: %v\n", cfg.Security.TenantIsolation, cfg.Security.RequireAuth)
	fmt.Printf("  Relationships enabled: %v (min_confidence=%.2f)\n", cfg.Relationships.Enabled, cfg.Relationships.MinConfidence)
}
