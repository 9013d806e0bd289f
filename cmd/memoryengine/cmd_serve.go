package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cordlesssteve/layered-memory/internal/adminapi"
	"github.com/cordlesssteve/layered-memory/internal/engine"
)

var (
	serveAdminHost string
	serveAdminPort int
	serveAdminCORS []string
)

var serveAdminCmd = &cobra.Command{
	Use:   "serve-admin",
	Short: "Run the admin HTTP surface (health, stats, audit, backup)",
	Long: `serve-admin starts the read-mostly admin HTTP API described in
spec.md §4.7: /admin/v1/health, /stats, /audit, and /backup. It is not
the tool-call protocol memory clients use to store or search.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServeAdmin()
	},
}

func init() {
	serveAdminCmd.Flags().StringVar(&serveAdminHost, "host", "127.0.0.1", "bind host")
	serveAdminCmd.Flags().IntVar(&serveAdminPort, "port", 8090, "bind port")
	serveAdminCmd.Flags().StringSliceVar(&serveAdminCORS, "cors-origin", nil, "allowed CORS origins (repeatable)")
	rootCmd.AddCommand(serveAdminCmd)
}

func runServeAdmin() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	srv := adminapi.NewServer(adminapi.Config{
		Host:         serveAdminHost,
		Port:         serveAdminPort,
		AllowOrigins: serveAdminCORS,
	}, e.Router, e.Tenant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := srv.Start(ctx, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "admin API server error: %v\n", err)
		os.Exit(1)
	}
}
