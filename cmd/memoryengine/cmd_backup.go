package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordlesssteve/layered-memory/internal/engine"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

var backupLayerFlag string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot one or every layer to a timestamped backup file",
	Long: `backup flushes pending writes and writes a timestamped copy of a
layer's snapshot file, returning an opaque backup id per layer
(spec.md §4.1.4).

Examples:
  memoryengine backup                 # backup every layer
  memoryengine backup --layer project`,
	Run: func(cmd *cobra.Command, args []string) {
		runBackup(backupLayerFlag)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <layer> <backup-id>",
	Short: "Restore a layer from a backup id returned by `backup`",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runRestore(args[0], args[1])
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupLayerFlag, "layer", "", "restrict the backup to one layer (session, project, global, temporal)")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runBackup(layerName string) {
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

	if layerName != "" {
		if _, ok := e.Router.Layers()[memtypes.Layer(layerName)]; !ok {
			fmt.Fprintf(os.Stderr, "unknown layer %q\n", layerName)
			os.Exit(1)
		}
	}

	for name, l := range e.Router.Layers() {
		if layerName != "" && string(name) != layerName {
			continue
		}
		id, err := l.Backup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: backup failed: %v\n", name, err)
			continue
		}
		fmt.Printf("%s: backup id %s\n", name, id)
	}
}

func runRestore(layerName, backupID string) {
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

	l, ok := e.Router.Layers()[memtypes.Layer(layerName)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown layer %q\n", layerName)
		os.Exit(1)
	}

	if err := l.Restore(context.Background(), backupID); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: restored from backup %s\n", layerName, backupID)
}
