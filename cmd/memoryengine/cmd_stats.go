package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordlesssteve/layered-memory/internal/engine"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-layer item counts and byte sizes",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats() {
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

	fmt.Println("Memory Engine Stats")
	fmt.Println("====================")
	for _, l := range e.Router.Layers() {
		st := l.Stats()
		policy := l.Policy()
		fmt.Printf("%-10s items=%-6d bytes=%-10d max_items=%-6d max_bytes=%d\n",
			st.Layer, st.ItemCount, st.ByteSize, policy.MaxItems, policy.MaxBytes)
	}
}
