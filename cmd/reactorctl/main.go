// Command reactorctl is the CLI front door for the reactive agent workflow
// engine: it wires infrastructure (adapters, signal store, harness backend)
// from a YAML config and drives a run, live, recorded, or replayed. It
// never interprets agent prompts or business logic.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reactorctl",
	Short:   "Run and inspect reactive agent workflow engine runs",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("reactorctl version %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(runCmd, replayCmd, recordingsCmd)
}
