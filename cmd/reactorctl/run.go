package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/agent"
	"github.com/reactorflow/engine/config"
	"github.com/reactorflow/engine/reactor"
)

// demoState is the state type reactorctl demonstrates against when a caller
// hasn't embedded their own agent set and state type. Real deployments
// import package reactor directly and call Workflow[S].Run with their own
// S and agent definitions; this CLI only proves the infrastructure wiring
// end to end.
type demoState struct {
	LastReply string `json:"lastReply"`
}

var (
	configPath  string
	mode        string
	recordingID string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow from a YAML config",
	RunE:  runRun,
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a previously recorded run (shorthand for run --mode replay)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode = "replay"
		return runRun(cmd, args)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, replayCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "path to the run's YAML config")
		cmd.Flags().StringVar(&recordingID, "recording-id", "", "recording id for replay mode")
		_ = cmd.MarkFlagRequired("config")
	}
	runCmd.Flags().StringVar(&mode, "mode", "live", "live|record|replay")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	adapters := make([]adapter.Adapter, 0, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		built, err := buildAdapter(a, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		adapters = append(adapters, built)
	}

	store, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	h, err := buildHarness(cfg.Harness)
	if err != nil {
		return err
	}

	recording := reactor.RecordingConfig{Store: store}
	switch mode {
	case "record":
		recording.Mode = reactor.RecordingRecord
		recording.Name = "reactorctl-run"
	case "replay":
		recording.Mode = reactor.RecordingReplay
		recording.RecordingID = recordingID
	default:
		recording.Mode = reactor.RecordingLive
	}

	wf := reactor.New[demoState]()
	wf.Agent("responder", agent.Definition[demoState]{
		Patterns: []string{"workflow:start"},
		Prompt:   agent.Static[demoState]("reply"),
		Harness:  h,
		Updates:  "LastReply",
	})

	timeout := time.Duration(cfg.Timeout)
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	result, err := wf.Run(context.Background(), reactor.Config[demoState]{
		State:     demoState{},
		Timeout:   timeout,
		Adapters:  adapters,
		Recording: recording,
		HarnessRateLimit: reactor.HarnessRateLimit{
			RatePerSecond: cfg.HarnessRateLimit.RatePerSecond,
			Burst:         cfg.HarnessRateLimit.Burst,
		},
	})
	if err != nil {
		return fmt.Errorf("reactorctl: run failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "state: %+v\n", result.State)
	fmt.Fprintf(cmd.OutOrStdout(), "activations: %d, durationMs: %d, terminatedEarly: %v\n",
		result.Metrics.Activations, result.Metrics.DurationMs, result.TerminatedEarly)
	if result.RecordingID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "recordingId: %s\n", result.RecordingID)
	}
	return nil
}
