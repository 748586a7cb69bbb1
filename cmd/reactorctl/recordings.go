package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reactorflow/engine/config"
	"github.com/reactorflow/engine/signalstore"
)

var recordingsStoreConfigPath string

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "Inspect a signal store's recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings in the configured store",
	RunE:  recordingsList,
}

var recordingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recording's metadata and events",
	Args:  cobra.ExactArgs(1),
	RunE:  recordingsShow,
}

func init() {
	recordingsCmd.PersistentFlags().StringVar(&recordingsStoreConfigPath, "config", "", "path to the YAML config naming the store")
	_ = recordingsCmd.MarkPersistentFlagRequired("config")
	recordingsCmd.AddCommand(recordingsListCmd, recordingsShowCmd)
}

func recordingsList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(recordingsStoreConfigPath)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	metas, err := store.List(context.Background(), signalstore.Query{})
	if err != nil {
		return err
	}
	for _, m := range metas {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tfinalized=%v\n", m.ID, m.Name, m.Finalized())
	}
	return nil
}

func recordingsShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(recordingsStoreConfigPath)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	rec, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id: %s\nname: %s\ncreatedAt: %s\neventCount: %d\n",
		rec.Metadata.ID, rec.Metadata.Name, rec.Metadata.CreatedAt, len(rec.Events))
	for _, evt := range rec.Events {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\n", evt.ID(), evt.Name())
	}
	return nil
}
