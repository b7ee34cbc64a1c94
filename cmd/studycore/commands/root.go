// Package commands wires the studycore engine and service into a CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"studycore/internal/core"
)

var jsonOutput bool

// Execute runs the root command.
func Execute(ctx context.Context, version, commit string) error {
	rootCmd := newRootCommand(version, commit)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "studycore",
		Short: "Clinical study lifecycle management",
		Long: `Studycore manages the lifecycle of clinical studies, their protocol
versions, and amendments. Study statuses are derived from protocol
version states and every computation is recorded in an audit log.

Storage is selected via STUDYCORE_STORAGE_DRIVER (memory|sqlite|postgres).`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newComputeCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newArchiveCommand())
	rootCmd.AddCommand(newStudyCommand())
	rootCmd.AddCommand(newTransitionsCommand())

	return rootCmd
}

// openEngine builds a status computation engine on the configured store.
func openEngine() (*core.Engine, core.PersistentStore, error) {
	store, err := core.OpenPersistentStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logs, ok := store.(core.ComputationLogStore)
	if !ok {
		return nil, nil, fmt.Errorf("store %T does not record computations", store)
	}
	engine := core.NewEngine(store, logs, core.WithLogger(log.Logger))
	return engine, store, nil
}

func openService() (*core.Service, error) {
	store, err := core.OpenPersistentStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	svc := core.NewService(store, nil)
	svc.SetLogger(log.Logger)
	return svc, nil
}
