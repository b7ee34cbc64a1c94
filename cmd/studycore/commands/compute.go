package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func render(v any) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Printf("%+v\n", v)
	return nil
}

func newComputeCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "compute <study-id>",
		Short: "Recompute one study's status from its protocol versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine()
			if err != nil {
				return err
			}
			res, err := engine.ComputeStatus(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(res)
			}
			if res.StatusChanged {
				fmt.Printf("study %s: %s -> %s\n", res.StudyID, res.OldStatus, res.NewStatus)
			} else {
				fmt.Printf("study %s: %s (unchanged)\n", res.StudyID, res.NewStatus)
			}
			if !res.Success {
				fmt.Printf("computation failed: %s\n", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded in the computation log")

	return cmd
}

func newBatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Recompute status for every study",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine()
			if err != nil {
				return err
			}
			res, err := engine.BatchCompute(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(res)
			}
			fmt.Printf("processed %d studies: %d succeeded, %d failed, %d changed",
				res.Total, res.Succeeded, res.Failed, res.Changed)
			if res.Cancelled {
				fmt.Print(" (cancelled)")
			}
			fmt.Printf(" in %s\n", res.Duration)
			return nil
		},
	}
}
