package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check computation error rate and storage infrastructure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine()
			if err != nil {
				return err
			}
			report, err := engine.CheckSystemHealth(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(report)
			}
			state := "healthy"
			if !report.Healthy {
				state = "unhealthy"
			}
			fmt.Printf("%s: %d computations, %d errors (%.1f%%) in the last 24h\n",
				state, report.RecentComputations, report.RecentErrors, report.ErrorRatePercent)
			if !report.Infrastructure.Present() {
				fmt.Println("storage infrastructure incomplete")
			}
			return nil
		},
	}
}
