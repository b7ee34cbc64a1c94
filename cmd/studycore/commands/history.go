package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"studycore/internal/archive"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <study-id>",
		Short: "Show a study's computation log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine()
			if err != nil {
				return err
			}
			entries, err := engine.ComputationHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(entries)
			}
			for _, entry := range entries {
				outcome := "ok"
				if !entry.Success {
					outcome = "failed"
				}
				fmt.Printf("%s  %s -> %s  %s  (%s)\n",
					entry.RecordedAt.Format("2006-01-02 15:04:05"),
					entry.OldStatus, entry.NewStatus, outcome, entry.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show (0 for all)")

	return cmd
}

func newArchiveCommand() *cobra.Command {
	var (
		studyID string
		days    int
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export the computation log to the configured archive backend",
		Long: `Export computation log entries as a JSON snapshot.

The destination is selected via STUDYCORE_ARCHIVE_DRIVER (fs|s3|memory).
With --study the full history of one study is exported; otherwise all
entries recorded in the last --days are exported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine()
			if err != nil {
				return err
			}
			dst, err := archive.Open(cmd.Context())
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			manifest, err := engine.ArchiveHistory(cmd.Context(), dst, studyID, days)
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(manifest)
			}
			fmt.Printf("archived %d entries to %s (%s)\n", manifest.Entries, manifest.Key, dst.Driver())
			return nil
		},
	}

	cmd.Flags().StringVar(&studyID, "study", "", "export one study's full history")
	cmd.Flags().IntVar(&days, "days", 30, "window in days when exporting all studies")

	return cmd
}
