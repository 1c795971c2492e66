package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexAllCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "reindex-all",
		Short: "Re-extract, re-chunk, and re-embed every document",
		Long: `Sweeps every document across every department: deletes its existing
chunks and vectors, re-runs extraction and chunking, and re-embeds. Use this
after changing the embedding model, chunk size, or extraction logic.

Individual document failures don't abort the sweep — they're tallied and
reported at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindexAll(cmd, actorID)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "identity recorded in the audit log")
	return cmd
}

func runReindexAll(cmd *cobra.Command, actorID string) error {
	summary, err := app.docs.ReindexAll(cmd.Context(), actorID)
	if err != nil {
		return fmt.Errorf("reindex-all: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "reindexed %d/%d documents (%d failed)\n",
		summary.SuccessDocuments, summary.TotalDocuments, summary.FailedDocuments)

	if len(summary.EngineCounts) > 0 {
		fmt.Fprintln(out, "extraction engines used:")
		for engine, count := range summary.EngineCounts {
			fmt.Fprintf(out, "  %-12s %d\n", engine, count)
		}
	}
	if len(summary.WarningCounts) > 0 {
		fmt.Fprintln(out, "extraction warnings:")
		for warning, count := range summary.WarningCounts {
			fmt.Fprintf(out, "  %-32s %d\n", warning, count)
		}
	}
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "FAILED %s (%s): %s\n", f.DocumentID, f.Filename, f.Error)
	}
	return nil
}
