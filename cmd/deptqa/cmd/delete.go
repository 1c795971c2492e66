package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.docs.Delete(cmd.Context(), args[0], actorID); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted document %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "identity recorded in the audit log")
	return cmd
}
