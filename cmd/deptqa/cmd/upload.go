package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/northbound/deptqa/internal/ingest"
)

func newUploadCmd() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "upload <department> <file>",
		Short: "Upload and ingest a document into a department",
		Long: `Reads a file from disk, extracts its text, splits it into chunks,
embeds each chunk, and persists both the chunks and their vectors so the
document becomes searchable for that department immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], args[1], actorID)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "cli", "identity recorded in the audit log")
	return cmd
}

func runUpload(cmd *cobra.Command, department, path, actorID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	filename := filepath.Base(path)
	contentType := ingest.DetectContentType(filename)

	doc, err := app.docs.Upload(cmd.Context(), department, actorID, filename, contentType, data)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "uploaded %s to %s\n", doc.Filename, doc.DepartmentSlug)
	fmt.Fprintf(out, "  document id: %s\n", doc.ID)
	fmt.Fprintf(out, "  status:      %s\n", doc.Status)
	fmt.Fprintf(out, "  chunks:      %d\n", doc.ChunkCount)
	return nil
}
