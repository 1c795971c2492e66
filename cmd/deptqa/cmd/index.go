package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the vector index",
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show vector index configuration and statistics",
		Long: `Display the embedding dimensionality, vector count, and per-department
chunk totals backing the vector index.

This helps you:
- Confirm the index matches the configured embedding model's dimensions
- Check how many chunks are currently searchable
- Spot departments with documents but no indexed chunks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexInfo(cmd, jsonOutput)
		},
	}
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	cmd.AddCommand(infoCmd)
	return cmd
}

func runIndexInfo(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()

	departments, err := app.store.ListDepartments(ctx)
	if err != nil {
		return fmt.Errorf("list departments: %w", err)
	}
	documents, err := app.store.AllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	perDept := make(map[string]int, len(departments))
	totalChunks := 0
	for _, d := range documents {
		perDept[d.DepartmentSlug] += d.ChunkCount
		totalChunks += d.ChunkCount
	}

	if jsonOutput {
		out := map[string]any{
			"path":             app.cfg.Index.Path,
			"dimensions":       app.cfg.Index.Dimensions,
			"vector_count":     app.index.Count(),
			"total_chunks":     totalChunks,
			"document_count":   len(documents),
			"department_count": len(departments),
			"chunks_per_department": perDept,
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Vector Index")
	fmt.Fprintln(out, "============")
	fmt.Fprintf(out, "Path:        %s\n", app.cfg.Index.Path)
	fmt.Fprintf(out, "Dimensions:  %d\n", app.cfg.Index.Dimensions)
	fmt.Fprintf(out, "Vectors:     %d\n", app.index.Count())
	fmt.Fprintf(out, "Documents:   %d\n", len(documents))
	fmt.Fprintf(out, "Departments: %d\n", len(departments))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Chunks per department:")
	for _, d := range departments {
		fmt.Fprintf(out, "  %-16s %d\n", d.Slug, perDept[d.Slug])
	}
	return nil
}
