package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/ui"
)

func newAskCmd() *cobra.Command {
	var (
		sessionID  string
		department string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the indexed documents",
		Long: `Runs one chat turn: the question is routed to a department, matched
against that department's indexed chunks (falling back to a company-wide
search if the scoped search comes back weak), and answered with citations
back to the source documents.

Pass --session to continue an existing conversation; omit it to start a
new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], sessionID, department, userID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session ID to continue")
	cmd.Flags().StringVar(&department, "department", "", "department scope hint for a new session")
	cmd.Flags().StringVar(&userID, "user", "cli", "identity recorded on the session and audit log")
	return cmd
}

func runAsk(cmd *cobra.Command, question, sessionID, department, userID string) error {
	ctx := cmd.Context()

	sess, err := app.sessions.Open(ctx, sessionID, department, userID)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	reply, err := app.chatSvc.Ask(ctx, sess, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, reply.Answer)

	// Piped output (e.g. into another tool) skips the decorative session/
	// sources footer and prints just the answer.
	if !ui.IsTTY(out) {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "session: %s  department: %s\n", sess.ID, reply.Routing.PrimaryDepartment)

	if len(reply.Citations) > 0 {
		fmt.Fprintln(out, "sources:")
		for _, c := range reply.Citations {
			fmt.Fprintf(out, "  %s (%s)\n", c.Title, formatLocator(c.Locator))
		}
	}
	return nil
}

func formatLocator(loc model.CitationLocator) string {
	switch loc.Type {
	case model.LocatorPageSet:
		return "pages " + joinInts(loc.Pages)
	default:
		return "chunks " + joinInts(loc.Chunks)
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
