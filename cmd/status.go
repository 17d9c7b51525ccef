package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a session's routing history and pending executions",
	RunE:  runStatus,
}

var statusChat string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusChat, "chat", "default", "Conversation id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.close()

	state, err := application.router.State(cmd.Context(), statusChat)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	fmt.Printf("Session %s (updated %s)\n", state.SessionID, state.UpdatedAt.Format("2006-01-02 15:04:05"))

	if state.LastClassification != nil {
		c := state.LastClassification
		fmt.Printf("Last classification: %s/%s complexity=%s confidence=%.2f\n",
			c.Type, c.Category, c.Complexity, c.Confidence)
	}

	fmt.Printf("\nRouting history (%d):\n", len(state.RoutingHistory))
	for _, entry := range state.RoutingHistory {
		fmt.Printf("  %s  %-18s %5dms  %q\n",
			entry.Timestamp.Format("15:04:05"), entry.RoutedTo, entry.DurationMs, entry.Query)
	}

	if len(state.PendingExecutions) > 0 {
		fmt.Printf("\nPending executions (%d):\n", len(state.PendingExecutions))
		for _, p := range state.PendingExecutions {
			fmt.Printf("  %s  scheduled %s  %q\n",
				p.ExecutionID, p.ScheduledAt.Format("15:04:05"), p.Query)
		}
	}

	return nil
}
