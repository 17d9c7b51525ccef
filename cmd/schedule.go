package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/duyet/duyetbot-agent/agents/router"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <query>",
	Short: "Schedule a fire-and-forget execution",
	Long: `Accept the query immediately and run it after the configured delay.
The answer is delivered to the console when the execution fires.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSchedule,
}

var (
	scheduleWait     bool
	scheduleDebug    bool
	scheduleChat     string
	scheduleUser     string
	schedulePlatform string
)

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().BoolVar(&scheduleWait, "wait", false, "Stay alive until the execution has fired")
	scheduleCmd.Flags().BoolVar(&scheduleDebug, "debug", false, "Deliver the routing trace with the answer")
	scheduleCmd.Flags().StringVar(&scheduleChat, "chat", "default", "Conversation id")
	scheduleCmd.Flags().StringVar(&scheduleUser, "user", "", "User id")
	scheduleCmd.Flags().StringVar(&schedulePlatform, "platform", "cli", "Calling surface")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	application, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.close()

	agentCtx := router.AgentContext{
		Query:    query,
		UserID:   scheduleUser,
		ChatID:   scheduleChat,
		Platform: schedulePlatform,
	}
	if scheduleDebug {
		agentCtx = agentCtx.WithData("debug", true)
	}

	target := router.ResponseTarget{Platform: "console", Destination: scheduleChat}

	scheduled, err := application.router.ScheduleExecution(cmd.Context(), query, agentCtx, target)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	fmt.Printf("Scheduled execution %s\n", scheduled.ExecutionID)

	if scheduleWait {
		waitForExecution(cmd, application, scheduled.ExecutionID)
	}
	return nil
}

// waitForExecution polls session state until the pending record is gone,
// meaning the alarm fired and delivery ran.
func waitForExecution(cmd *cobra.Command, application *app, executionID string) {
	deadline := time.Now().Add(application.config.Router.ExecutionDelay + 30*time.Second)

	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)

		state, err := application.router.State(cmd.Context(), scheduleChat)
		if err != nil {
			continue
		}
		if !hasPending(state, executionID) {
			return
		}
	}

	fmt.Println("Timed out waiting for the execution to fire.")
}

func hasPending(state router.SessionState, executionID string) bool {
	for _, p := range state.PendingExecutions {
		if p.ExecutionID == executionID {
			return true
		}
	}
	return false
}
