package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duyet/duyetbot-agent/agents/router"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Route a query and print the answer",
	Long:  `Classify the query, dispatch it to the right handler, and print the result.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	askDebug    bool
	askChat     string
	askUser     string
	askPlatform string
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().BoolVar(&askDebug, "debug", false, "Print the routing trace")
	askCmd.Flags().StringVar(&askChat, "chat", "default", "Conversation id")
	askCmd.Flags().StringVar(&askUser, "user", "", "User id")
	askCmd.Flags().StringVar(&askPlatform, "platform", "cli", "Calling surface")
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	application, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.close()

	agentCtx := router.AgentContext{
		Query:    query,
		UserID:   askUser,
		ChatID:   askChat,
		Platform: askPlatform,
	}

	if askDebug {
		result, _, trace := application.router.RouteWithTrace(cmd.Context(), query, agentCtx)
		printResult(result)
		fmt.Printf("\n--- debug ---\n%s\n", trace.Render())
		return nil
	}

	result, _ := application.router.Route(cmd.Context(), query, agentCtx)
	printResult(result)
	return nil
}

func printResult(result router.AgentResult) {
	if !result.Success {
		fmt.Printf("Request failed: %s\n", result.Error)
		return
	}
	fmt.Println(result.Content)
	if result.NextAction != "" {
		fmt.Printf("\n[next action: %s]\n", result.NextAction)
	}
}
