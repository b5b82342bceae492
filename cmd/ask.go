package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rbholmes/toolchat/internal/llm"
	"github.com/spf13/cobra"
)

var askNoTools bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question",
	Long: `Ask a single question and print the answer. The model can use the
built-in tools and any configured MCP servers while answering.

Examples:
  toolchat ask "what does this project do?"
  toolchat ask "how many go files are in here?"
  toolchat ask --no-tools "explain CRDTs"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoTools, "no-tools", false, "Answer without tool access")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx, !askNoTools)
	if err != nil {
		return err
	}
	defer cleanup()

	question := strings.Join(args, " ")
	messages := []llm.Message{llm.UserText(question)}

	req := a.request(messages)
	if askNoTools {
		req.Tools = nil
	}

	stream, err := a.engine.Stream(ctx, req)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	res, err := renderStream(stream)
	if err != nil {
		return err
	}
	printStats(res)
	return nil
}
