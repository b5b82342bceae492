package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	flagDebug    bool
	flagYolo     bool
	flagWorkdir  string
	flagProvider string
	flagModel    string
	flagMaxTurns int
	flagStats    bool
)

var rootCmd = &cobra.Command{
	Use:   "toolchat",
	Short: "Terminal LLM chat with tool calling",
	Long: `toolchat is a terminal chat client where the model can call tools:
sandboxed file and shell tools built in, plus any tool hosted by an
MCP server. Destructive tools ask for confirmation before running.

Examples:
  toolchat chat                          # interactive chat
  toolchat ask "what does main.go do?"   # one-shot question
  toolchat chat --yolo                   # skip confirmations
  toolchat mcp add fs -- npx -y @modelcontextprotocol/server-filesystem .
  toolchat config                        # view configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Write a debug log to the config directory")
	rootCmd.PersistentFlags().BoolVar(&flagYolo, "yolo", false, "Auto-approve destructive tool calls (dangerous)")
	rootCmd.PersistentFlags().StringVar(&flagWorkdir, "workdir", "", "Workspace root for file tools (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Override provider, optionally with model (e.g. openai:gpt-5.2)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Override the model for the active provider")
	rootCmd.PersistentFlags().IntVar(&flagMaxTurns, "max-turns", 0, "Max agentic turns per exchange (0 = config default)")
	rootCmd.PersistentFlags().BoolVar(&flagStats, "stats", false, "Show token and tool-call statistics")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
