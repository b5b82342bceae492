package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rbholmes/toolchat/internal/llm"
	"github.com/rbholmes/toolchat/internal/mcp"
	"github.com/rbholmes/toolchat/internal/session"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with tool calling.

The model can read, write, and edit files in the workspace, run shell
commands, fetch URLs, and call tools from configured MCP servers.
Destructive tools prompt before running unless --yolo is set.

Slash commands:
  /clear       - Clear the conversation
  /tools       - List available tools
  /mcp         - Show MCP server status
  /mcp reconnect <name>
  /stats       - Show session statistics
  /quit        - Exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	store := session.NewMemoryStore()
	sess := &session.Session{
		Provider: a.cfg.Provider,
		Model:    a.modelName(),
		CWD:      a.sandbox.Root(),
	}
	if err := store.Create(ctx, sess); err != nil {
		return err
	}
	defer store.UpdateStatus(context.Background(), sess.ID, session.StatusComplete)

	fmt.Printf("%s (%s) — workspace %s\n", a.provider.Name(), a.modelName(), a.sandbox.Root())
	fmt.Println("Type a message, or /quit to exit.")

	var messages []llm.Message
	if a.cfg.Chat.Instructions != "" {
		messages = append(messages, llm.SystemText(a.cfg.Chat.Instructions))
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if done := handleSlashCommand(ctx, a, store, sess, input, &messages); done {
				return nil
			}
			continue
		}

		if sess.Summary == "" {
			sess.Summary = input
			store.Update(ctx, sess)
		}
		store.IncrementUserTurns(ctx, sess.ID)

		messages = append(messages, llm.UserText(input))
		store.AddMessage(ctx, sess.ID, &session.Message{Role: llm.RoleUser, Parts: []llm.Part{{Type: llm.PartText, Text: input}}})

		stream, err := a.engine.Stream(ctx, a.request(messages))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		res, err := renderStream(stream)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, llm.ErrConfirmationAbandoned) {
				store.UpdateStatus(ctx, sess.ID, session.StatusInterrupted)
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			messages = messages[:len(messages)-1]
			continue
		}

		messages = append(messages, llm.AssistantText(res.Text))
		store.AddMessage(ctx, sess.ID, &session.Message{Role: llm.RoleAssistant, Parts: []llm.Part{{Type: llm.PartText, Text: res.Text}}})
		store.UpdateMetrics(ctx, sess.ID, 1, res.ToolCalls, res.Usage.InputTokens, res.Usage.OutputTokens)
		printStats(res)
	}
}

// handleSlashCommand executes a /command. Returns true when the session
// should end.
func handleSlashCommand(ctx context.Context, a *app, store session.Store, sess *session.Session, input string, messages *[]llm.Message) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		var kept []llm.Message
		if a.cfg.Chat.Instructions != "" {
			kept = append(kept, llm.SystemText(a.cfg.Chat.Instructions))
		}
		*messages = kept
		fmt.Println("Conversation cleared.")
	case "/tools":
		for _, spec := range a.engine.Tools().AllSpecs() {
			marker := " "
			if spec.Destructive {
				marker = "!"
			}
			fmt.Printf("  %s %s\n", marker, spec.Name)
		}
	case "/stats":
		current, err := store.Get(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		fmt.Printf("turns: %d, llm calls: %d, tool calls: %d, tokens: %d in / %d out\n",
			current.UserTurns, current.LLMTurns, current.ToolCalls,
			current.InputTokens, current.OutputTokens)
	case "/mcp":
		handleMCPCommand(ctx, a.manager, fields[1:])
	case "/model":
		fmt.Printf("%s (%s)\n", a.provider.Name(), a.modelName())
	default:
		fmt.Printf("Unknown command %s\n", fields[0])
	}
	return false
}

func handleMCPCommand(ctx context.Context, manager *mcp.Manager, args []string) {
	if len(args) >= 2 && args[0] == "reconnect" {
		if err := manager.Restart(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Reconnecting %s...\n", args[1])
		return
	}

	states := manager.GetAllStates()
	if len(states) == 0 {
		fmt.Println("No MCP servers configured. Add one with: toolchat mcp add")
		return
	}
	for _, state := range states {
		line := fmt.Sprintf("  %s: %s", state.Name, state.Status)
		if state.Error != nil {
			line += fmt.Sprintf(" (%v)", state.Error)
		}
		fmt.Println(line)
	}
}
