package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rbholmes/toolchat/internal/llm"
	"golang.org/x/term"
)

// terminalConfirm prompts on the controlling terminal for a destructive tool
// call. Without a TTY there is nobody to ask, so the call is rejected.
func terminalConfirm(ctx context.Context, pending *llm.PendingConfirmation) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "rejecting %s: no terminal to confirm on (use --yolo to auto-approve)\n", pending.ToolName)
		pending.Reject()
		return
	}

	label := pending.ToolName
	if pending.Summary != "" {
		label += " " + pending.Summary
	}
	fmt.Printf("\nAllow %s? [y/N] ", label)

	answer := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		answer <- line
	}()

	select {
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			pending.Approve()
		default:
			pending.Reject()
		}
	case <-ctx.Done():
		// Abandoned; the engine surfaces this as a cancelled turn.
	}
}
