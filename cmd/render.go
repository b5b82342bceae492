package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rbholmes/toolchat/internal/llm"
)

// exchangeResult summarizes one rendered stream.
type exchangeResult struct {
	Text      string
	ToolCalls int
	Usage     llm.Usage
}

// renderStream prints a stream to stdout as it arrives: text deltas verbatim,
// tool activity as single status lines, retries as notices on stderr.
func renderStream(stream llm.Stream) (*exchangeResult, error) {
	defer stream.Close()

	res := &exchangeResult{}
	var text strings.Builder
	needNewline := false

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch event.Type {
		case llm.EventTextDelta:
			fmt.Print(event.Text)
			text.WriteString(event.Text)
			needNewline = !strings.HasSuffix(event.Text, "\n")
		case llm.EventToolExecStart:
			if needNewline {
				fmt.Println()
				needNewline = false
			}
			fmt.Printf("* %s %s\n", event.ToolName, event.ToolInfo)
			res.ToolCalls++
		case llm.EventToolExecEnd:
			if !event.ToolSuccess {
				fmt.Printf("* %s failed\n", event.ToolName)
			}
		case llm.EventServerToolUse:
			if event.Tool != nil {
				fmt.Printf("* %s (provider-side)\n", event.Tool.Name)
			}
		case llm.EventRetry:
			fmt.Fprintf(os.Stderr, "retrying (%d/%d) in %.0fs...\n",
				event.RetryAttempt, event.RetryMaxAttempts, event.RetryWaitSecs)
		case llm.EventUsage:
			if event.Use != nil {
				res.Usage.InputTokens += event.Use.InputTokens
				res.Usage.OutputTokens += event.Use.OutputTokens
			}
		case llm.EventError:
			if event.Err != nil {
				return nil, event.Err
			}
		case llm.EventDone:
			// Terminal; the loop exits on EOF.
		}
	}

	if needNewline {
		fmt.Println()
	}
	res.Text = text.String()
	return res, nil
}

func printStats(res *exchangeResult) {
	if !flagStats || res == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "[tokens: %d in / %d out, tool calls: %d]\n",
		res.Usage.InputTokens, res.Usage.OutputTokens, res.ToolCalls)
}
