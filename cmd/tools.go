package cmd

import (
	"fmt"

	"github.com/rbholmes/toolchat/internal/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List built-in tools",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	sandbox, err := tools.NewSandbox(flagWorkdir)
	if err != nil {
		return err
	}

	fmt.Printf("Built-in tools (workspace %s):\n\n", sandbox.Root())
	for _, t := range tools.All(sandbox, tools.DefaultOutputLimits()) {
		spec := t.Spec()
		marker := " "
		if spec.Destructive {
			marker = "!"
		}
		fmt.Printf("  %s %-14s %s\n", marker, spec.Name, spec.Description)
	}
	fmt.Println("\nTools marked ! require confirmation before running.")
	return nil
}
