package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbholmes/toolchat/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpAddEnv []string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage MCP (Model Context Protocol) servers",
	Long: `Manage MCP servers for extending toolchat with external tools.

Examples:
  toolchat mcp list
  toolchat mcp add fs -- npx -y @modelcontextprotocol/server-filesystem .
  toolchat mcp remove fs
  toolchat mcp test fs
  toolchat mcp tools fs`,
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE:  mcpList,
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name> -- <command> [args...]",
	Short: "Add an MCP server",
	Long: `Add a stdio MCP server to the configuration and verify it starts.

Everything after -- is the command line used to launch the server.

Examples:
  toolchat mcp add fs -- npx -y @modelcontextprotocol/server-filesystem .
  toolchat mcp add github --env GITHUB_TOKEN=$GITHUB_TOKEN -- github-mcp-server stdio`,
	Args: cobra.MinimumNArgs(2),
	RunE: mcpAdd,
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  mcpRemove,
}

var mcpTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Test an MCP server connection",
	Long: `Start an MCP server, run the initialization handshake, list its
tools, and stop it again.`,
	Args: cobra.ExactArgs(1),
	RunE: mcpTest,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools <name>",
	Short: "List an MCP server's tools",
	Long: `List the tools a server exposes. Uses the cached catalog from the
last successful connection when available; falls back to connecting.`,
	Args: cobra.ExactArgs(1),
	RunE: mcpTools,
}

var mcpPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print MCP configuration file path",
	RunE:  mcpPath,
}

func init() {
	mcpAddCmd.Flags().StringArrayVar(&mcpAddEnv, "env", nil, "Environment variable for the server, KEY=VALUE (repeatable)")
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpAddCmd)
	mcpCmd.AddCommand(mcpRemoveCmd)
	mcpCmd.AddCommand(mcpTestCmd)
	mcpCmd.AddCommand(mcpToolsCmd)
	mcpCmd.AddCommand(mcpPathCmd)
}

func mcpList(cmd *cobra.Command, args []string) error {
	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Servers) == 0 {
		fmt.Println("No MCP servers configured.")
		fmt.Println()
		fmt.Println("Add one with: toolchat mcp add <name> -- <command> [args...]")
		return nil
	}

	fmt.Printf("Configured MCP servers (%d):\n\n", len(cfg.Servers))
	for _, name := range cfg.ServerNames() {
		server := cfg.Servers[name]
		fmt.Printf("  %s\n", name)
		fmt.Printf("    command: %s %s\n", server.Command, strings.Join(server.Args, " "))
		if len(server.Env) > 0 {
			fmt.Printf("    env: %d variables\n", len(server.Env))
		}
	}

	path, _ := mcp.DefaultConfigPath()
	fmt.Printf("\nConfig file: %s\n", path)
	return nil
}

func mcpAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	command := args[1]
	commandArgs := args[2:]

	env := make(map[string]string)
	for _, kv := range mcpAddEnv {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("invalid --env value %q, expected KEY=VALUE", kv)
		}
		env[parts[0]] = parts[1]
	}

	serverCfg := mcp.ServerConfig{
		Command: command,
		Args:    commandArgs,
		Env:     env,
	}

	manager := mcp.NewManager()
	if err := manager.LoadConfig(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg := manager.Config(); cfg != nil {
		if _, exists := cfg.Servers[name]; exists {
			return fmt.Errorf("server '%s' already exists in config", name)
		}
	}

	statusCh := make(chan mcp.StatusUpdate, 8)
	manager.SetStatusChannel(statusCh)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// AddServer persists the entry and starts the server so a broken command
	// line is caught now, not on the next chat.
	if err := manager.AddServer(ctx, name, serverCfg); err != nil {
		return err
	}
	defer manager.StopAll()

	path, _ := mcp.DefaultConfigPath()
	fmt.Printf("Added '%s' to %s\n", name, path)
	fmt.Print("Starting server...")

	for {
		select {
		case update := <-statusCh:
			if update.Name != name {
				continue
			}
			switch update.Status {
			case mcp.StatusReady:
				fmt.Println(" OK")
				return nil
			case mcp.StatusFailed:
				fmt.Println(" FAILED")
				return fmt.Errorf("server added but failed to start: %w", update.Error)
			}
		case <-ctx.Done():
			fmt.Println(" TIMED OUT")
			return fmt.Errorf("server added but did not become ready")
		}
	}
}

func mcpRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	manager := mcp.NewManager()
	if err := manager.LoadConfig(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := manager.RemoveServer(name); err != nil {
		return err
	}

	fmt.Printf("Removed '%s' from config\n", name)
	return nil
}

func mcpTest(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serverCfg, ok := cfg.Servers[name]
	if !ok {
		return fmt.Errorf("server '%s' not found in config", name)
	}

	fmt.Printf("Testing MCP server '%s'...\n", name)
	fmt.Printf("  command: %s %s\n", serverCfg.Command, strings.Join(serverCfg.Args, " "))
	fmt.Println()

	client := mcp.NewClient(name, serverCfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Print("Starting server...")
	if err := client.Start(ctx); err != nil {
		fmt.Println(" FAILED")
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Println(" OK")
	defer client.Stop()

	printToolList(client.Tools())

	fmt.Println()
	fmt.Printf("Server '%s' is working correctly.\n", name)
	return nil
}

func mcpTools(cmd *cobra.Command, args []string) error {
	name := args[0]

	if cached := mcp.LoadCachedTools(name); len(cached) > 0 {
		fmt.Printf("Tools for '%s' (cached from last connection):\n", name)
		printToolList(cached)
		return nil
	}

	cfg, err := mcp.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	serverCfg, ok := cfg.Servers[name]
	if !ok {
		return fmt.Errorf("server '%s' not found in config", name)
	}

	client := mcp.NewClient(name, serverCfg)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer client.Stop()

	printToolList(client.Tools())
	return nil
}

func printToolList(tools []mcp.ToolSpec) {
	fmt.Printf("\nAvailable tools (%d):\n", len(tools))
	for _, t := range tools {
		fmt.Printf("  - %s\n", t.Name)
		if t.Description != "" {
			desc := t.Description
			if len(desc) > 60 {
				desc = desc[:57] + "..."
			}
			fmt.Printf("    %s\n", desc)
		}
	}
}

func mcpPath(cmd *cobra.Command, args []string) error {
	path, err := mcp.DefaultConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("%s (not created yet)\n", path)
	} else {
		fmt.Println(path)
	}
	return nil
}
