package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rbholmes/toolchat/internal/config"
	"github.com/rbholmes/toolchat/internal/debuglog"
	"github.com/rbholmes/toolchat/internal/llm"
	"github.com/rbholmes/toolchat/internal/mcp"
	"github.com/rbholmes/toolchat/internal/tools"
)

// app bundles everything a chat-like command needs. Built once per
// invocation by bootstrap; cleanup stops MCP servers and closes the log.
type app struct {
	cfg      *config.Config
	provider llm.Provider
	engine   *llm.Engine
	manager  *mcp.Manager
	sandbox  *tools.Sandbox
	logger   *debuglog.Logger
}

func (a *app) modelName() string {
	switch a.cfg.Provider {
	case "anthropic":
		return a.cfg.Anthropic.Model
	case "openai":
		return a.cfg.OpenAI.Model
	case "gemini":
		return a.cfg.Gemini.Model
	}
	return "unknown"
}

// bootstrap loads config, builds the provider, registers the built-in tools
// in a sandbox, and (when connectMCP is set) connects every configured MCP
// server in the background.
func bootstrap(ctx context.Context, connectMCP bool) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	providerOverride := ""
	modelOverride := flagModel
	if flagProvider != "" {
		p, m, err := llm.ParseProviderModel(flagProvider)
		if err != nil {
			return nil, nil, err
		}
		providerOverride = p
		if modelOverride == "" {
			modelOverride = m
		}
	}
	cfg.ApplyOverrides(providerOverride, modelOverride)
	if flagMaxTurns > 0 {
		cfg.MaxTurns = flagMaxTurns
	}

	logger := debuglog.Discard()
	if flagDebug {
		dir, err := config.GetConfigDir()
		if err == nil {
			if err := os.MkdirAll(dir, 0755); err == nil {
				if l, err := debuglog.Open(filepath.Join(dir, "debug.log")); err == nil {
					logger = l
				}
			}
		}
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	workdir := flagWorkdir
	if workdir == "" {
		workdir = cfg.Workspace
	}
	sandbox, err := tools.NewSandbox(workdir)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	registry := llm.NewToolRegistry()
	for _, t := range tools.All(sandbox, tools.DefaultOutputLimits()) {
		registry.Register(t)
	}

	engine := llm.NewEngine(provider, registry)
	engine.SetLogger(logger)
	engine.SetAutoApprove(flagYolo)
	engine.SetConfirmFunc(terminalConfirm)

	manager := mcp.NewManager()
	manager.SetLogger(logger)
	manager.SetRegistry(registry)
	if connectMCP {
		if err := manager.LoadAndConnect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: MCP servers unavailable: %v\n", err)
		}
	}

	a := &app{
		cfg:      cfg,
		provider: provider,
		engine:   engine,
		manager:  manager,
		sandbox:  sandbox,
		logger:   logger,
	}
	cleanup := func() {
		manager.StopAll()
		logger.Close()
	}
	return a, cleanup, nil
}

// request builds a Request with the registered tool catalog and the user's
// configured limits.
func (a *app) request(messages []llm.Message) llm.Request {
	return llm.Request{
		Model:             a.modelName(),
		Messages:          messages,
		Tools:             a.engine.Tools().AllSpecs(),
		ParallelToolCalls: true,
		MaxTurns:          a.cfg.MaxTurns,
		Debug:             flagDebug,
	}
}
