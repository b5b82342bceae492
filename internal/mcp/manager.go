package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rbholmes/toolchat/internal/debuglog"
	"github.com/rbholmes/toolchat/internal/llm"
)

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusFailed   ServerStatus = "failed"
)

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
	Client *Client
}

// StatusUpdate is sent when a server's status changes.
type StatusUpdate struct {
	Name   string
	Status ServerStatus
	Error  error
}

// Manager handles MCP server lifecycle and keeps the tool registry in sync:
// a server's tools are registered under its name when it becomes ready and
// removed the moment it stops or fails.
type Manager struct {
	config   *Config
	clients  map[string]*Client
	statuses map[string]*ServerState
	mu       sync.RWMutex

	registry *llm.ToolRegistry
	logger   *debuglog.Logger

	// Channel for status updates (optional, for UI notifications)
	statusChan chan StatusUpdate
}

// NewManager creates a new MCP manager.
func NewManager() *Manager {
	return &Manager{
		clients:  make(map[string]*Client),
		statuses: make(map[string]*ServerState),
		logger:   debuglog.Discard(),
	}
}

// SetLogger sets the debug logger for the manager and its clients.
func (m *Manager) SetLogger(logger *debuglog.Logger) {
	if logger == nil {
		logger = debuglog.Discard()
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// SetRegistry installs the tool registry that ready servers publish into.
func (m *Manager) SetRegistry(registry *llm.ToolRegistry) {
	m.mu.Lock()
	m.registry = registry
	m.mu.Unlock()
}

// LoadConfig loads the MCP configuration.
func (m *Manager) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// LoadAndConnect loads the configuration and starts every configured server
// in the background. Servers fail independently; one bad config entry never
// blocks the rest. On reload, connections to servers no longer in the file
// are torn down first so the running set mirrors the configuration.
func (m *Manager) LoadAndConnect(ctx context.Context) error {
	if err := m.LoadConfig(); err != nil {
		return err
	}

	m.mu.RLock()
	var stale []string
	for name := range m.clients {
		if _, ok := m.config.Servers[name]; !ok {
			stale = append(stale, name)
		}
	}
	m.mu.RUnlock()
	for _, name := range stale {
		if err := m.Disable(name); err != nil {
			return err
		}
	}

	for _, name := range m.AvailableServers() {
		if err := m.Enable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetStatusChannel sets a channel to receive status updates.
func (m *Manager) SetStatusChannel(ch chan StatusUpdate) {
	m.mu.Lock()
	m.statusChan = ch
	m.mu.Unlock()
}

// sendStatus sends a status update if a channel is configured.
func (m *Manager) sendStatus(name string, status ServerStatus, err error) {
	m.mu.RLock()
	ch := m.statusChan
	m.mu.RUnlock()
	if ch != nil {
		select {
		case ch <- StatusUpdate{Name: name, Status: status, Error: err}:
		default:
			// Don't block if channel is full
		}
	}
}

// AvailableServers returns the names of all configured servers.
func (m *Manager) AvailableServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil
	}
	return m.config.ServerNames()
}

// EnabledServers returns the names of currently enabled (running or starting) servers.
func (m *Manager) EnabledServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, state := range m.statuses {
		if state.Status == StatusStarting || state.Status == StatusReady {
			names = append(names, name)
		}
	}
	return names
}

// ServerStatus returns the current status of a server.
func (m *Manager) ServerStatus(name string) (ServerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.statuses[name]
	if !ok {
		return StatusStopped, nil
	}
	return state.Status, state.Error
}

// Enable starts an MCP server in the background (non-blocking).
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	if m.config == nil {
		m.mu.Unlock()
		return fmt.Errorf("no MCP configuration loaded")
	}
	serverCfg, ok := m.config.Servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown MCP server: %s", name)
	}

	// Check if already running or starting
	if state, ok := m.statuses[name]; ok {
		if state.Status == StatusStarting || state.Status == StatusReady {
			m.mu.Unlock()
			return nil
		}
	}

	client := NewClient(name, serverCfg)
	client.SetLogger(m.logger)
	m.clients[name] = client
	m.statuses[name] = &ServerState{
		Name:   name,
		Status: StatusStarting,
		Client: client,
	}
	m.mu.Unlock()

	m.sendStatus(name, StatusStarting, nil)

	// Start in background
	go func() {
		err := client.Start(ctx)

		m.mu.Lock()
		state := m.statuses[name]
		if state == nil || state.Client != client {
			// Disabled while starting; stop the orphan.
			m.mu.Unlock()
			client.Stop()
			return
		}
		if err != nil {
			state.Status = StatusFailed
			state.Error = err
		} else {
			state.Status = StatusReady
			state.Error = nil
		}
		m.mu.Unlock()

		if err == nil {
			m.publishTools(name, client)
		}
		m.sendStatus(name, state.Status, err)
	}()

	return nil
}

// Disable stops an MCP server and withdraws its tools.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	registry := m.registry
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.clients, name)
	if state, ok := m.statuses[name]; ok {
		state.Status = StatusStopped
		state.Error = nil
		state.Client = nil
	}
	m.mu.Unlock()

	if registry != nil {
		registry.UnregisterSource(name)
	}
	m.sendStatus(name, StatusStopped, nil)

	return client.Stop()
}

// Restart stops and restarts an MCP server.
func (m *Manager) Restart(ctx context.Context, name string) error {
	if err := m.Disable(name); err != nil {
		return err
	}
	return m.Enable(ctx, name)
}

// AddServer adds a server to the configuration, persists it, and connects.
func (m *Manager) AddServer(ctx context.Context, name string, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %s: %w", name, err)
	}

	m.mu.Lock()
	if m.config == nil {
		m.config = &Config{Servers: make(map[string]ServerConfig)}
	}
	m.config.AddServer(name, cfg)
	config := m.config
	m.mu.Unlock()

	if err := config.Save(); err != nil {
		return err
	}
	return m.Enable(ctx, name)
}

// RemoveServer disconnects a server and removes it from the configuration.
func (m *Manager) RemoveServer(name string) error {
	if err := m.Disable(name); err != nil {
		return err
	}

	m.mu.Lock()
	config := m.config
	removed := config != nil && config.RemoveServer(name)
	m.mu.Unlock()

	if !removed {
		return fmt.Errorf("unknown MCP server: %s", name)
	}
	return config.Save()
}

// StopAll stops all running MCP servers.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	registry := m.registry
	m.clients = make(map[string]*Client)
	m.statuses = make(map[string]*ServerState)
	m.mu.Unlock()

	for _, c := range clients {
		if registry != nil {
			registry.UnregisterSource(c.Name())
		}
		c.Stop()
	}
}

// publishTools registers a ready server's tools under its name.
func (m *Manager) publishTools(name string, client *Client) {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()
	if registry == nil {
		return
	}
	registry.UnregisterSource(name)
	for _, spec := range client.Tools() {
		registry.Register(NewTool(m, name, spec))
	}
}

// AllTools returns all tools from all running MCP servers, as llm specs
// with the owning server recorded as the source.
func (m *Manager) AllTools() []llm.ToolSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var allTools []llm.ToolSpec
	for name, state := range m.statuses {
		if state.Status != StatusReady || state.Client == nil {
			continue
		}
		for _, tool := range state.Client.Tools() {
			allTools = append(allTools, llm.ToolSpec{
				Name:        tool.Name,
				Description: fmt.Sprintf("[%s] %s", name, tool.Description),
				Schema:      tool.Schema,
				Source:      name,
				Destructive: true,
			})
		}
	}
	return allTools
}

// CallTool routes a tool call to the named MCP server.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, args json.RawMessage) (string, error) {
	m.mu.RLock()
	state, ok := m.statuses[serverName]
	m.mu.RUnlock()

	if !ok || state.Status != StatusReady || state.Client == nil {
		return "", fmt.Errorf("MCP server %s: %w", serverName, ErrProcessNotRunning)
	}

	return state.Client.CallTool(ctx, toolName, args)
}

// GetAllStates returns the current state of all servers (for UI display).
func (m *Manager) GetAllStates() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]ServerState, 0, len(m.statuses))
	for _, state := range m.statuses {
		states = append(states, ServerState{
			Name:   state.Name,
			Status: state.Status,
			Error:  state.Error,
		})
	}
	return states
}
