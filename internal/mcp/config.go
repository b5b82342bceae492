package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ServerConfig describes how to launch one MCP server: a command, optional
// arguments, and environment variables merged over the parent environment.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

func (c *ServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("server requires command")
	}
	return nil
}

// Config is the mcp.json file: a name-to-launch-spec map of servers.
type Config struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// userConfigDir returns the directory holding toolchat's config files,
// honoring XDG_CONFIG_HOME.
func userConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "toolchat"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "toolchat"), nil
}

// DefaultConfigPath returns the default location of mcp.json.
func DefaultConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mcp.json"), nil
}

// LoadConfig loads the server configuration from the default path.
func LoadConfig() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFromPath(path)
}

// LoadConfigFromPath reads mcp.json from path. A missing file means no
// servers are configured, not an error.
func LoadConfigFromPath(path string) (*Config, error) {
	cfg := &Config{Servers: make(map[string]ServerConfig)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	return cfg, nil
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveToPath(path)
}

// SaveToPath writes the configuration to path, creating parent directories
// as needed.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ServerNames returns the configured server names, sorted.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddServer adds or replaces a server entry.
func (c *Config) AddServer(name string, cfg ServerConfig) {
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}
	c.Servers[name] = cfg
}

// RemoveServer deletes a server entry, reporting whether it existed.
func (c *Config) RemoveServer(name string) bool {
	if _, ok := c.Servers[name]; !ok {
		return false
	}
	delete(c.Servers, name)
	return true
}
