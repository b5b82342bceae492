package mcp

import (
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")

	cfg := &Config{}
	cfg.AddServer("fs", ServerConfig{
		Command: "npx",
		Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
		Env:     map[string]string{"DEBUG": "1"},
	})
	if err := cfg.SaveToPath(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadConfigFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	server, ok := loaded.Servers["fs"]
	if !ok {
		t.Fatal("server fs missing after round trip")
	}
	if server.Command != "npx" || len(server.Args) != 3 || server.Env["DEBUG"] != "1" {
		t.Errorf("server = %+v", server)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("expected empty config, got %+v", cfg.Servers)
	}
}

func TestRemoveServer(t *testing.T) {
	cfg := &Config{}
	cfg.AddServer("a", ServerConfig{Command: "a"})

	if !cfg.RemoveServer("a") {
		t.Error("RemoveServer(a) = false, want true")
	}
	if cfg.RemoveServer("a") {
		t.Error("second RemoveServer(a) = true, want false")
	}
}

func TestServerConfigValidate(t *testing.T) {
	bad := ServerConfig{}
	if err := bad.Validate(); err == nil {
		t.Error("empty command should fail validation")
	}
	good := ServerConfig{Command: "echo"}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestServerNamesSorted(t *testing.T) {
	cfg := &Config{}
	cfg.AddServer("zeta", ServerConfig{Command: "z"})
	cfg.AddServer("alpha", ServerConfig{Command: "a"})

	names := cfg.ServerNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("ServerNames = %v", names)
	}
}
