package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// The tool cache lets "mcp tools" describe a server without launching it.
// Everything here is best-effort: a missing or corrupt cache file reads as
// empty, and write failures are dropped rather than failing a connection.

type toolCacheFile struct {
	Servers map[string]toolCacheEntry `json:"servers"`
}

type toolCacheEntry struct {
	CachedAt time.Time  `json:"cached_at"`
	Tools    []ToolSpec `json:"tools"`
}

func toolCachePath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mcp-tools-cache.json"), nil
}

func readToolCache(path string) toolCacheFile {
	cache := toolCacheFile{Servers: make(map[string]toolCacheEntry)}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cache)
	}
	if cache.Servers == nil {
		cache.Servers = make(map[string]toolCacheEntry)
	}
	return cache
}

// CacheTools records a server's tool list after a successful catalog fetch.
func CacheTools(serverName string, tools []ToolSpec) {
	path, err := toolCachePath()
	if err != nil {
		return
	}

	cache := readToolCache(path)
	cache.Servers[serverName] = toolCacheEntry{CachedAt: time.Now(), Tools: tools}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, data, 0644)
}

// LoadCachedTools returns the last cached tool list for a server, or nil.
func LoadCachedTools(serverName string) []ToolSpec {
	path, err := toolCachePath()
	if err != nil {
		return nil
	}
	return readToolCache(path).Servers[serverName].Tools
}
