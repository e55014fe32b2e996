package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"trinity.dev/orchestrator/internal/toolserver"
)

// serverEntry mirrors toolserver.ServerConfig but carries Timeout as a
// human-readable duration string ("10s", "60m") instead of a raw
// time.Duration, since encoding/json has no default decoding for
// time.Duration and the MCP config file (spec §6) is meant to be hand-edited.
type serverEntry struct {
	Transport toolserver.Transport `json:"transport"`
	Command   string               `json:"command"`
	Args      []string             `json:"args"`
	Env       map[string]string    `json:"env"`
	Tier      int                  `json:"tier"`
	Agents    []string             `json:"agents"`
	Disabled  bool                 `json:"disabled"`
	Timeout   string               `json:"timeout"`
}

// LoadToolServers reads the MCP server catalog file (spec §6 "mcpServers
// map") into a map of toolserver.ServerConfig, ready for
// toolserver.NewManager after each entry's ExpandPlaceholders is applied.
func LoadToolServers(path string) (map[string]toolserver.ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read MCP servers file: %w", err)
	}

	var doc struct {
		McpServers map[string]serverEntry `json:"mcpServers"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse MCP servers file: %w", err)
	}

	out := make(map[string]toolserver.ServerConfig, len(doc.McpServers))
	for name, e := range doc.McpServers {
		timeout := toolserver.DefaultTimeout
		if name == "vibe" {
			timeout = toolserver.VibeTimeout
		}
		if e.Timeout != "" {
			d, err := time.ParseDuration(e.Timeout)
			if err != nil {
				return nil, fmt.Errorf("config: server %q: invalid timeout %q: %w", name, e.Timeout, err)
			}
			timeout = d
		}
		out[name] = toolserver.ServerConfig{
			Name:      name,
			Transport: e.Transport,
			Command:   e.Command,
			Args:      e.Args,
			Env:       e.Env,
			Tier:      e.Tier,
			Agents:    e.Agents,
			Disabled:  e.Disabled,
			Timeout:   timeout,
		}
	}
	return out, nil
}
