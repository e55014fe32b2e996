package toolserver

import (
	"os"
	"strings"
	"time"
)

// Transport is how a configured server is reached.
type Transport string

const (
	TransportStdio    Transport = "stdio"
	TransportInternal Transport = "internal"
)

// ServerConfig is one entry of the MCP configuration file's mcpServers map
// (spec §6).
type ServerConfig struct {
	Name      string
	Transport Transport
	Command   string
	Args      []string
	Env       map[string]string
	Tier      int
	Agents    []string
	Disabled  bool
	Timeout   time.Duration // default 10s; 60m for the server named "vibe" unless its entry sets one
}

// ExpandPlaceholders substitutes ${HOME}, ${PROJECT_ROOT}, and any declared
// secret environment variables into cfg's Command, Args, and Env values
// (spec §4.2 protocol step 5, §6 "All are substituted into server
// command/args/env").
func (cfg ServerConfig) ExpandPlaceholders(projectRoot string) ServerConfig {
	expand := func(s string) string {
		s = strings.ReplaceAll(s, "${HOME}", os.Getenv("HOME"))
		s = strings.ReplaceAll(s, "${PROJECT_ROOT}", projectRoot)
		return os.Expand(s, os.Getenv)
	}

	out := cfg
	out.Command = expand(cfg.Command)
	out.Args = make([]string, len(cfg.Args))
	for i, a := range cfg.Args {
		out.Args[i] = expand(a)
	}
	out.Env = make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		out.Env[k] = expand(v)
	}
	return out
}

// DefaultTimeout is the per-tool call timeout when a ServerConfig does not
// override it (spec §4.2, §5).
const DefaultTimeout = 10 * time.Second

// VibeTimeout is the long timeout applied to code-assistant ("Vibe") tools,
// whose analysis/auto-fix calls can run far longer than a typical tool call.
const VibeTimeout = 60 * time.Minute
