package toolserver

import (
	"context"
	"fmt"
	"sync"

	"trinity.dev/orchestrator/internal/telemetry"
)

// Manager owns every spawned tool-server subprocess and its session. It is
// the only component that may write to a session's stdin (spec §3
// ownership). Safe for concurrent use; GetSession spawns idempotently on
// first use per server.
type Manager struct {
	mu       sync.Mutex
	configs  map[string]ServerConfig
	sessions map[string]*Session
	tel      telemetry.Set
	internal InternalHandler
}

// InternalHandler serves servers configured with TransportInternal:
// in-process adapters that never go through stdio, most notably the
// reserved internal state-query surface (spec §4.2 `query_db`, "never
// exposed to LLM-driven callers").
type InternalHandler interface {
	CallInternal(ctx context.Context, server, tool string, args map[string]any) (NormalizedResult, error)
	QueryDB(ctx context.Context, sql string, params []any) ([]map[string]any, error)
}

// NewManager constructs a Manager over the given server configs. Sessions
// are not spawned until first use (GetSession/CallTool).
func NewManager(configs map[string]ServerConfig, tel telemetry.Set, internal InternalHandler) *Manager {
	return &Manager{
		configs:  configs,
		sessions: make(map[string]*Session),
		tel:      tel,
		internal: internal,
	}
}

// GetSession returns the running Session for server, spawning it on first
// use. Idempotent: concurrent callers for the same server share one spawn.
func (m *Manager) GetSession(ctx context.Context, server string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[server]; ok {
		return s, nil
	}
	cfg, ok := m.configs[server]
	if !ok {
		return nil, fmt.Errorf("unknown tool server %q", server)
	}
	if cfg.Disabled {
		return nil, fmt.Errorf("tool server %q is disabled", server)
	}
	if cfg.Transport != TransportStdio {
		return nil, fmt.Errorf("tool server %q is not a stdio transport", server)
	}

	s, err := Start(ctx, cfg, m.tel.Log)
	if err != nil {
		return nil, err
	}
	m.sessions[server] = s
	return s, nil
}

// ListTools issues tools/list against server.
func (m *Manager) ListTools(ctx context.Context, server string) ([]ToolDescriptor, error) {
	s, err := m.GetSession(ctx, server)
	if err != nil {
		return nil, err
	}
	return s.ListTools(ctx)
}

// NormalizedResult is call_tool's return shape (spec §4.2 "returns a
// normalized {content, isError}"): Output concatenates every text content
// part for callers that just want a string; Tag classifies failures for the
// Dispatcher.
type NormalizedResult struct {
	Success bool
	Content []ContentPart
	Output  string
	IsError bool
	Tag     string // tool_not_found | bad_request | validation_error | compatibility_error
	Error   string
}

// CallTool issues tools/call against server for tool with args, spawning the
// session on first use. Spawn failures and RPC failures are both reported
// as a {success:false} NormalizedResult rather than a Go error, so dispatch
// can decide retry/reflexion without type-asserting on error causes (spec
// §4.2 "subsequent call_tool returns a {success:false, ...} result").
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) NormalizedResult {
	cfg, ok := m.configs[server]
	if ok && cfg.Transport == TransportInternal {
		if m.internal == nil {
			return NormalizedResult{Tag: "tool_not_found", Error: fmt.Sprintf("no internal handler configured for %q", server)}
		}
		result, err := m.internal.CallInternal(ctx, server, tool, args)
		if err != nil {
			return NormalizedResult{Tag: "bad_request", Error: err.Error()}
		}
		return result
	}

	s, err := m.GetSession(ctx, server)
	if err != nil {
		return NormalizedResult{Tag: "tool_not_found", Error: err.Error()}
	}

	raw, err := s.CallTool(ctx, tool, args)
	if err != nil {
		if rerr, ok := err.(*rpcErr); ok {
			return NormalizedResult{Tag: classifyRPCError(rerr.Code()), Error: rerr.Error()}
		}
		return NormalizedResult{Tag: "tool_not_found", Error: err.Error()}
	}
	return normalize(raw)
}

func classifyRPCError(code int) string {
	switch code {
	case RPCInvalidParams:
		return "validation_error"
	case RPCMethodNotFound:
		return "tool_not_found"
	default:
		return "bad_request"
	}
}

// normalize derives Success from IsError when the raw result omits it, and
// concatenates text content parts into Output (spec §4.2 "result
// normalization").
func normalize(raw toolsCallResult) NormalizedResult {
	var output string
	for _, part := range raw.Content {
		if part.Type == "text" {
			output += part.Text
		}
	}
	return NormalizedResult{
		Success: !raw.IsError,
		Content: raw.Content,
		Output:  output,
		IsError: raw.IsError,
	}
}

// RestartServer kills and respawns server's session, invalidating any
// outstanding request IDs (spec §4.2 restart_server).
func (m *Manager) RestartServer(ctx context.Context, server string) bool {
	m.mu.Lock()
	s, ok := m.sessions[server]
	if ok {
		delete(m.sessions, server)
	}
	m.mu.Unlock()

	if ok {
		_ = s.Shutdown(ctx)
	}

	_, err := m.GetSession(ctx, server)
	return err == nil
}

// EnsureServersConnected spawns each listed server (if not already running)
// and reports whether each succeeded.
func (m *Manager) EnsureServersConnected(ctx context.Context, servers []string) map[string]bool {
	out := make(map[string]bool, len(servers))
	for _, server := range servers {
		_, err := m.GetSession(ctx, server)
		out[server] = err == nil
	}
	return out
}

// QueryDB is reserved for internal state queries (checkpoints, run
// metadata) and must never be exposed to LLM-driven tool callers (spec
// §4.2). The Dispatcher's resolution pipeline has no path that can reach
// this method; no package in this repository calls it outside tests.
func (m *Manager) QueryDB(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	if m.internal == nil {
		return nil, fmt.Errorf("no internal handler configured for query_db")
	}
	return m.internal.QueryDB(ctx, sql, params)
}

// Shutdown gracefully shuts down every running session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Shutdown(ctx)
	}
}
