package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"trinity.dev/orchestrator/internal/telemetry"
)

// Session owns one spawned tool-server subprocess: its stdin/stdout pipes,
// writes serialized by writeMu, a single reader goroutine, and the table of
// in-flight requests awaiting a response. The Tool Server Manager
// exclusively owns a Session; no other component may write to its stdin
// (spec §3 ownership, §9 "process graph ownership").
type Session struct {
	cfg ServerConfig
	log telemetry.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	writeMu sync.Mutex // serializes writes from concurrent callers onto one stdin
	nextID  atomic.Int64

	pending   map[int64]chan response
	pendingMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Start spawns cfg's subprocess and performs the initialize handshake (spec
// §4.2 protocol steps 1-2). The returned Session's reader goroutine is
// already running.
func Start(ctx context.Context, cfg ServerConfig, log telemetry.Logger) (*Session, error) {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	cmd := shellCommandContext(ctx, cfg.Command, cfg.Args)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	setSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", cfg.Name, err)
	}

	s := &Session{
		cfg:     cfg,
		log:     log,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewScanner(stdout),
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
	}
	s.stdout.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	go s.readLoop()

	initCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if _, err := s.call(initCtx, "initialize", initializeParams{
		ProtocolVersion: "2024-11-05",
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "trinity-orchestrator", Version: "1"},
	}); err != nil {
		_ = s.Shutdown(context.Background())
		return nil, fmt.Errorf("initialize %s: %w", cfg.Name, err)
	}
	if err := s.notify("notifications/initialized", nil); err != nil {
		_ = s.Shutdown(context.Background())
		return nil, fmt.Errorf("notifications/initialized %s: %w", cfg.Name, err)
	}
	return s, nil
}

// readLoop is the session's single reader task: it owns stdout exclusively
// and dispatches each correlated response line to the pending caller's
// channel. Lines without an ID are notifications and are dropped (spec §4.2
// protocol step 4).
func (s *Session) readLoop() {
	defer close(s.done)
	for s.stdout.Scan() {
		line := s.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			s.log.Warn(context.Background(), "tool server sent unparseable line", "server", s.cfg.Name, "error", err)
			continue
		}
		if resp.ID == nil {
			continue // notification; nothing is waiting on it
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[*resp.ID]
		if ok {
			delete(s.pending, *resp.ID)
		}
		s.pendingMu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

// call issues a correlated JSON-RPC request and waits for its response or
// ctx's cancellation, whichever comes first.
func (s *Session) call(ctx context.Context, method string, params any) (response, error) {
	id := s.nextID.Add(1)
	ch := make(chan response, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	if err := s.write(request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return response{}, ctx.Err()
	case <-s.done:
		return response{}, fmt.Errorf("tool server %q exited before responding", s.cfg.Name)
	}
}

// notify sends a JSON-RPC notification (no ID, no response expected).
func (s *Session) notify(method string, params any) error {
	return s.write(request{JSONRPC: "2.0", Method: method, Params: params})
}

// write is the session's single writer: every caller serializes through
// writeMu onto the one stdin pipe.
func (s *Session) write(req request) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write to %s: %w", s.cfg.Name, err)
	}
	return nil
}

// ListTools issues tools/list.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &rpcErr{resp.Error}
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool issues tools/call for tool with args, applying the session's
// configured timeout (or the default) to the context.
func (s *Session) CallTool(ctx context.Context, tool string, args map[string]any) (toolsCallResult, error) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.call(callCtx, "tools/call", toolsCallParams{Name: tool, Arguments: args})
	if err != nil {
		return toolsCallResult{}, err
	}
	if resp.Error != nil {
		return toolsCallResult{}, &rpcErr{resp.Error}
	}
	var result toolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return toolsCallResult{}, fmt.Errorf("decode tools/call result: %w", err)
	}
	return result, nil
}

// Shutdown closes stdin, waits up to 3s for graceful exit, then kills the
// process (spec §4.2 "close stdin, wait ≤3 s, then kill").
func (s *Session) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()

		waited := make(chan error, 1)
		go func() { waited <- s.cmd.Wait() }()

		select {
		case <-waited:
		case <-time.After(3 * time.Second):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-waited
		case <-ctx.Done():
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
	return shutdownErr
}

type rpcErr struct{ e *rpcError }

func (r *rpcErr) Error() string { return fmt.Sprintf("rpc error %d: %s", r.e.Code, r.e.Message) }
func (r *rpcErr) Code() int     { return r.e.Code }
