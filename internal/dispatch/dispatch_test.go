package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/internal/toolschema"
	"trinity.dev/orchestrator/internal/toolserver"
)

type fakeCaller struct {
	calls []call
	stub  func(server, tool string, args map[string]any) toolserver.NormalizedResult
}

type call struct {
	server, tool string
	args         map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, server, tool string, args map[string]any) toolserver.NormalizedResult {
	f.calls = append(f.calls, call{server, tool, args})
	if f.stub != nil {
		return f.stub(server, tool, args)
	}
	return toolserver.NormalizedResult{Success: true, Output: "ok"}
}

func testDispatcher(caller *fakeCaller) *Dispatcher {
	schemas := map[string]toolschema.ToolSchema{
		"execute_command": {Server: "terminal", Required: []string{"command"}},
		"read_file":        {Server: "filesystem", Required: []string{"path"}},
		"web_search":       {Server: "duckduckgo-search", Required: []string{"query"}},
	}
	catalog := map[string]toolschema.ServerCatalogEntry{
		"terminal":          {Name: "terminal", Tier: 1},
		"filesystem":        {Name: "filesystem", Tier: 1},
		"duckduckgo-search": {Name: "duckduckgo-search", Tier: 2},
	}
	registry := toolschema.New(schemas, catalog)
	return New(registry, caller, sharedctx.NewMapState(), telemetry.Noop())
}

func TestResolveAndDispatchHallucinatedTool(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "evaluate", map[string]any{}, "")
	assert.True(t, res.Hallucinated)
	assert.Equal(t, "hallucinated", res.Tag)
	assert.Empty(t, caller.calls, "hallucinated tool must never reach the tool server manager")
}

func TestResolveAndDispatchInfersToolFromArgs(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "", map[string]any{"command": "ls"}, "")
	require.True(t, res.Success)
	require.Len(t, caller.calls, 1)
	assert.Equal(t, "terminal", caller.calls[0].server)
}

func TestResolveAndDispatchSynonymRoutesToTerminal(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "bash", map[string]any{"command": "echo hi"}, "")
	require.True(t, res.Success)
	assert.Equal(t, "execute_command", caller.calls[0].tool)
	assert.Equal(t, "terminal", caller.calls[0].server)
}

func TestResolveAndDispatchDottedNamespaceEquivalence(t *testing.T) {
	// spec §8 round-trip law: resolve_and_dispatch("X.Y", a) ≡
	// resolve_and_dispatch("Y", a, explicit_server="X").
	callerA := &fakeCaller{}
	dA := testDispatcher(callerA)
	resA := dA.ResolveAndDispatch(context.Background(), "filesystem.read_file", map[string]any{"path": "/tmp/x"}, "")

	callerB := &fakeCaller{}
	dB := testDispatcher(callerB)
	resB := dB.ResolveAndDispatch(context.Background(), "read_file", map[string]any{"path": "/tmp/x"}, "filesystem")

	assert.Equal(t, resA.Server, resB.Server)
	assert.Equal(t, resA.Tool, resB.Tool)
	assert.Equal(t, callerA.calls[0].server, callerB.calls[0].server)
	assert.Equal(t, callerA.calls[0].tool, callerB.calls[0].tool)
}

func TestResolveAndDispatchSearchReroutesToWebSearch(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "search", map[string]any{"query": "golang"}, "browser")
	require.True(t, res.Success)
	assert.Equal(t, "duckduckgo-search", caller.calls[0].server)
}

func TestResolveAndDispatchCompatibilityError(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "read_file", map[string]any{"path": "/x"}, "terminal")
	assert.Equal(t, "compatibility_error", res.Tag)
	assert.Empty(t, caller.calls)
}

func TestResolveAndDispatchValidationError(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "execute_command", map[string]any{}, "terminal")
	assert.Equal(t, "validation_error", res.Tag)
	assert.Empty(t, caller.calls)
}

func TestResolveAndDispatchMergesCwdIntoCommand(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "execute_command", map[string]any{
		"command": "ls -la",
		"cwd":     "/srv/app",
	}, "terminal")
	require.True(t, res.Success)
	assert.Equal(t, "cd /srv/app && ls -la", caller.calls[0].args["command"])
	_, hasCwd := caller.calls[0].args["cwd"]
	assert.False(t, hasCwd)
}

func TestResolveAndDispatchUnknownToolSuggestsAlternatives(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "frobnicate", map[string]any{}, "")
	assert.Equal(t, "unknown_tool", res.Tag)
}

func TestResolveAndDispatchEmptyProofDetector(t *testing.T) {
	caller := &fakeCaller{stub: func(server, tool string, args map[string]any) toolserver.NormalizedResult {
		return toolserver.NormalizedResult{Success: true, Output: ""}
	}}
	d := testDispatcher(caller)

	res := d.ResolveAndDispatch(context.Background(), "read_file", map[string]any{"path": "/x"}, "filesystem")
	assert.Equal(t, "empty_proof", res.Tag)
}

func TestMetricsTracksOSNativeCoverage(t *testing.T) {
	caller := &fakeCaller{}
	d := testDispatcher(caller)

	d.ResolveAndDispatch(context.Background(), "bash", map[string]any{"command": "pwd"}, "")
	d.ResolveAndDispatch(context.Background(), "read_file", map[string]any{"path": "/x"}, "filesystem")

	total, osNative := d.Metrics()
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), osNative)
}
