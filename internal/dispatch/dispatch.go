package dispatch

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/internal/toolschema"
	"trinity.dev/orchestrator/internal/toolserver"
)

// Result is the Dispatcher's normalized outcome (spec §4.3 "Failure
// semantics"). Tag is one of hallucinated, unknown_tool, compatibility_error,
// validation_error, bad_request, or tool_not_found when Success is false.
type Result struct {
	Success      bool
	Output       string
	Error        string
	Tool         string
	Server       string
	Hallucinated bool
	Suggestion   string
	Tag          string
}

// Caller abstracts the subset of *toolserver.Manager the Dispatcher needs,
// so tests can substitute a fake without spinning up real subprocesses.
type Caller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) toolserver.NormalizedResult
}

// Dispatcher is the single entry point for every tool call issued by any
// agent (spec §4.3). It owns no subprocess state itself — that belongs to
// the Tool Server Manager — only the resolution pipeline and registry
// lookups.
type Dispatcher struct {
	registry *toolschema.Registry
	caller   Caller
	maps     *sharedctx.MapState
	tel      telemetry.Set

	totalCalls    int64
	osNativeCalls int64
}

// New constructs a Dispatcher over registry (for schema lookups) and caller
// (for issuing the resolved call). maps may be nil if the session has no
// maps-tool post-processing hook configured.
func New(registry *toolschema.Registry, caller Caller, maps *sharedctx.MapState, tel telemetry.Set) *Dispatcher {
	return &Dispatcher{registry: registry, caller: caller, maps: maps, tel: tel}
}

// ResolveAndDispatch runs the full nine-step resolution pipeline (spec
// §4.3) and, on success, issues the call through the Tool Server Manager.
// toolName may be empty, in which case step 1 infers it from args.
// explicitServer, when non-empty, skips dotted-namespace splitting and
// pins the server directly (used by the `resolve_and_dispatch("Y", a,
// explicit_server="X")` equivalence law in spec §8).
func (d *Dispatcher) ResolveAndDispatch(ctx context.Context, toolName string, args map[string]any, explicitServer string) Result {
	d.totalCalls++

	// Step 1: sanitize & infer.
	name := strings.ToLower(strings.TrimSpace(toolName))
	if name == "" {
		name = inferFromArgs(args)
	}
	if name == "" {
		return Result{Tag: "unknown_tool", Error: "no tool name given and none could be inferred from arguments"}
	}

	// Step 2: hallucination check.
	if suggestion, ok := hallucinatedNames[name]; ok && explicitServer == "" {
		return Result{Hallucinated: true, Tag: "hallucinated", Error: "Tool '" + name + "' does not exist. " + suggestion, Suggestion: suggestion}
	}

	server := explicitServer
	tool := name

	// Step 3: dotted namespace split ("srv.tool").
	if server == "" {
		if srv, t, ok := strings.Cut(name, "."); ok {
			server, tool = srv, t
		}
	}

	// Step 4: prefix normalization.
	if server == "" {
		if stripped, matched := stripKnownPrefix(tool); matched {
			tool = stripped
		}
	}

	// Search routing safety: "search" in a browser context must reroute to
	// the dedicated web-search server, never straight to browser automation.
	if tool == "search" && (server == "" || server == "browser") {
		server = serverForKind[KindWebSearch]
	}

	// Prefer OS-native: priority words route to the terminal family.
	if server == "" {
		if _, ok := osNativePriority[tool]; ok {
			server = serverForKind[KindTerminal]
		}
	}

	// Step 5: explicit per-server handler (synonym canonicalization, arg
	// repair, type coercion, context injection).
	if canonical, ok := synonymToCanonical[tool]; ok {
		tool = canonical
		if server == "" {
			server = serverForKind[KindTerminal]
		}
	}
	args = repairArgNames(args)
	if server != "" {
		args = normalizeForServer(server, tool, args)
	}

	// Step 6: registry fallback.
	if server == "" {
		if s, ok := d.registry.GetServerForTool(tool); ok {
			server = s
		} else {
			return Result{Tag: "unknown_tool", Tool: tool, Error: "unknown tool: " + tool, Suggestion: d.suggest(tool)}
		}
	}

	// Step 7: compatibility check.
	if schema, ok := d.registry.GetToolSchema(tool); ok && schema.Server != "" && schema.Server != server {
		return Result{Tag: "compatibility_error", Tool: tool, Server: server,
			Error:      "tool " + tool + " is not available on server " + server,
			Suggestion: strings.Join(d.registry.GetToolNamesForServer(server), ", ")}
	}

	// Step 8: argument validation (auto-fill synonyms, then required check).
	args = autoFillSynonyms(args, d.registry, tool)
	if v := d.registry.ValidateToolCall(tool, args); !v.Unknown && !v.OK {
		return Result{Tag: "validation_error", Tool: tool, Server: server,
			Error: "missing required arguments: " + strings.Join(v.Missing, ", ")}
	}

	if server == serverForKind[KindVibe] {
		args = applyVibeDefaults(args)
	}

	if server == serverForKind[KindTerminal] {
		d.osNativeCalls++
	}

	raw := d.caller.CallTool(ctx, server, tool, args)

	// Step 9: post-processing hooks.
	d.postProcess(server, tool, args, raw)

	return toResult(tool, server, raw)
}

// suggest returns a comma-separated list of known tool names sharing a
// prefix with name, a minimal fuzzy-suggestion substitute for step 6.
func (d *Dispatcher) suggest(name string) string {
	var candidates []string
	for _, server := range []string{"terminal", "filesystem", "browser"} {
		for _, t := range d.registry.GetToolNamesForServer(server) {
			if strings.HasPrefix(t, name[:min(3, len(name))]) {
				candidates = append(candidates, t)
			}
		}
	}
	sort.Strings(candidates)
	return strings.Join(candidates, ", ")
}

func toResult(tool, server string, raw toolserver.NormalizedResult) Result {
	return Result{
		Success: raw.Success,
		Output:  raw.Output,
		Error:   raw.Error,
		Tool:    tool,
		Server:  server,
		Tag:     emptyProofOrTag(tool, raw),
	}
}

// dataIntensiveTools are tools whose success with empty output is suspect
// (spec §4.3 step 9's sibling "empty proof" check, shared with the
// Executor's own detector in internal/agents/executor).
var dataIntensiveTools = map[string]struct{}{
	"read_file": {}, "search": {}, "geocode": {}, "list_directory": {},
	"fetch": {}, "query": {},
}

func emptyProofOrTag(tool string, raw toolserver.NormalizedResult) string {
	if raw.Tag != "" {
		return raw.Tag
	}
	if raw.Success {
		if _, dataIntensive := dataIntensiveTools[tool]; dataIntensive && strings.TrimSpace(raw.Output) == "" {
			return "empty_proof"
		}
		return ""
	}
	return "tool_not_found"
}

// postProcess runs post-dispatch side effects (spec §4.3 step 9): when a
// maps tool returns directions/distance, update the in-memory map state.
func (d *Dispatcher) postProcess(server, tool string, args map[string]any, raw toolserver.NormalizedResult) {
	if d.maps == nil || server != serverForKind[KindMaps] || !raw.Success {
		return
	}
	if tool == "directions" || tool == "distance" {
		d.maps.RecordRoute(routeFromCall(args, raw.Output))
	}
}

// distanceKmPattern and durationMinPattern pull the numeric distance and
// duration a maps server reports in its free-text response (spec §6 maps
// server, modeled on the teacher's `distance_info` overlay fields), e.g.
// "Distance: 12.3 km, Duration: 18 min".
var (
	distanceKmPattern  = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*km`)
	durationMinPattern = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*min`)
)

// routeFromCall builds a Route from the directions/distance call's own
// origin/destination arguments and whatever numeric distance/duration the
// server's response text carries.
func routeFromCall(args map[string]any, output string) sharedctx.Route {
	r := sharedctx.Route{
		Origin:      stringArg(args, "origin", "from"),
		Destination: stringArg(args, "destination", "to"),
	}
	if m := distanceKmPattern.FindStringSubmatch(output); m != nil {
		r.DistanceKm, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := durationMinPattern.FindStringSubmatch(output); m != nil {
		r.DurationMin, _ = strconv.ParseFloat(m[1], 64)
	}
	return r
}

// stringArg returns the first of keys present in args as a string.
func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Metrics returns the total call count and the count routed to the
// OS-automation family, used to validate the ≥90% coverage target (spec
// §4.3 "Metrics").
func (d *Dispatcher) Metrics() (total, osNative int64) {
	return d.totalCalls, d.osNativeCalls
}
