// Package toolschema implements the Tool Schema Registry: a pure,
// read-mostly store mapping tool name to ToolSchema and server to its
// catalog entry, loaded once from declarative data and immutable
// thereafter. Every other package treats a *Registry as read-only.
package toolschema

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// ToolSchema describes one tool's calling contract (spec §3 ToolSchema).
// Alias resolution is one-hop: an alias's AliasFor must name a concrete
// (non-alias) tool.
type ToolSchema struct {
	Server   string            `json:"server"`
	Required []string          `json:"required"`
	Optional []string          `json:"optional"`
	Types    map[string]string `json:"types"`
	AliasFor string            `json:"alias_for,omitempty"`
}

// ServerCatalogEntry describes one tool server for the purposes of prompt
// rendering and tier-based routing (spec §3 ServerCatalogEntry).
type ServerCatalogEntry struct {
	Name         string   `json:"name"`
	Tier         int      `json:"tier"`
	Description  string   `json:"description"`
	KeyTools     []string `json:"key_tools"`
	WhenToUse    string   `json:"when_to_use"`
	Capabilities []string `json:"capabilities"`
}

// Registry is the Tool Schema Registry. Build it once via New and treat it
// as immutable; all lookups are safe for concurrent use. Hit/miss counters
// are the only mutable state, and are tracked with atomics so reads never
// take a lock.
type Registry struct {
	schemas   map[string]ToolSchema
	catalog   map[string]ServerCatalogEntry
	byServer  map[string][]string // server -> sorted tool names, cached at load
	tierOrder []string            // server names ordered by tier then name

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Registry from the given tool schemas and server catalog. The
// tool→server cache and per-server tool list are computed once here so
// get_server_for_tool and get_tool_names_for_server are O(1) lookups
// afterward.
func New(schemas map[string]ToolSchema, catalog map[string]ServerCatalogEntry) *Registry {
	r := &Registry{
		schemas:  make(map[string]ToolSchema, len(schemas)),
		catalog:  make(map[string]ServerCatalogEntry, len(catalog)),
		byServer: make(map[string][]string),
	}
	for name, s := range schemas {
		r.schemas[name] = s
	}
	for name, c := range catalog {
		r.catalog[name] = c
	}

	for name, s := range r.schemas {
		server := s.Server
		if s.AliasFor != "" {
			if target, ok := r.schemas[s.AliasFor]; ok {
				server = target.Server
			}
		}
		if server == "" {
			continue
		}
		r.byServer[server] = append(r.byServer[server], name)
	}
	for server := range r.byServer {
		sort.Strings(r.byServer[server])
	}

	r.tierOrder = make([]string, 0, len(r.catalog))
	for name := range r.catalog {
		r.tierOrder = append(r.tierOrder, name)
	}
	sort.Slice(r.tierOrder, func(i, j int) bool {
		a, b := r.catalog[r.tierOrder[i]], r.catalog[r.tierOrder[j]]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.Name < b.Name
	})

	return r
}

// GetToolSchema returns the resolved ToolSchema for name, following at most
// one alias hop. Returns (zero, false) for an unknown tool.
func (r *Registry) GetToolSchema(name string) (ToolSchema, bool) {
	s, ok := r.schemas[name]
	if !ok {
		r.misses.Add(1)
		return ToolSchema{}, false
	}
	r.hits.Add(1)
	if s.AliasFor == "" {
		return s, true
	}
	target, ok := r.schemas[s.AliasFor]
	if !ok {
		return ToolSchema{}, false
	}
	return target, true
}

// GetServerForTool returns the server that handles name, resolving one
// alias hop. Returns ("", false) for an unknown tool.
func (r *Registry) GetServerForTool(name string) (string, bool) {
	s, ok := r.GetToolSchema(name)
	if !ok {
		return "", false
	}
	return s.Server, true
}

// ValidateResult is the outcome of ValidateToolCall: whether the call has
// all required parameters, and which are missing if not. An unknown tool is
// never rejected here — Missing is empty and Unknown is true, leaving the
// decision to the Dispatcher (spec §4.1 "never rejects unknown tools").
type ValidateResult struct {
	OK      bool
	Unknown bool
	Missing []string
}

// ValidateToolCall checks that args satisfies name's required parameters.
// Unchanged under permutation of args' keys (spec §8 round-trip law): the
// check only inspects key presence, never iteration order.
func (r *Registry) ValidateToolCall(name string, args map[string]any) ValidateResult {
	s, ok := r.GetToolSchema(name)
	if !ok {
		return ValidateResult{OK: true, Unknown: true}
	}
	var missing []string
	for _, req := range s.Required {
		if _, present := args[req]; !present {
			missing = append(missing, req)
		}
	}
	return ValidateResult{OK: len(missing) == 0, Missing: missing}
}

// GetToolNamesForServer returns the sorted list of tool names routed to
// server, including resolved aliases.
func (r *Registry) GetToolNamesForServer(server string) []string {
	return append([]string(nil), r.byServer[server]...)
}

// GetServerCatalogForPrompt renders a deterministic textual listing of the
// server catalog, grouped by tier, for injection into LLM system prompts
// (spec §4.1). When includeKeyTools is true, each entry's key tools are
// listed inline.
func (r *Registry) GetServerCatalogForPrompt(includeKeyTools bool) string {
	var b strings.Builder
	currentTier := -1
	for _, name := range r.tierOrder {
		entry := r.catalog[name]
		if entry.Tier != currentTier {
			if currentTier != -1 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Tier %d:\n", entry.Tier)
			currentTier = entry.Tier
		}
		fmt.Fprintf(&b, "- %s: %s", entry.Name, entry.Description)
		if includeKeyTools && len(entry.KeyTools) > 0 {
			fmt.Fprintf(&b, " (tools: %s)", strings.Join(entry.KeyTools, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HitMiss returns the cumulative GetToolSchema hit and miss counts, used to
// satisfy the cache-correctness testable property (spec §8: "cache hit rate
// > 0 after the first repeated call to the same tool").
func (r *Registry) HitMiss() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}
