// Package dispatch implements the Tool Dispatcher: the single entry point
// that resolves a heterogeneous, possibly-wrong tool name and argument map
// into a concrete (server, tool, arguments) triple and invokes it through
// the Tool Server Manager. The resolution pipeline is table-driven (synonym
// tables, prefix lists, per-server normalizers), with every table compiled
// into the package rather than loaded from data files; the dispatcher's own surface is a closed ToolKind enum rather than an
// open-ended string-keyed dictionary, per the design note that dynamic
// dispatch should compile down to declarative schemas plus sum types.
package dispatch

// ToolKind identifies which per-server normalizer handles a resolved tool
// call. It is a closed set: adding a new tool server means adding a new
// ToolKind and normalizer, never widening an open string space at the
// dispatch surface.
type ToolKind int

const (
	KindUnknown ToolKind = iota
	KindTerminal
	KindFilesystem
	KindBrowser
	KindWebSearch
	KindVibe
	KindDevtools
	KindContext7
	KindGoldenFund
	KindTourGuide
	KindXcodebuild
	KindDataAnalysis
	KindGitHub
	KindMaps
	KindMemory
	KindGraph
	KindRedis
	KindSequentialThinking
	KindDuckDuckGoSearch
	KindAppleScriptLegacyGit
)

// serverForKind names the canonical tool server for each ToolKind.
var serverForKind = map[ToolKind]string{
	KindTerminal:             "terminal",
	KindFilesystem:           "filesystem",
	KindBrowser:              "browser",
	KindWebSearch:            "duckduckgo-search",
	KindVibe:                 "vibe",
	KindDevtools:             "devtools",
	KindContext7:             "context7",
	KindGoldenFund:           "golden-fund",
	KindTourGuide:            "tour-guide",
	KindXcodebuild:           "xcodebuild",
	KindDataAnalysis:         "data-analysis",
	KindGitHub:               "github",
	KindMaps:                 "maps",
	KindMemory:               "memory",
	KindGraph:                "graph",
	KindRedis:                "redis",
	KindSequentialThinking:   "sequential-thinking",
	KindDuckDuckGoSearch:     "duckduckgo-search",
	KindAppleScriptLegacyGit: "applescript-legacy-git",
}

// kindForServer is the inverse of serverForKind, used by KindForServer to
// resolve a server name to its ToolKind.
var kindForServer = func() map[string]ToolKind {
	out := make(map[string]ToolKind, len(serverForKind))
	for k, s := range serverForKind {
		if _, exists := out[s]; !exists {
			out[s] = k
		}
	}
	return out
}()

// Server returns k's canonical tool server name, or "" if k is KindUnknown.
func (k ToolKind) Server() string { return serverForKind[k] }

// KindForServer returns the ToolKind that owns server, or KindUnknown.
func KindForServer(server string) ToolKind {
	if k, ok := kindForServer[server]; ok {
		return k
	}
	return KindUnknown
}
