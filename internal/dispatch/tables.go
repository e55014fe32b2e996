package dispatch

import "strings"

// hallucinatedNames is the fixed set of commonly invented tool names that
// never correspond to a real tool on any server (spec §4.3 step 2). A
// suggestion is offered for each so the Executor's hard-failure message is
// actionable rather than a bare rejection.
var hallucinatedNames = map[string]string{
	"evaluate": "Use vibe_code_review for code evaluation or execute_command for running tests.",
	"assess":   "Use vibe_code_review for code evaluation.",
	"verify":   "Use the Auditor's verify_step, not a tool call.",
	"validate": "Use validate_tool_call semantics via the registry, not a direct tool call.",
	"check":    "Use execute_command with a concrete check command (e.g. `test -e <path>`).",
	"test":     "Use execute_command to run the project's actual test command.",
	"compile":  "Use execute_command with the project's build command.",
	"build":    "Use execute_command with the project's build command.",
	"deploy":   "Use execute_command with the project's deploy script.",
	"run":      "Use execute_command to run a concrete shell command.",
}

// knownPrefixes lists the recognized server-name prefixes that prefix
// normalization strips from a tool name (spec §4.3 step 4: strip known
// server prefixes when unambiguous); the server a prefix names is not used.
var knownPrefixes = []string{
	"macos-use_", "vibe_", "terminal_", "filesystem_", "browser_", "github_",
	"maps_", "memory_", "graph_", "redis_", "devtools_", "context7_",
	"xcodebuild_", "data-analysis_", "duckduckgo_",
}

// osNativePriority is the static priority set of words that must route to
// the OS-automation (terminal) tool family even when a more specific server
// might also claim the name (spec §4.3 "Prefer OS-native").
var osNativePriority = map[string]struct{}{
	"bash": {}, "zsh": {}, "run": {}, "git": {}, "npm": {}, "curl": {},
	"time": {}, "clipboard": {}, "applescript": {},
}

// synonymToCanonical maps a tool-name synonym to its canonical tool name
// (spec §4.3 step 5, e.g. `bash|execute|run → terminal.execute_command`).
var synonymToCanonical = map[string]string{
	"bash":    "execute_command",
	"execute": "execute_command",
	"run":     "execute_command",
	"sh":      "execute_command",
}

// argNameRepairs maps a commonly misnamed argument key to the name the
// backing tool schema actually expects (spec §4.3 step 5: "repair argument
// names").
var argNameRepairs = map[string]string{
	"cmd":         "command",
	"new_path":    "path",
	"libraryName": "term",
}

// argAutoFillSynonyms maps a missing required argument to a synonym the
// caller may have supplied instead (spec §4.3 step 8: "auto-fill from
// synonyms").
var argAutoFillSynonyms = map[string]string{
	"query":  "question",
	"prompt": "query",
}

// inferFromArgs guesses a tool name from the shape of args when the caller
// left tool_name empty (spec §4.3 step 1).
func inferFromArgs(args map[string]any) string {
	switch {
	case has(args, "command"):
		return "execute_command"
	case has(args, "path"):
		return "read_file"
	case has(args, "url"):
		return "fetch"
	case has(args, "x"), has(args, "y"):
		return "click"
	default:
		return ""
	}
}

func has(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}

// stripKnownPrefix removes a recognized server prefix from name when
// unambiguous, returning the stripped name and true if a prefix matched.
func stripKnownPrefix(name string) (string, bool) {
	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix), true
		}
	}
	return name, false
}
