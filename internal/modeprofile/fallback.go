package modeprofile

import "strings"

// codeWords trigger the development rule in FallbackClassify.
var codeWords = []string{
	"code", "function", "bug", "refactor", "compile", "deploy", "repo",
	"git", "pull request", "unit test", "stack trace", "npm", "golang",
}

// imperativeVerbs trigger the task rule in FallbackClassify.
var imperativeVerbs = []string{
	"open", "run", "create", "delete", "install", "move", "copy", "download",
	"execute", "start", "stop", "build", "write", "send",
}

// FallbackClassify is the Mode Router's 6-rule heuristic, used only when the
// Strategist's LLM classification call fails (spec §4.4). Deliberately
// minimal: the LLM is the real classifier, this is a safety net.
//
// Rules, in order:
//  1. contains a code word               -> development
//  2. begins with an imperative verb     -> task
//  3. at most 3 words                    -> chat
//  4. at least 15 words                  -> task (high complexity)
//  5. ends in '?' and fewer than 10 words -> solo_task
//  6. default                            -> solo_task
func FallbackClassify(request string) Analysis {
	trimmed := strings.TrimSpace(request)
	lower := strings.ToLower(trimmed)
	words := strings.Fields(trimmed)

	for _, w := range codeWords {
		if strings.Contains(lower, w) {
			return Analysis{Mode: string(ModeDevelopment)}
		}
	}

	if len(words) > 0 {
		first := strings.ToLower(strings.TrimFunc(words[0], isPunct))
		for _, v := range imperativeVerbs {
			if first == v {
				return Analysis{Mode: string(ModeTask)}
			}
		}
	}

	if len(words) <= 3 {
		return Analysis{Mode: string(ModeChat)}
	}

	if len(words) >= 15 {
		return Analysis{Mode: string(ModeTask)}
	}

	if strings.HasSuffix(trimmed, "?") && len(words) < 10 {
		return Analysis{Mode: string(ModeSoloTask)}
	}

	return Analysis{Mode: string(ModeSoloTask)}
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	default:
		return false
	}
}
