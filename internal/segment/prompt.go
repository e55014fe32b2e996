package segment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/runtime/agent/model"
)

const segmenterSystemPrompt = `You split a user request into logical segments by intent mode.
Lower priority numbers are more urgent: always pull out identity, mission, or
consciousness questions as deep_chat segments before anything else, even
inside a long or technical request. Preserve the user's original order
otherwise. Minimum three words per segment, except chat. At most five
segments. Return strict JSON:
{"segments":[{"text":"exact substring of the request","mode":"mode_name","reason":"why","start_pos":0,"end_pos":0,"confidence":0.9}]}
No prose outside the JSON object.`

// NewLLMClassifier builds a Classifier that asks client to segment a request
// by intent mode, listing the configured modes with their priorities (spec
// §4.5 step 2: "send a prompt listing mode names with priorities").
func NewLLMClassifier(client model.Client, cfg Config) Classifier {
	return ClassifierFunc(func(ctx context.Context, request string, history []string) (string, error) {
		prompt := buildUserPrompt(request, history, cfg)
		return llm.Complete(ctx, client, llm.CompletionRequest{
			SystemPrompt: segmenterSystemPrompt,
			UserPrompt:   prompt,
			ModelClass:   model.ModelClassSmall,
			Temperature:  0.1,
		})
	})
}

func buildUserPrompt(request string, history []string, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "REQUEST:\n%q\n\n", request)

	if len(history) > 0 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		b.WriteString("RECENT CONTEXT:\n")
		for _, h := range recent {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("MODES (priority, lower = more urgent):\n")
	modes := make([]modeprofile.Mode, 0, len(cfg.Rules))
	for m := range cfg.Rules {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return cfg.priority(modes[i]) < cfg.priority(modes[j]) })
	for _, m := range modes {
		rule := cfg.rule(m)
		kws := strings.Join(rule.SplitKeywords, ", ")
		fmt.Fprintf(&b, "%d. %s — keywords: %s\n", rule.Priority, m, kws)
	}
	return b.String()
}
