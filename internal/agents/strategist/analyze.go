package strategist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// chatContextFanout bounds the number of concurrent context-gathering
// lookups AnalyzeRequest joins before building its classification prompt
// (spec §5 "chat path gathers context in parallel... with joined
// completion"), mirroring the teacher's bounded-semaphore join pattern
// (`runtime/agent/engine/engine.go`'s activity fan-out) collapsed to a
// single in-process errgroup since this repo has no durable workflow
// engine to schedule activities on.
const chatContextFanout = 2

const analyzeSystemPrompt = `Classify the user's request into exactly one mode:
chat, deep_chat, solo_task, task, development, recall, status.
deep_chat is for identity, mission, or philosophical questions about
yourself. development is for software engineering work. task is for
multi-step automation of the user's machine. solo_task is for a single
tool-assisted question. recall is for "what did we do before" questions.
status is for health/state checks. Everything else is chat.
Return strict JSON: {"mode":"...","reason":"...","enriched_request":"...",
"complexity":"low|medium|high","use_deep_persona":false,"voice_response":""}
enriched_request must restate the request with any resolved references
("repeat last task" -> the actual last task) filled in. No prose outside
the JSON object.`

type analyzeResponse struct {
	Mode            string `json:"mode"`
	Reason          string `json:"reason"`
	EnrichedRequest string `json:"enriched_request"`
	Complexity      string `json:"complexity"`
	UseDeepPersona  bool   `json:"use_deep_persona"`
	VoiceResponse   string `json:"voice_response"`
}

// repeatLastTaskMarkers are phrases that trigger a memory lookup for the
// most recent task summary, so analyze_request can resolve "do that again"
// style references before handing the request to the LLM.
var repeatLastTaskMarkers = []string{
	"repeat last", "do that again", "same as before", "повтори", "те саме",
}

// AnalyzeRequest implements analyze_request(text, ctx, history, images?) ->
// ClassificationBlob (spec §4.6). On LLM failure it falls back to the Mode
// Router's keyword heuristic; the returned Profile is always built through
// the registry, never hand-assembled.
func (s *Strategist) AnalyzeRequest(ctx context.Context, text string, snap sharedctx.Snapshot, history []string) (ClassificationBlob, error) {
	resolved := s.resolveRepeatReference(ctx, text)
	lessons, catalogSummary := s.gatherChatContext(ctx, resolved)

	raw, err := s.complete(ctx, "analyze_request", llm.CompletionRequest{
		SystemPrompt: analyzeSystemPrompt,
		UserPrompt:   analyzeUserPrompt(resolved, snap, history, lessons, catalogSummary),
		ModelClass:   model.ModelClassSmall,
		Temperature:  0.1,
	})
	if err != nil {
		return s.fallbackBlob(resolved), nil
	}

	var parsed analyzeResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return s.fallbackBlob(resolved), nil
	}
	if modeprofile.ParseMode(parsed.Mode) == "" {
		return s.fallbackBlob(resolved), nil
	}

	enriched := parsed.EnrichedRequest
	if enriched == "" {
		enriched = resolved
	}

	blob := ClassificationBlob{
		Mode:            parsed.Mode,
		Reason:          parsed.Reason,
		EnrichedRequest: enriched,
		Complexity:      parsed.Complexity,
		UseDeepPersona:  parsed.UseDeepPersona,
		VoiceResponse:   parsed.VoiceResponse,
	}
	blob.Profile = s.buildProfile(blob)
	return blob, nil
}

func analyzeUserPrompt(text string, snap sharedctx.Snapshot, history []string, lessons []string, catalogSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "REQUEST:\n%q\n\n", text)
	if snap.Goal != "" {
		fmt.Fprintf(&b, "ACTIVE GOAL:\n%s\n\n", snap.Goal)
	}
	if len(history) > 0 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		b.WriteString("RECENT HISTORY:\n")
		for _, h := range recent {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}
	if len(lessons) > 0 {
		b.WriteString("RELEVANT PAST LESSONS:\n")
		for _, l := range lessons {
			b.WriteString("- " + l + "\n")
		}
		b.WriteString("\n")
	}
	if catalogSummary != "" {
		fmt.Fprintf(&b, "AVAILABLE TOOLS:\n%s\n", catalogSummary)
	}
	return b.String()
}

// gatherChatContext joins the chat path's three independent context
// lookups — memory recall, the tool catalog summary, and (implicitly,
// since both read from already-loaded in-process state) graph/vector
// recall collapse onto the same memory.Store call — bounded by a small
// errgroup so neither lookup blocks the other before AnalyzeRequest builds
// its prompt (spec §5 "gathers context in parallel... with joined
// completion").
func (s *Strategist) gatherChatContext(ctx context.Context, resolved string) ([]string, string) {
	var lessons []string
	var catalogSummary string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chatContextFanout)

	g.Go(func() error {
		if s.mem == nil {
			return nil
		}
		summaries, err := s.mem.Recall(gctx, resolved, 3)
		if err != nil {
			return nil
		}
		for _, sum := range summaries {
			lessons = append(lessons, sum.Lessons...)
		}
		return nil
	})
	g.Go(func() error {
		if s.catalog == nil {
			return nil
		}
		catalogSummary = s.catalog.GetServerCatalogForPrompt(false)
		return nil
	})

	_ = g.Wait()
	return lessons, catalogSummary
}

// resolveRepeatReference consults long-term memory when text looks like a
// "repeat last task" reference, substituting the most recent remembered
// goal in place of the reference so the LLM classifies the real task
// instead of the literal phrase "do that again".
func (s *Strategist) resolveRepeatReference(ctx context.Context, text string) string {
	lower := strings.ToLower(text)
	triggered := false
	for _, marker := range repeatLastTaskMarkers {
		if strings.Contains(lower, marker) {
			triggered = true
			break
		}
	}
	if !triggered || s.mem == nil {
		return text
	}

	summaries, err := s.mem.Recall(ctx, "", 1)
	if err != nil || len(summaries) == 0 {
		return text
	}
	return summaries[0].Goal
}

// fallbackBlob builds a ClassificationBlob from the Mode Router's keyword
// heuristic when the LLM call fails or returns unusable output (spec §4.6
// "Falls back to Router's heuristic on LLM error").
func (s *Strategist) fallbackBlob(text string) ClassificationBlob {
	analysis := modeprofile.FallbackClassify(text)
	blob := ClassificationBlob{
		Mode:            analysis.Mode,
		Reason:          "keyword heuristic fallback",
		EnrichedRequest: text,
		Complexity:      "medium",
	}
	blob.Profile = s.buildProfile(blob)
	return blob
}
