package strategist

import (
	"context"
	"fmt"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// DecideForUser implements decide_for_user(question, context) -> text
// (spec §4.6), called after the fixed silent-answer timeout (~20s) from a
// step that requested user input. It must return a decisive answer rather
// than deferring further, since there is no one left to ask.
func (s *Strategist) DecideForUser(ctx context.Context, question, contextStr string) (string, error) {
	answer, err := s.complete(ctx, "decide_for_user", llm.CompletionRequest{
		SystemPrompt: `The user did not answer in time. Decide on their
behalf using the context given. Give a short, decisive answer in the same
language as the question — never ask a follow-up question back.`,
		UserPrompt:  fmt.Sprintf("QUESTION:\n%s\n\nCONTEXT:\n%s", question, contextStr),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
