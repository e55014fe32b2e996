package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

type alignmentResponse struct {
	Aligned     bool    `json:"aligned"`
	Confidence  float64 `json:"confidence"`
	Alternative string  `json:"alternative_action"`
}

// validateGoalAlignment implements sub-phase 2: on the first attempt at a
// step, ask the LLM whether the step still serves the global goal chain.
// When it reports misalignment with low confidence and proposes an
// alternative, the Executor autonomously substitutes it in place,
// recording the original action so the audit trail shows the
// substitution (spec §4.7 step 2).
func (e *Executor) validateGoalAlignment(ctx context.Context, goal string, step plan.Step) plan.Step {
	raw, err := llm.Complete(ctx, e.client, llm.CompletionRequest{
		SystemPrompt: `Compare the step below to the stated goal. Return
strict JSON: {"aligned":true,"confidence":0.0,"alternative_action":""}
alternative_action is only meaningful when aligned=false and you have a
concrete better action; leave it empty otherwise.`,
		UserPrompt:  fmt.Sprintf("GOAL:\n%s\n\nSTEP ACTION:\n%s", goal, step.Action),
		ModelClass:  model.ModelClassSmall,
		Temperature: 0.1,
	})
	if err != nil {
		return step
	}

	var resp alignmentResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return step
	}
	if resp.Aligned || resp.Confidence >= 0.5 || resp.Alternative == "" {
		return step
	}

	substituted := step
	substituted.Action = resp.Alternative
	if substituted.Args == nil {
		substituted.Args = map[string]any{}
	}
	substituted.Args["original_action"] = step.Action
	return substituted
}
