package strategist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

type critiqueResponse struct {
	Action     string  `json:"action"`
	Argument   string  `json:"argument"`
	Confidence float64 `json:"confidence"`
}

// AssessPlanCritique implements assess_plan_critique(plan, critique) ->
// {action, argument?, confidence} (spec §4.6), invoked when the Auditor
// rejects a plan. ACCEPT triggers regeneration by the orchestrator; DISPUTE
// with high confidence forces an override.
func (s *Strategist) AssessPlanCritique(ctx context.Context, t plan.TaskPlan, critique string) (CritiqueDecision, error) {
	encoded, _ := json.Marshal(t)
	raw, err := s.complete(ctx, "assess_plan_critique", llm.CompletionRequest{
		SystemPrompt: `You defend or concede a plan against an auditor's
rejection. ACCEPT means the critique is valid and the plan should be
regenerated. DISPUTE means the critique is wrong and you have a concrete
argument for why the plan should proceed as-is. Return strict JSON:
{"action":"ACCEPT|DISPUTE","argument":"...","confidence":0.0}`,
		UserPrompt:  fmt.Sprintf("PLAN:\n%s\n\nCRITIQUE:\n%s", encoded, critique),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.2,
	})
	if err != nil {
		// A failed critique call defaults to ACCEPT: safer to regenerate
		// than to force an unreviewed override through.
		return CritiqueDecision{Action: ActionAccept, Confidence: 0}, nil
	}

	var resp critiqueResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return CritiqueDecision{Action: ActionAccept, Confidence: 0}, nil
	}
	action := ActionAccept
	if strings.EqualFold(resp.Action, string(ActionDispute)) {
		action = ActionDispute
	}
	return CritiqueDecision{Action: action, Argument: resp.Argument, Confidence: resp.Confidence}, nil
}
