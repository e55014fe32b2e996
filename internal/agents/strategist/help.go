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

type helpResponse struct {
	FixTool      string         `json:"fix_tool"`
	FixServer    string         `json:"fix_server"`
	FixArgs      map[string]any `json:"fix_args"`
	Alternative  string         `json:"alternative"`
}

// HelpExecutor implements help_tetyana(step_id, error, history?) ->
// RecoverySuggestion (spec §4.6), called by the Orchestrator's step loop on
// a ProactiveHelp outcome and in its RECOVERY side-loop. rejectionReport, when
// non-empty, is the Auditor's detailed rejection for the step.
func (s *Strategist) HelpExecutor(ctx context.Context, stepID, errText string, history []string, rejectionReport string) (RecoverySuggestion, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "STEP_ID: %s\nERROR: %s\n", stepID, errText)
	if rejectionReport != "" {
		fmt.Fprintf(&b, "AUDITOR REJECTION REPORT:\n%s\n", rejectionReport)
	}
	if len(history) > 0 {
		b.WriteString("RECENT HISTORY:\n")
		for _, h := range history {
			b.WriteString("- " + h + "\n")
		}
	}

	raw, err := s.complete(ctx, "help_tetyana", llm.CompletionRequest{
		SystemPrompt: `A stuck executor needs help recovering from a failed
step. Either propose a single direct fix tool call, or describe an
alternative approach in plain text. Return strict JSON:
{"fix_tool":"","fix_server":"","fix_args":{},"alternative":""}
Leave fix_tool empty when proposing only an alternative.`,
		UserPrompt:  b.String(),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.2,
	})
	if err != nil {
		return RecoverySuggestion{RejectionRef: rejectionReport}, err
	}

	var resp helpResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return RecoverySuggestion{Alternative: raw, RejectionRef: rejectionReport}, nil
	}

	suggestion := RecoverySuggestion{Alternative: resp.Alternative, RejectionRef: rejectionReport}
	if resp.FixTool != "" {
		suggestion.FixToolCall = &plan.ToolCall{Server: resp.FixServer, Tool: resp.FixTool, Args: resp.FixArgs}
	}
	return suggestion, nil
}
