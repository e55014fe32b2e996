package strategist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/memory"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

type evaluateResponse struct {
	Achieved       bool    `json:"achieved"`
	QualityScore   float64 `json:"quality_score"`
	ShouldRemember bool    `json:"should_remember"`
	FinalReport    string  `json:"final_report"`
}

// EvaluateExecution implements evaluate_execution(goal, results) ->
// {achieved, quality_score, should_remember, final_report} (spec §4.6),
// the authoritative close-out of a Trinity run. Its artifact-verification
// override forces achieved=false and caps quality_score at 0.3 whenever a
// claimed output file does not actually exist on disk, regardless of
// step-level success flags.
func (s *Strategist) EvaluateExecution(ctx context.Context, goal string, results []plan.StepResult) (ExecutionEvaluation, error) {
	encoded, _ := json.Marshal(results)
	raw, err := s.complete(ctx, "evaluate_execution", llm.CompletionRequest{
		SystemPrompt: `You render the final verdict on a completed task.
Return strict JSON: {"achieved":false,"quality_score":0.0,
"should_remember":false,"final_report":"..."}`,
		UserPrompt:  fmt.Sprintf("GOAL:\n%s\n\nSTEP RESULTS:\n%s", goal, encoded),
		ModelClass:  model.ModelClassHighReasoning,
		Temperature: 0.1,
	})
	if err != nil {
		return ExecutionEvaluation{}, err
	}

	var resp evaluateResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return ExecutionEvaluation{}, err
	}

	eval := ExecutionEvaluation{
		Achieved:       resp.Achieved,
		QualityScore:   resp.QualityScore,
		ShouldRemember: resp.ShouldRemember,
		FinalReport:    resp.FinalReport,
	}

	s.applyArtifactOverride(&eval, results)

	if eval.ShouldRemember && s.mem != nil {
		_ = s.mem.Remember(ctx, memory.TaskSummary{
			Goal:    goal,
			Outcome: eval.FinalReport,
		})
	}

	return eval, nil
}

// applyArtifactOverride extracts file paths claimed across every step
// result and, if any does not exist on disk, forces achieved=false and
// caps quality_score at 0.3 — overriding whatever the LLM verdict said,
// regardless of per-step success flags (spec §4.6 "Artifact verification
// override").
func (s *Strategist) applyArtifactOverride(eval *ExecutionEvaluation, results []plan.StepResult) {
	texts := make([]string, 0, len(results)*2)
	for _, r := range results {
		texts = append(texts, r.Result, r.Error)
	}
	for _, path := range extractClaimedArtifacts(texts) {
		if !s.artifacts.Exists(path) {
			eval.Achieved = false
			if eval.QualityScore > 0.3 {
				eval.QualityScore = 0.3
			}
			return
		}
	}
}
