package strategist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

const sdlcDoctrine = `Follow the software delivery lifecycle: understand the
existing code before changing it, make the smallest change that satisfies
the goal, and verify the change runs before declaring the step complete.`

const generalTaskDoctrine = `Break the goal into the smallest number of
steps that reliably achieve it. Prefer the narrowest tool capable of each
step. Never assign a step to a server that is not in the active catalog.`

type planSynthesis struct {
	Goal  string     `json:"goal"`
	Steps []planStep `json:"steps"`
}

type planStep struct {
	Action            string         `json:"action"`
	VoiceAction       string         `json:"voice_action"`
	ExpectedResult    string         `json:"expected_result"`
	Realm             string         `json:"realm"`
	Tool              string         `json:"tool"`
	Args              map[string]any `json:"args"`
	RequiresConsent   bool           `json:"requires_consent"`
	RequiresUserInput bool           `json:"requires_user_input"`
	RequiresVision    bool           `json:"requires_vision"`
}

// CreatePlan implements create_plan(enriched) -> TaskPlan (spec §4.6), the
// five-phase plan-synthesis pipeline: memory recall, optional deep
// simulation, prompt assembly, LLM synthesis, and post-processing
// (voice-action standardization, meta-planning fallback, self-audit).
func (s *Strategist) CreatePlan(ctx context.Context, blob ClassificationBlob, priorFeedback string) (plan.TaskPlan, error) {
	// Phase 1: memory recall.
	var lessons []string
	if s.mem != nil {
		if summaries, err := s.mem.Recall(ctx, blob.EnrichedRequest, 3); err == nil {
			for _, sum := range summaries {
				lessons = append(lessons, sum.Lessons...)
			}
		}
	}

	// Phase 2: deep simulation, only for deep-tier work.
	var simulation string
	if blob.Profile.LLMTier == modeprofile.TierDeep {
		simulation, _ = s.complete(ctx, "create_plan.simulate", llm.CompletionRequest{
			SystemPrompt: "Think step by step in English about how to achieve the goal below, noting risks and prerequisites. Be concise.",
			UserPrompt:   simulationPrompt(blob, lessons, priorFeedback),
			ModelClass:   model.ModelClassHighReasoning,
		})
	}

	// Phase 3 + 4: prompt assembly and LLM synthesis.
	t, err := s.synthesizePlan(ctx, blob, simulation)
	if err != nil {
		return plan.TaskPlan{}, err
	}

	// Phase 5: post-processing.
	t.Steps = plan.StandardizeVoiceActions(t.Steps)

	if len(t.Steps) == 0 {
		// Meta-planning fallback: one extra research pass, then retry once.
		research, _ := s.complete(ctx, "create_plan.research", llm.CompletionRequest{
			SystemPrompt: "The previous plan had zero steps. Identify what information is missing to plan this task and summarize it in one paragraph.",
			UserPrompt:   blob.EnrichedRequest,
			ModelClass:   model.ModelClassDefault,
		})
		t, err = s.synthesizePlan(ctx, blob, simulation+"\n\nADDITIONAL RESEARCH:\n"+research)
		if err != nil {
			return plan.TaskPlan{}, err
		}
		t.Steps = plan.StandardizeVoiceActions(t.Steps)
	}

	if confidence, issues := s.selfAudit(ctx, t); confidence < 0.8 && len(issues) > 0 {
		t, err = s.synthesizePlan(ctx, blob, simulation+"\n\nFIX THESE ISSUES:\n"+strings.Join(issues, "\n"))
		if err == nil {
			t.Steps = plan.StandardizeVoiceActions(t.Steps)
		}
	}

	return t, nil
}

func simulationPrompt(blob ClassificationBlob, lessons []string, priorFeedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", blob.EnrichedRequest)
	if len(lessons) > 0 {
		b.WriteString("PAST LESSONS:\n")
		for _, l := range lessons {
			b.WriteString("- " + l + "\n")
		}
		b.WriteString("\n")
	}
	if priorFeedback != "" {
		fmt.Fprintf(&b, "PRIOR REJECTION FEEDBACK:\n%s\n", priorFeedback)
	}
	return b.String()
}

func (s *Strategist) synthesizePlan(ctx context.Context, blob ClassificationBlob, simulation string) (plan.TaskPlan, error) {
	doctrine := generalTaskDoctrine
	if blob.Profile.Mode == modeprofile.ModeDevelopment {
		doctrine = sdlcDoctrine
	}

	catalog := ""
	if s.catalog != nil {
		catalog = s.catalog.GetServerCatalogForPrompt(true)
	}

	system := fmt.Sprintf(`You are the planning half of a task-execution
system. %s

ACTIVE SERVER CATALOG (only assign steps to servers listed here):
%s

Return strict JSON: {"goal":"...","steps":[{"action":"...",
"voice_action":"...","expected_result":"...","realm":"server_name",
"tool":"tool_name","args":{},"requires_consent":false,
"requires_user_input":false,"requires_vision":false}]}
No prose outside the JSON object.`, doctrine, catalog)

	user := blob.EnrichedRequest
	if simulation != "" {
		user += "\n\nSIMULATION NOTES:\n" + simulation
	}

	raw, err := s.complete(ctx, "create_plan.synthesize", llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		ModelClass:   model.ModelClassHighReasoning,
	})
	if err != nil {
		return plan.TaskPlan{}, err
	}

	var synth planSynthesis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &synth); err != nil {
		// Malformed synthesis is treated as a zero-step plan so the
		// meta-planning fallback in CreatePlan can take over.
		return plan.NewTaskPlan(uuid.NewString(), blob.EnrichedRequest, nil), nil
	}

	goal := synth.Goal
	if goal == "" {
		goal = blob.EnrichedRequest
	}
	steps := make([]plan.Step, len(synth.Steps))
	for i, ps := range synth.Steps {
		steps[i] = plan.Step{
			ID:                uuid.NewString(),
			Action:            ps.Action,
			VoiceAction:       ps.VoiceAction,
			ExpectedResult:    ps.ExpectedResult,
			Realm:             ps.Realm,
			Tool:              ps.Tool,
			Args:              ps.Args,
			RequiresConsent:   ps.RequiresConsent,
			RequiresUserInput: ps.RequiresUserInput,
			RequiresVision:    ps.RequiresVision,
		}
	}
	return plan.NewTaskPlan(uuid.NewString(), goal, steps), nil
}

type selfAuditResponse struct {
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
}

// selfAudit asks for a gap analysis over the synthesized plan: missing
// discovery (unknown IPs/paths/credentials), realm validity, dependency
// order, and completeness (spec §4.6 phase 5 "Self-audit").
func (s *Strategist) selfAudit(ctx context.Context, t plan.TaskPlan) (float64, []string) {
	encoded, _ := json.Marshal(t)
	raw, err := s.complete(ctx, "create_plan.self_audit", llm.CompletionRequest{
		SystemPrompt: `Review this plan for discovery gaps (unknown IPs,
paths, or credentials the steps assume without discovering first),
invalid realms, missing dependency ordering, and completeness against the
goal. Return strict JSON: {"confidence":0.0,"issues":["..."]}`,
		UserPrompt:  string(encoded),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.1,
	})
	if err != nil {
		return 1.0, nil
	}
	var resp selfAuditResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return 1.0, nil
	}
	return resp.Confidence, resp.Issues
}
