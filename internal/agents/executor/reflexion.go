package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/dispatch"
	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

type deviationResponse struct {
	Deviation   bool   `json:"deviation"`
	DeviationOf string `json:"deviation_description"`
}

// runWithReflexion implements sub-phases 5 through 11: fast-path or
// reasoning to obtain a proposed call, execute it, detect empty-proof soft
// failures, and loop through a bounded technical reflexion on failure
// before finalizing a StepResult (spec §4.7 steps 5-11).
func (e *Executor) runWithReflexion(ctx context.Context, req Request, step plan.Step, rejectionReport string) plan.Outcome {
	var action proposedAction
	if isFastPath(step) {
		action = e.normalize(step, proposedAction{Tool: step.Tool, Server: step.Realm, Args: step.Args})
	} else {
		reasoning, err := e.reason(ctx, step, rejectionReport)
		if err != nil {
			return e.finalize(req, step, plan.StepResult{StepID: step.ID, Success: false, Error: err.Error()})
		}
		if reasoning.QuestionToAtlas != "" {
			_ = e.bus.Publish(ctx, bus.Message{
				Kind: bus.KindHelpRequest, SessionID: req.SessionID, StepID: step.ID,
				Payload: reasoning.QuestionToAtlas,
			})
			return plan.ProactiveHelp(reasoning.QuestionToAtlas)
		}
		action = e.normalize(step, reasoning.ProposedAction)
	}

	result := e.dispatcher.ResolveAndDispatch(ctx, action.Tool, action.Args, action.Server)
	e.recordProcessID(result.Output)
	result = e.applyEmptyProof(result)

	fixes := 0
	for !result.Success && fixes < maxReflexionFixes {
		fixes++

		if isTransientError(result.Error) {
			time.Sleep(backoff(fixes))
			result = e.dispatcher.ResolveAndDispatch(ctx, action.Tool, action.Args, action.Server)
			result = e.applyEmptyProof(result)
			continue
		}

		if fixes == 2 {
			if outcome, handled := e.considerDeviation(ctx, step, result); handled {
				return outcome
			}
		}

		if fixes >= maxReflexionFixes {
			action = e.selfHeal(ctx, action, result)
			result = e.dispatcher.ResolveAndDispatch(ctx, action.Tool, action.Args, action.Server)
			result = e.applyEmptyProof(result)
			break
		}

		fixed, err := e.proposeTargetedFix(ctx, step, action, result)
		if err != nil {
			break
		}
		action = e.normalize(step, fixed)
		result = e.dispatcher.ResolveAndDispatch(ctx, action.Tool, action.Args, action.Server)
		result = e.applyEmptyProof(result)
	}

	sr := plan.StepResult{
		StepID: step.ID, Success: result.Success, Result: result.Output, Error: result.Error,
		ToolCall: &plan.ToolCall{Server: action.Server, Tool: action.Tool, Args: action.Args},
	}
	return e.finalize(req, step, sr)
}

// applyEmptyProof implements sub-phase 9: downgrade a reported success to a
// soft failure when a data-intensive tool produced empty output.
func (e *Executor) applyEmptyProof(result dispatch.Result) dispatch.Result {
	if result.Success && isDataIntensive(result.Tool) && strings.TrimSpace(result.Output) == "" {
		result.Success = false
		result.Error = "tool reported success but returned no data for " + result.Tool
	}
	return result
}

// considerDeviation is invoked after the second failure (spec §4.7 step 10
// "After 2 failures -> deep reasoning"): ask whether a deviation (skip or
// alternative approach) is warranted instead of continuing to retry the
// same action.
func (e *Executor) considerDeviation(ctx context.Context, step plan.Step, result dispatch.Result) (plan.Outcome, bool) {
	raw, err := llm.Complete(ctx, e.client, llm.CompletionRequest{
		SystemPrompt: `This step has failed twice. Decide whether to keep
retrying or propose a deviation (skip this step, or take a different
approach entirely). Return strict JSON:
{"deviation":false,"deviation_description":""}`,
		UserPrompt:  fmt.Sprintf("STEP:\n%s\n\nLAST ERROR:\n%s", step.Action, result.Error),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.2,
	})
	if err != nil {
		return plan.Outcome{}, false
	}
	var resp deviationResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil || !resp.Deviation {
		return plan.Outcome{}, false
	}
	return plan.Deviation(plan.StepResult{
		StepID: step.ID, Success: false, Error: result.Error,
		IsDeviation: true, DeviationInfo: resp.DeviationOf,
	}), true
}

// selfHeal implements sub-phase 10's final rung: invoke the code-analysis
// collaborator (vibe.vibe_analyze_error with auto_fix=true) and re-execute
// the original tool once more. Absent a configured CodeAnalyzer, the
// original action is returned unchanged so the caller's single re-execute
// still happens.
func (e *Executor) selfHeal(ctx context.Context, action proposedAction, result dispatch.Result) proposedAction {
	if e.codeFix == nil {
		return action
	}
	fix, err := e.codeFix.AnalyzeError(ctx, result.Error, true)
	if err != nil || !fix.Applied {
		return action
	}
	return action
}

// proposeTargetedFix implements sub-phase 10's default rung: ask the LLM
// for a targeted fix action given the failure, execute that instead of
// retrying the original call verbatim.
func (e *Executor) proposeTargetedFix(ctx context.Context, step plan.Step, action proposedAction, result dispatch.Result) (proposedAction, error) {
	raw, err := llm.Complete(ctx, e.client, llm.CompletionRequest{
		SystemPrompt: `The last tool call failed. Propose a targeted fix
action. Return strict JSON: {"tool":"","args":{},"server":""}`,
		UserPrompt:  fmt.Sprintf("STEP:\n%s\n\nLAST ACTION: %s on %s\nERROR:\n%s", step.Action, action.Tool, action.Server, result.Error),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.2,
	})
	if err != nil {
		return proposedAction{}, err
	}
	var fixed proposedAction
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fixed); err != nil {
		return proposedAction{}, err
	}
	if fixed.Tool == "" {
		fixed.Tool = action.Tool
		fixed.Server = action.Server
	}
	return fixed, nil
}

// finalize implements sub-phase 11: stamp the StepResult's timestamp. The
// orchestrator owns history-append and checkpointing; the Executor only
// needs to hand back a complete, timestamped result.
func (e *Executor) finalize(_ Request, _ plan.Step, sr plan.StepResult) plan.Outcome {
	sr.Timestamp = time.Now()
	if sr.Success {
		return plan.Success(sr)
	}
	return plan.Failure(plan.KindToolError, sr.Error)
}
