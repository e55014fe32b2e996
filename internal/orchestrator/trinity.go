// trinity.go implements the task|development dispatch (spec §4.9 step 2):
// the full Strategist/Executor/Auditor loop, with bounded replanning before
// execution starts and a bounded per-step recovery ladder once it does.
package orchestrator

import (
	"context"
	"fmt"

	"trinity.dev/orchestrator/internal/agents/executor"
	"trinity.dev/orchestrator/internal/agents/strategist"
	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/segment"
	"trinity.dev/orchestrator/internal/sharedctx"
)

// runTrinity implements spec §4.9's task|development branch: create_plan,
// verify_plan with bounded replanning, then a per-step execute/verify/
// recover loop, closing with evaluate_execution as the authoritative final
// report.
func (o *Orchestrator) runTrinity(ctx context.Context, sess *Session, seg segment.RequestSegment, history []string) SegmentResult {
	blob, err := o.strategist.AnalyzeRequest(ctx, seg.Text, sess.ctx.Snapshot(), history)
	if err != nil {
		return SegmentResult{Segment: seg, State: StateFailed, Err: err}
	}
	sess.ctx.SetGoal(blob.EnrichedRequest)

	taskPlan, ok := o.planAndVerify(ctx, sess, blob)
	if !ok {
		return SegmentResult{Segment: seg, State: StateFailed, Err: fmt.Errorf("plan rejected after %d replan attempts", o.replanLimit)}
	}

	results := o.runSteps(ctx, sess, taskPlan, history)

	eval, err := o.strategist.EvaluateExecution(ctx, taskPlan.Goal, results)
	if err != nil {
		return SegmentResult{Segment: seg, State: StateFailed, Plan: &taskPlan, Results: results, Err: err}
	}

	finalState := StateIdle
	if !eval.Achieved {
		finalState = StateFailed
	}
	return SegmentResult{Segment: seg, State: finalState, Plan: &taskPlan, Results: results, Reply: eval.FinalReport}
}

// planAndVerify implements create_plan -> verify_plan, bounded by
// replanLimit (spec §4.9 step b: "if rejected, call
// assess_plan_critique; on DISPUTE at high confidence proceed anyway,
// otherwise ask the Strategist to regenerate, bounded by replan_limit
// (default 2)").
func (o *Orchestrator) planAndVerify(ctx context.Context, sess *Session, blob strategist.ClassificationBlob) (plan.TaskPlan, bool) {
	priorFeedback := ""
	for attempt := 0; attempt <= o.replanLimit; attempt++ {
		taskPlan, err := o.strategist.CreatePlan(ctx, blob, priorFeedback)
		if err != nil {
			o.tel.Log.Error(ctx, "create_plan failed", "session", sess.id, "err", err)
			return plan.TaskPlan{}, false
		}

		verdict := o.auditor.VerifyPlan(ctx, taskPlan, blob.EnrichedRequest, true)
		if verdict.Verified {
			return taskPlan, true
		}
		if verdict.FixedPlan != nil {
			return *verdict.FixedPlan, true
		}

		critique, err := o.strategist.AssessPlanCritique(ctx, taskPlan, verdict.Description)
		if err == nil && critique.Action == strategist.ActionDispute && critique.Confidence >= disputeConfidenceFloor {
			o.tel.Log.Info(ctx, "strategist disputed plan rejection, proceeding", "session", sess.id, "confidence", critique.Confidence)
			return taskPlan, true
		}

		priorFeedback = verdict.Description
		if len(verdict.Issues) > 0 {
			priorFeedback = fmt.Sprintf("%s; issues: %v", priorFeedback, verdict.Issues)
		}
	}
	return plan.TaskPlan{}, false
}

// runSteps implements the per-step loop of spec §4.9 step c: execute,
// branch on the Outcome's tag, verify successes with the Auditor, and run a
// bounded recovery ladder on rejection. A checkpoint is saved after every
// step, successful or not, recording NextStepIndex; the Orchestrator never
// reads a checkpoint back, so a restarted process does not resume from it.
func (o *Orchestrator) runSteps(ctx context.Context, sess *Session, taskPlan plan.TaskPlan, history []string) []plan.StepResult {
	results := make([]plan.StepResult, 0, len(taskPlan.Steps))

	for i, step := range taskPlan.Steps {
		result, ok := o.runOneStep(ctx, sess, taskPlan, step, history)
		if ok {
			results = append(results, result)
			rememberTouchedPath(sess.ctx, result)
		}

		o.save(ctx, Checkpoint{
			SessionID: sess.id, TaskID: taskPlan.ID, State: StateExecuting,
			Plan: taskPlan, Results: results, NextStepIndex: i + 1,
		})

		if !ok {
			break
		}
	}
	return results
}

// runOneStep drives a single step through execution, the NeedInput/
// ProactiveHelp/Deviation branches, and verify_step, retrying through the
// recovery ladder (bounded by maxStepAttempts) on Auditor rejection.
func (o *Orchestrator) runOneStep(ctx context.Context, sess *Session, taskPlan plan.TaskPlan, step plan.Step, history []string) (plan.StepResult, bool) {
	var providedResponse string

	for attempt := 1; attempt <= o.maxStepAttempts; attempt++ {
		outcome := o.executor.ExecuteStep(ctx, executor.Request{
			SessionID: sess.id, Step: step, Attempt: attempt, Goal: taskPlan.Goal,
			History: history, ProvidedResponse: providedResponse, Ctx: sess.ctx,
		})

		switch outcome.Tag {
		case plan.TagNeedInput:
			answer, _ := o.awaitOrDecide(ctx, sess.id, outcome.Prompt)
			o.publishUserResponse(ctx, sess.id, answer)
			providedResponse = answer
			continue

		case plan.TagProactiveHelp:
			suggestion, err := o.strategist.HelpExecutor(ctx, step.ID, outcome.Question, history, "")
			if err != nil {
				return plan.StepResult{StepID: step.ID, Success: false, Error: err.Error()}, false
			}
			providedResponse = suggestion.Alternative
			continue

		case plan.TagFailure:
			o.tel.Log.Warn(ctx, "step failed", "step", step.ID, "kind", outcome.FailKind, "detail", outcome.Detail)
			return plan.StepResult{StepID: step.ID, Success: false, Error: describeOutcome(outcome)}, false

		case plan.TagDeviation, plan.TagSuccess:
			if outcome.Result == nil {
				return plan.StepResult{StepID: step.ID, Success: false, Error: "empty result"}, false
			}

			verdict := o.auditor.VerifyStep(ctx, step, *outcome.Result, taskPlan.Goal, taskPlan.ID)
			if verdict.Verified {
				return *outcome.Result, true
			}

			// RECOVERY (spec §4.9 step c, §4.8 step 5): the Auditor has
			// already published KindRejection and recorded the rejection;
			// ask the Strategist for a fix and retry with it as the next
			// attempt's provided response, bounded by maxStepAttempts.
			if attempt == o.maxStepAttempts {
				return *outcome.Result, false
			}
			suggestion, err := o.strategist.HelpExecutor(ctx, step.ID, verdict.Description, history, verdict.Description)
			if err == nil && suggestion.Alternative != "" {
				providedResponse = suggestion.Alternative
			}
			continue
		}
	}
	return plan.StepResult{StepID: step.ID, Success: false, Error: "recovery ladder exhausted"}, false
}

// awaitOrDecide implements the AWAITING_INPUT side-loop (spec §4.9 step c):
// wait up to inputTimeout for a user reply over the UserChannel; on timeout
// or when no channel is wired, fall back to Strategist.DecideForUser.
func (o *Orchestrator) awaitOrDecide(ctx context.Context, sessionID, prompt string) (string, bool) {
	if o.users != nil {
		if answer, got := o.users.AwaitResponse(ctx, sessionID, prompt, o.inputTimeout); got {
			return answer, true
		}
	}
	answer, err := o.strategist.DecideForUser(ctx, prompt, "user did not respond within the input timeout")
	if err != nil {
		return "", false
	}
	return answer, true
}

// publishUserResponse injects a resolved AWAITING_INPUT answer onto the bus
// as a user_response message (spec §4.9 step c), independent of it also
// being threaded through as the next attempt's Request.ProvidedResponse.
func (o *Orchestrator) publishUserResponse(ctx context.Context, sessionID, answer string) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, bus.Message{
		Kind: bus.KindUserResponse, SessionID: sessionID, Payload: answer,
	}); err != nil {
		o.tel.Log.Warn(ctx, "failed to publish user response", "session", sessionID, "err", err)
	}
}

// rememberTouchedPath records a step's path argument, if any, in the
// session's recent-path list (spec §4.4), so later prompt assembly can
// reference "the file I just opened" without re-deriving it from history.
func rememberTouchedPath(ctx *sharedctx.SharedContext, result plan.StepResult) {
	if result.ToolCall == nil {
		return
	}
	for _, key := range []string{"path", "file_path", "filepath"} {
		if v, ok := result.ToolCall.Args[key]; ok {
			if path, ok := v.(string); ok && path != "" {
				ctx.RememberPath(path, 10)
				return
			}
		}
	}
}

// save writes cp to the checkpoint store, logging (never panicking) on
// failure: checkpoint durability is best-effort and must never abort a
// running task.
func (o *Orchestrator) save(ctx context.Context, cp Checkpoint) {
	if o.checkpoint == nil {
		return
	}
	if err := o.checkpoint.Save(ctx, cp); err != nil {
		o.tel.Log.Warn(ctx, "checkpoint save failed", "session", cp.SessionID, "err", err)
	}
}
