package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trinity.dev/orchestrator/internal/agents/executor"
	"trinity.dev/orchestrator/internal/agents/strategist"
	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/segment"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
)

// fakeStrategist is a canned-response stand-in for strategist.Strategist,
// mirroring the queuedClient/queuedDispatcher fakes used in the agent test
// suites: each method consumes one entry from its own queue per call.
type fakeStrategist struct {
	blob strategist.ClassificationBlob

	plans     []plan.TaskPlan
	planCalls int

	critique strategist.CritiqueDecision

	helpSuggestions []strategist.RecoverySuggestion
	helpCalls       int

	eval strategist.ExecutionEvaluation

	decideAnswer string
	decideErr    error
}

func (f *fakeStrategist) AnalyzeRequest(context.Context, string, sharedctx.Snapshot, []string) (strategist.ClassificationBlob, error) {
	return f.blob, nil
}

func (f *fakeStrategist) CreatePlan(context.Context, strategist.ClassificationBlob, string) (plan.TaskPlan, error) {
	i := f.planCalls
	f.planCalls++
	if i >= len(f.plans) {
		return f.plans[len(f.plans)-1], nil
	}
	return f.plans[i], nil
}

func (f *fakeStrategist) AssessPlanCritique(context.Context, plan.TaskPlan, string) (strategist.CritiqueDecision, error) {
	return f.critique, nil
}

func (f *fakeStrategist) HelpExecutor(context.Context, string, string, []string, string) (strategist.RecoverySuggestion, error) {
	i := f.helpCalls
	f.helpCalls++
	if i >= len(f.helpSuggestions) {
		if len(f.helpSuggestions) == 0 {
			return strategist.RecoverySuggestion{}, nil
		}
		return f.helpSuggestions[len(f.helpSuggestions)-1], nil
	}
	return f.helpSuggestions[i], nil
}

func (f *fakeStrategist) EvaluateExecution(context.Context, string, []plan.StepResult) (strategist.ExecutionEvaluation, error) {
	return f.eval, nil
}

func (f *fakeStrategist) DecideForUser(context.Context, string, string) (string, error) {
	return f.decideAnswer, f.decideErr
}

// fakeExecutor returns one queued plan.Outcome per ExecuteStep call,
// repeating the last entry once exhausted.
type fakeExecutor struct {
	outcomes []plan.Outcome
	calls    int
}

func (f *fakeExecutor) ExecuteStep(context.Context, executor.Request) plan.Outcome {
	i := f.calls
	f.calls++
	if i >= len(f.outcomes) {
		return f.outcomes[len(f.outcomes)-1]
	}
	return f.outcomes[i]
}

// fakeAuditor returns fixed verdicts for VerifyPlan/VerifyStep, queued per
// call so a test can simulate "rejected once, then verified."
type fakeAuditor struct {
	planVerdicts []plan.VerificationResult
	planCalls    int

	stepVerdicts []plan.VerificationResult
	stepCalls    int
}

func (f *fakeAuditor) VerifyPlan(context.Context, plan.TaskPlan, string, bool) plan.VerificationResult {
	i := f.planCalls
	f.planCalls++
	if i >= len(f.planVerdicts) {
		return f.planVerdicts[len(f.planVerdicts)-1]
	}
	return f.planVerdicts[i]
}

func (f *fakeAuditor) VerifyStep(context.Context, plan.Step, plan.StepResult, string, string) plan.VerificationResult {
	i := f.stepCalls
	f.stepCalls++
	if i >= len(f.stepVerdicts) {
		return f.stepVerdicts[len(f.stepVerdicts)-1]
	}
	return f.stepVerdicts[i]
}

// fixedSegmenter always returns the same segments, regardless of request
// text, so tests can drive the Orchestrator's mode dispatch directly.
type fixedSegmenter struct {
	segments []segment.RequestSegment
}

func (f fixedSegmenter) Split(context.Context, string, []string) []segment.RequestSegment {
	return f.segments
}

// fakeUserChannel returns a canned answer, or reports timeout when got is
// false.
type fakeUserChannel struct {
	answer string
	got    bool
}

func (f fakeUserChannel) AwaitResponse(context.Context, string, string, time.Duration) (string, bool) {
	return f.answer, f.got
}

func testPlan(steps ...plan.Step) plan.TaskPlan {
	return plan.TaskPlan{ID: "plan-1", Goal: "deploy the worker", Steps: steps, Status: plan.StatusPending}
}

func newTestOrchestrator(strat StrategistAgent, exec ExecutorAgent, aud AuditorAgent, seg RequestSegmenter, opts ...Option) *Orchestrator {
	return New(strat, exec, aud, seg, bus.New(), NewInMemoryCheckpointStore(), telemetry.Noop(), opts...)
}

func TestRunDispatchesChatModeDirectlyToStrategist(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "what's the weather", Profile: modeprofile.Profile{Mode: modeprofile.ModeChat}},
	}}
	strat := &fakeStrategist{blob: strategist.ClassificationBlob{VoiceResponse: "it's sunny"}}
	o := newTestOrchestrator(strat, &fakeExecutor{}, &fakeAuditor{}, segmenter)

	out := o.Run(context.Background(), "session-1", "what's the weather", nil)

	require.Len(t, out, 1)
	assert.Equal(t, StateIdle, out[0].State)
	assert.Equal(t, "it's sunny", out[0].Reply)
}

func TestRunSoloTaskExecutesPlannedStepsWithoutVerification(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "check disk space", Profile: modeprofile.Profile{Mode: modeprofile.ModeSoloTask}},
	}}
	strat := &fakeStrategist{plans: []plan.TaskPlan{testPlan(plan.Step{ID: "s1", Action: "run df -h"})}}
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "42% used"})}}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(strat, exec, auditor, segmenter)

	out := o.Run(context.Background(), "session-2", "check disk space", nil)

	require.Len(t, out, 1)
	require.Len(t, out[0].Results, 1)
	assert.Equal(t, "42% used", out[0].Results[0].Result)
	assert.Zero(t, auditor.stepCalls, "solo_task must not invoke verify_step")
}

func TestRunTrinityHappyPathVerifiesPlanAndEveryStep(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "deploy the worker", Profile: modeprofile.Profile{Mode: modeprofile.ModeTask}},
	}}
	taskPlan := testPlan(plan.Step{ID: "s1", Action: "deploy worker"})
	strat := &fakeStrategist{
		plans: []plan.TaskPlan{taskPlan},
		eval:  strategist.ExecutionEvaluation{Achieved: true, FinalReport: "worker deployed"},
	}
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "deployed"})}}
	auditor := &fakeAuditor{
		planVerdicts: []plan.VerificationResult{{Verified: true}},
		stepVerdicts: []plan.VerificationResult{{Verified: true}},
	}
	o := newTestOrchestrator(strat, exec, auditor, segmenter)

	out := o.Run(context.Background(), "session-3", "deploy the worker", nil)

	require.Len(t, out, 1)
	assert.Equal(t, StateIdle, out[0].State)
	assert.Equal(t, "worker deployed", out[0].Reply)
	assert.Equal(t, 1, auditor.planCalls)
	assert.Equal(t, 1, auditor.stepCalls)
}

func TestRunTrinityReplansOnPlanRejectionUpToLimit(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "deploy the worker", Profile: modeprofile.Profile{Mode: modeprofile.ModeTask}},
	}}
	badPlan := testPlan(plan.Step{ID: "s1", Action: "deploy worker without review"})
	goodPlan := testPlan(plan.Step{ID: "s1", Action: "deploy worker with review"})
	strat := &fakeStrategist{
		plans:    []plan.TaskPlan{badPlan, goodPlan},
		critique: strategist.CritiqueDecision{Action: strategist.ActionAccept},
		eval:     strategist.ExecutionEvaluation{Achieved: true, FinalReport: "done"},
	}
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "ok"})}}
	auditor := &fakeAuditor{
		planVerdicts: []plan.VerificationResult{
			{Verified: false, Description: "missing review step"},
			{Verified: true},
		},
		stepVerdicts: []plan.VerificationResult{{Verified: true}},
	}
	o := newTestOrchestrator(strat, exec, auditor, segmenter)

	out := o.Run(context.Background(), "session-4", "deploy the worker", nil)

	require.Len(t, out, 1)
	assert.Equal(t, StateIdle, out[0].State)
	assert.Equal(t, 2, strat.planCalls, "should have replanned exactly once")
}

func TestRunTrinityFailsAfterExhaustingReplanLimit(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "deploy the worker", Profile: modeprofile.Profile{Mode: modeprofile.ModeTask}},
	}}
	badPlan := testPlan(plan.Step{ID: "s1", Action: "deploy worker"})
	strat := &fakeStrategist{
		plans:    []plan.TaskPlan{badPlan},
		critique: strategist.CritiqueDecision{Action: strategist.ActionAccept},
	}
	auditor := &fakeAuditor{planVerdicts: []plan.VerificationResult{{Verified: false, Description: "still broken"}}}
	o := newTestOrchestrator(strat, &fakeExecutor{}, auditor, segmenter, WithLimits(1, 0, 0, 0))

	out := o.Run(context.Background(), "session-5", "deploy the worker", nil)

	require.Len(t, out, 1)
	assert.Equal(t, StateFailed, out[0].State)
	require.Error(t, out[0].Err)
	assert.Equal(t, 2, strat.planCalls, "replan_limit=1 allows one initial attempt plus one retry")
}

func TestRunTrinityDisputeAtHighConfidenceProceedsDespiteRejection(t *testing.T) {
	segmenter := fixedSegmenter{segments: []segment.RequestSegment{
		{Text: "deploy the worker", Profile: modeprofile.Profile{Mode: modeprofile.ModeTask}},
	}}
	taskPlan := testPlan(plan.Step{ID: "s1", Action: "deploy worker"})
	strat := &fakeStrategist{
		plans:    []plan.TaskPlan{taskPlan},
		critique: strategist.CritiqueDecision{Action: strategist.ActionDispute, Confidence: 0.9},
		eval:     strategist.ExecutionEvaluation{Achieved: true, FinalReport: "done"},
	}
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "ok"})}}
	auditor := &fakeAuditor{
		planVerdicts: []plan.VerificationResult{{Verified: false, Description: "policy objection"}},
		stepVerdicts: []plan.VerificationResult{{Verified: true}},
	}
	o := newTestOrchestrator(strat, exec, auditor, segmenter)

	out := o.Run(context.Background(), "session-6", "deploy the worker", nil)

	require.Len(t, out, 1)
	assert.Equal(t, StateIdle, out[0].State)
	assert.Equal(t, 1, strat.planCalls, "dispute at high confidence must short-circuit replanning")
}

func TestRunOneStepRecoversAfterAuditorRejectionThenSucceeds(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "deploy worker"}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "attempt 1"}),
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "attempt 2"}),
	}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{
		{Verified: false, Description: "evidence missing"},
		{Verified: true},
	}}
	strat := &fakeStrategist{helpSuggestions: []strategist.RecoverySuggestion{{Alternative: "retry with sudo"}}}
	o := newTestOrchestrator(strat, exec, auditor, fixedSegmenter{})

	sess := newSession("session-7")
	result, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.True(t, ok)
	assert.Equal(t, "attempt 2", result.Result)
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 1, strat.helpCalls)
}

func TestRunOneStepGivesUpAfterMaxStepAttempts(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "deploy worker"}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "nope"})}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{{Verified: false, Description: "still wrong"}}}
	strat := &fakeStrategist{}
	o := newTestOrchestrator(strat, exec, auditor, fixedSegmenter{}, WithLimits(0, 2, 0, 0))

	sess := newSession("session-8")
	_, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.False(t, ok)
	assert.Equal(t, 2, exec.calls, "bounded by maxStepAttempts=2")
}

func TestRunOneStepNeedInputConsultsUserChannelThenRetries(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "delete old backups", RequiresConsent: true}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{
		plan.NeedInput("Confirm: delete old backups"),
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "deleted"}),
	}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{{Verified: true}}}
	strat := &fakeStrategist{}
	channel := fakeUserChannel{answer: "yes, delete them", got: true}
	o := newTestOrchestrator(strat, exec, auditor, fixedSegmenter{}, WithUserChannel(channel))

	sess := newSession("session-9")
	result, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.True(t, ok)
	assert.Equal(t, "deleted", result.Result)
}

func TestRunOneStepNeedInputFallsBackToDecideForUserOnTimeout(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "delete old backups", RequiresConsent: true}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{
		plan.NeedInput("Confirm: delete old backups"),
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "deleted"}),
	}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{{Verified: true}}}
	strat := &fakeStrategist{decideAnswer: "proceed"}
	o := newTestOrchestrator(strat, exec, auditor, fixedSegmenter{})

	sess := newSession("session-10")
	result, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.True(t, ok)
	assert.Equal(t, "deleted", result.Result)
}

func TestRunOneStepProactiveHelpConsultsStrategistThenRetries(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "curl or wget the file"}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{
		plan.ProactiveHelp("should I use curl or wget?"),
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "fetched with curl"}),
	}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{{Verified: true}}}
	strat := &fakeStrategist{helpSuggestions: []strategist.RecoverySuggestion{{Alternative: "use curl"}}}
	o := newTestOrchestrator(strat, exec, auditor, fixedSegmenter{})

	sess := newSession("session-11")
	result, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.True(t, ok)
	assert.Equal(t, "fetched with curl", result.Result)
}

func TestRunOneStepFailureStopsImmediately(t *testing.T) {
	step := plan.Step{ID: "s1", Action: "format disk"}
	taskPlan := testPlan(step)
	exec := &fakeExecutor{outcomes: []plan.Outcome{plan.Failure(plan.KindBlocklisted, "destructive command blocked")}}
	auditor := &fakeAuditor{}
	o := newTestOrchestrator(&fakeStrategist{}, exec, auditor, fixedSegmenter{})

	sess := newSession("session-12")
	_, ok := o.runOneStep(context.Background(), sess, taskPlan, step, nil)

	assert.False(t, ok)
	assert.Equal(t, 1, exec.calls, "a terminal Failure outcome must not be retried")
	assert.Zero(t, auditor.stepCalls)
}

func TestRunStepsCheckpointsAfterEveryStepAndStopsOnFailure(t *testing.T) {
	taskPlan := testPlan(
		plan.Step{ID: "s1", Action: "step one"},
		plan.Step{ID: "s2", Action: "step two"},
	)
	exec := &fakeExecutor{outcomes: []plan.Outcome{
		plan.Success(plan.StepResult{StepID: "s1", Success: true, Result: "ok"}),
		plan.Failure(plan.KindToolError, "boom"),
	}}
	auditor := &fakeAuditor{stepVerdicts: []plan.VerificationResult{{Verified: true}}}
	checkpoint := NewInMemoryCheckpointStore()
	o := New(&fakeStrategist{}, exec, auditor, fixedSegmenter{}, bus.New(), checkpoint, telemetry.Noop())

	sess := newSession("session-13")
	results := o.runSteps(context.Background(), sess, taskPlan, nil)

	require.Len(t, results, 1)
	cp, found, err := checkpoint.Load(context.Background(), "session-13")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, cp.NextStepIndex, "checkpoint advances even on the failing step")
	assert.Len(t, cp.Results, 1)
}

func TestAwaitOrDecideReturnsErrorAsNoAnswer(t *testing.T) {
	strat := &fakeStrategist{decideErr: errors.New("llm unavailable")}
	o := newTestOrchestrator(strat, &fakeExecutor{}, &fakeAuditor{}, fixedSegmenter{})

	answer, ok := o.awaitOrDecide(context.Background(), "session-14", "confirm?")

	assert.False(t, ok)
	assert.Empty(t, answer)
}
