// Package orchestrator implements the Trinity Orchestrator (spec §4.9):
// the top-level state machine that segments an incoming request, dispatches
// each segment by its ModeProfile, and — for task/development segments —
// drives the full Strategist/Executor/Auditor loop with bounded replanning
// and per-step recovery. It owns no reasoning of its own: every judgment is
// delegated to the three agents it wires together, mirroring the teacher's
// convention of a thin coordinating struct over narrow collaborator
// interfaces (runtime/agent/planner.go's own relationship to model.Client).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"trinity.dev/orchestrator/internal/agents/executor"
	"trinity.dev/orchestrator/internal/agents/strategist"
	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/segment"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
)

// State is one node of the top-level Trinity state machine (spec §4.9).
type State string

const (
	StateIdle          State = "IDLE"
	StateClassifying   State = "CLASSIFYING"
	StatePlanning      State = "PLANNING"
	StateVerifyingPlan State = "VERIFYING_PLAN"
	StateExecuting     State = "EXECUTING"
	StateEvaluating    State = "EVALUATING"
	StateAwaitingInput State = "AWAITING_INPUT"
	StateRecovery      State = "RECOVERY"
	StateFailed        State = "FAILED"
)

// Defaults for the bounded retry knobs named throughout spec §4.9.
const (
	defaultReplanLimit     = 2
	defaultMaxStepAttempts = 3
	defaultInputTimeout    = 20 * time.Second
	defaultSoloTaskTurns   = 5
	disputeConfidenceFloor = 0.75
)

// StrategistAgent is the narrow surface the Orchestrator calls on the
// Strategist (spec §4.6's six operations).
type StrategistAgent interface {
	AnalyzeRequest(ctx context.Context, text string, snap sharedctx.Snapshot, history []string) (strategist.ClassificationBlob, error)
	CreatePlan(ctx context.Context, blob strategist.ClassificationBlob, priorFeedback string) (plan.TaskPlan, error)
	AssessPlanCritique(ctx context.Context, t plan.TaskPlan, critique string) (strategist.CritiqueDecision, error)
	HelpExecutor(ctx context.Context, stepID, errText string, history []string, rejectionReport string) (strategist.RecoverySuggestion, error)
	EvaluateExecution(ctx context.Context, goal string, results []plan.StepResult) (strategist.ExecutionEvaluation, error)
	DecideForUser(ctx context.Context, question, contextStr string) (string, error)
}

// ExecutorAgent is the narrow surface the Orchestrator calls on the
// Executor (spec §4.7).
type ExecutorAgent interface {
	ExecuteStep(ctx context.Context, req executor.Request) plan.Outcome
}

// AuditorAgent is the narrow surface the Orchestrator calls on the Auditor
// (spec §4.8).
type AuditorAgent interface {
	VerifyPlan(ctx context.Context, t plan.TaskPlan, userRequest string, fixIfRejected bool) plan.VerificationResult
	VerifyStep(ctx context.Context, step plan.Step, result plan.StepResult, goalContext, taskID string) plan.VerificationResult
}

// RequestSegmenter is the narrow surface the Orchestrator calls on the
// Request Segmenter (spec §4.5).
type RequestSegmenter interface {
	Split(ctx context.Context, request string, history []string) []segment.RequestSegment
}

// UserChannel publishes a prompt to the user and waits (up to timeout) for
// a reply, implementing the AWAITING_INPUT side-loop (spec §4.9 step c). No
// concrete transport ships here: the Orchestrator is transport-agnostic by
// design, matching the spec's framing of voice/chat channels as outer
// surfaces.
type UserChannel interface {
	AwaitResponse(ctx context.Context, sessionID, prompt string, timeout time.Duration) (string, bool)
}

// Orchestrator wires the Trinity agents, the Segmenter, and session-scoped
// collaborator state into the top-level control loop. One Orchestrator is
// shared across sessions; all session-mutable state lives in Session.
type Orchestrator struct {
	strategist StrategistAgent
	executor   ExecutorAgent
	auditor    AuditorAgent
	segmenter  RequestSegmenter
	bus        bus.Bus
	users      UserChannel
	checkpoint CheckpointStore
	tel        telemetry.Set

	replanLimit     int
	maxStepAttempts int
	inputTimeout    time.Duration
	soloTaskTurns   int
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithUserChannel wires a UserChannel for the AWAITING_INPUT side-loop.
// Without one, a NeedInput outcome falls straight through to
// Strategist.DecideForUser as if the timeout had already elapsed.
func WithUserChannel(u UserChannel) Option { return func(o *Orchestrator) { o.users = u } }

// WithLimits overrides the bounded-retry defaults (spec §4.9/§5). Zero
// values leave the corresponding default in place.
func WithLimits(replanLimit, maxStepAttempts, soloTaskTurns int, inputTimeout time.Duration) Option {
	return func(o *Orchestrator) {
		if replanLimit > 0 {
			o.replanLimit = replanLimit
		}
		if maxStepAttempts > 0 {
			o.maxStepAttempts = maxStepAttempts
		}
		if soloTaskTurns > 0 {
			o.soloTaskTurns = soloTaskTurns
		}
		if inputTimeout > 0 {
			o.inputTimeout = inputTimeout
		}
	}
}

// New constructs an Orchestrator. checkpoint may be nil, in which case an
// InMemoryCheckpointStore is used (no durability across restarts).
func New(strategistAgent StrategistAgent, executorAgent ExecutorAgent, auditorAgent AuditorAgent, segmenter RequestSegmenter, messageBus bus.Bus, checkpoint CheckpointStore, tel telemetry.Set, opts ...Option) *Orchestrator {
	if checkpoint == nil {
		checkpoint = NewInMemoryCheckpointStore()
	}
	o := &Orchestrator{
		strategist: strategistAgent, executor: executorAgent, auditor: auditorAgent,
		segmenter: segmenter, bus: messageBus, checkpoint: checkpoint, tel: tel,
		replanLimit: defaultReplanLimit, maxStepAttempts: defaultMaxStepAttempts,
		inputTimeout: defaultInputTimeout, soloTaskTurns: defaultSoloTaskTurns,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SegmentResult is one segment's outcome, returned in emission order from
// Run.
type SegmentResult struct {
	Segment segment.RequestSegment
	State   State
	Reply   string
	Plan    *plan.TaskPlan
	Results []plan.StepResult
	Err     error
}

// Run implements spec §4.9's main flow: segment the request, then dispatch
// each segment in emission order by its mode.
func (o *Orchestrator) Run(ctx context.Context, sessionID, request string, history []string) []SegmentResult {
	segments := o.segmenter.Split(ctx, request, history)
	session := newSession(sessionID)

	out := make([]SegmentResult, 0, len(segments))
	for _, seg := range segments {
		out = append(out, o.runSegment(ctx, session, seg, history))
	}
	return out
}

// runSegment dispatches a single segment by its profile's mode (spec §4.9
// step 2).
func (o *Orchestrator) runSegment(ctx context.Context, sess *Session, seg segment.RequestSegment, history []string) SegmentResult {
	switch seg.Profile.Mode {
	case modeprofile.ModeChat, modeprofile.ModeDeepChat:
		return o.runChat(ctx, sess, seg, history)
	case modeprofile.ModeSoloTask:
		return o.runSoloTask(ctx, sess, seg, history)
	case modeprofile.ModeTask, modeprofile.ModeDevelopment:
		return o.runTrinity(ctx, sess, seg, history)
	default:
		return o.runChat(ctx, sess, seg, history)
	}
}

// runChat implements the chat|deep_chat dispatch: a single Strategist call,
// no planning, no tool access (spec §4.9 step 2 "chat | deep_chat: call
// Strategist directly; stream reply").
func (o *Orchestrator) runChat(ctx context.Context, sess *Session, seg segment.RequestSegment, history []string) SegmentResult {
	blob, err := o.strategist.AnalyzeRequest(ctx, seg.Text, sess.ctx.Snapshot(), history)
	if err != nil {
		return SegmentResult{Segment: seg, State: StateFailed, Err: err}
	}
	return SegmentResult{Segment: seg, State: StateIdle, Reply: blob.VoiceResponse}
}

// runSoloTask implements the solo_task dispatch: the Strategist plans a
// short sequence of steps and the Executor runs each one directly, with no
// Auditor verification (the mode profile carries ToolsAccess=limited,
// TrinityRequired=false), bounded to soloTaskTurns total steps (spec §4.9
// step 2 "solo_task: Strategist with tool access, multi-turn until no tool
// call or turn limit").
func (o *Orchestrator) runSoloTask(ctx context.Context, sess *Session, seg segment.RequestSegment, history []string) SegmentResult {
	blob, err := o.strategist.AnalyzeRequest(ctx, seg.Text, sess.ctx.Snapshot(), history)
	if err != nil {
		return SegmentResult{Segment: seg, State: StateFailed, Err: err}
	}
	taskPlan, err := o.strategist.CreatePlan(ctx, blob, "")
	if err != nil {
		return SegmentResult{Segment: seg, State: StateFailed, Err: err}
	}

	steps := taskPlan.Steps
	if len(steps) > o.soloTaskTurns {
		steps = steps[:o.soloTaskTurns]
	}

	var results []plan.StepResult
	for _, step := range steps {
		outcome := o.executor.ExecuteStep(ctx, executor.Request{
			SessionID: sess.id, Step: step, Attempt: 1, Goal: taskPlan.Goal, History: history, Ctx: sess.ctx,
		})
		if outcome.Tag != plan.TagSuccess || outcome.Result == nil {
			break
		}
		results = append(results, *outcome.Result)
	}
	return SegmentResult{Segment: seg, State: StateIdle, Plan: &taskPlan, Results: results}
}

// describeOutcome renders a plan.Outcome's failure detail for logging and
// for rejection-report text, independent of which Tag it carries.
func describeOutcome(o plan.Outcome) string {
	switch o.Tag {
	case plan.TagFailure:
		return fmt.Sprintf("%s: %s", o.FailKind, o.Detail)
	case plan.TagNeedInput:
		return o.Prompt
	case plan.TagProactiveHelp:
		return o.Question
	default:
		return ""
	}
}
