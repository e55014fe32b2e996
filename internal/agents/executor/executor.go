// Package executor implements the Executor (Agent T): the Trinity member
// that actually runs a plan step, including its bounded self-repair
// ("reflexion") loop (spec §4.7).
package executor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/dispatch"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// Dispatcher is the subset of *dispatch.Dispatcher the Executor needs,
// narrowed so tests can substitute a fake without standing up real tool
// servers.
type Dispatcher interface {
	ResolveAndDispatch(ctx context.Context, tool string, args map[string]any, explicitServer string) dispatch.Result
}

// FeedbackSource fetches the last Auditor rejection report for a step, used
// by sub-phase 4 ("fetch Auditor feedback") on retry attempts.
type FeedbackSource interface {
	LastRejection(ctx context.Context, stepID string) (string, bool)
}

// maxReflexionFixes bounds the technical reflexion loop (spec §4.7 step 10:
// "bounded, max 3 fixes").
const maxReflexionFixes = 3

// transientErrorMarkers are substrings that mark a tool error as
// network-class and therefore worth a linear-backoff retry before engaging
// deeper reasoning (spec §4.7 step 10).
var transientErrorMarkers = []string{
	"timeout", "connection refused", "broken pipe", "rate limit",
}

// dataIntensiveTools mirrors internal/dispatch's own empty-proof table: a
// tool whose success carries empty output is suspect for these names (spec
// §4.7 step 9).
var dataIntensiveTools = map[string]struct{}{
	"read_file": {}, "search": {}, "geocode": {}, "list_directory": {},
	"fetch": {}, "query": {},
}

// pureInfoVerbs are action verbs the consent gate treats as safe to run
// without an explicit user response, even when requires_consent is set
// (spec §4.7 step 1: "action is not a pure information-gathering verb").
var pureInfoVerbs = map[string]struct{}{
	"search": {}, "find": {}, "list": {}, "read": {}, "view": {}, "check": {},
}

// Executor runs one plan.Step at a time through execute_step's eleven
// ordered sub-phases.
type Executor struct {
	client     model.Client
	dispatcher Dispatcher
	bus        bus.Bus
	vision     VisionLocator
	screen     ScreenCapture
	codeFix    CodeAnalyzer
	feedback   FeedbackSource
	tel        telemetry.Set

	lastProcessID       string
	pendingVisionCoords *VisionLocation
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithVision wires a vision pre-check collaborator.
func WithVision(capture ScreenCapture, locator VisionLocator) Option {
	return func(e *Executor) { e.screen = capture; e.vision = locator }
}

// WithCodeAnalyzer wires the self-heal collaborator used by the reflexion
// loop's final fix attempt.
func WithCodeAnalyzer(c CodeAnalyzer) Option {
	return func(e *Executor) { e.codeFix = c }
}

// WithFeedbackSource wires the Auditor-rejection-report lookup used on
// retry attempts.
func WithFeedbackSource(f FeedbackSource) Option {
	return func(e *Executor) { e.feedback = f }
}

// New constructs an Executor. client drives reasoning/reflexion LLM calls;
// dispatcher issues tool calls; messageBus carries help-requests to the
// Strategist.
func New(client model.Client, dispatcher Dispatcher, messageBus bus.Bus, tel telemetry.Set, opts ...Option) *Executor {
	e := &Executor{client: client, dispatcher: dispatcher, bus: messageBus, tel: tel}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request bundles execute_step's inputs beyond the step itself: the
// session's goal chain, recent history, any previously provided
// user/bus response, and the shared session context.
type Request struct {
	SessionID        string
	Step             plan.Step
	Attempt          int
	Goal             string
	History          []string
	ProvidedResponse string
	Ctx              *sharedctx.SharedContext
}

// ExecuteStep implements execute_step(step, attempt) -> StepResult (spec
// §4.7), returning a plan.Outcome so callers switch on a closed tag instead
// of catching an exception.
func (e *Executor) ExecuteStep(ctx context.Context, req Request) plan.Outcome {
	// Sub-phase 1: consent gate.
	if outcome, stop := e.consentGate(req); stop {
		return outcome
	}

	action := req.Step

	// Sub-phase 2: goal-alignment validation (first attempt only).
	if req.Attempt == 1 && req.Goal != "" {
		action = e.validateGoalAlignment(ctx, req.Goal, action)
	}

	// Sub-phase 3: vision pre-check.
	if action.RequiresVision && req.Attempt <= 2 && e.vision != nil && e.screen != nil {
		if outcome, stop := e.visionPreCheck(ctx, action); stop {
			return outcome
		}
	}

	// Sub-phase 4: fetch Auditor feedback on retry.
	var rejectionReport string
	if req.Attempt > 1 && e.feedback != nil {
		rejectionReport, _ = e.feedback.LastRejection(ctx, action.ID)
	}

	return e.runWithReflexion(ctx, req, action, rejectionReport)
}

// consentGate implements sub-phase 1: if the step requires consent or user
// input and no response has been provided, and the action is not a pure
// information-gathering verb, the Executor returns immediately so the
// orchestrator can surface a prompt.
func (e *Executor) consentGate(req Request) (plan.Outcome, bool) {
	if !req.Step.RequiresConsent && !req.Step.RequiresUserInput {
		return plan.Outcome{}, false
	}
	if req.ProvidedResponse != "" {
		return plan.Outcome{}, false
	}
	if isPureInfoAction(req.Step.Action) {
		return plan.Outcome{}, false
	}
	return plan.NeedInput(consentPrompt(req.Step)), true
}

func isPureInfoAction(action string) bool {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return false
	}
	_, ok := pureInfoVerbs[strings.ToLower(fields[0])]
	return ok
}

func consentPrompt(step plan.Step) string {
	return "Confirm: " + step.Action
}

// normalizeArgs applies sub-phase 7: inject the last-known process id and
// the owning step_id into the resolved call's arguments, so Dispatcher
// normalizers and audit trails can correlate calls back to a step without
// the LLM needing to echo them.
func (e *Executor) normalizeArgs(stepID string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+2)
	for k, v := range args {
		out[k] = v
	}
	out["step_id"] = stepID
	if e.lastProcessID != "" {
		if _, present := out["pid"]; !present {
			out["pid"] = e.lastProcessID
		}
	}
	return out
}

// recordProcessID remembers a pid reported back in a tool result, for
// injection into the next step's args (spec §4.7 step 7).
func (e *Executor) recordProcessID(result string) {
	if pid, ok := extractPID(result); ok {
		e.lastProcessID = pid
	}
}

func extractPID(result string) (string, bool) {
	const marker = "pid="
	idx := strings.Index(result, marker)
	if idx < 0 {
		return "", false
	}
	rest := result[idx+len(marker):]
	end := len(rest)
	for i, r := range rest {
		if r < '0' || r > '9' {
			end = i
			break
		}
	}
	if end == 0 {
		return "", false
	}
	pid := rest[:end]
	if _, err := strconv.Atoi(pid); err != nil {
		return "", false
	}
	return pid, true
}

// isDataIntensive reports whether tool is one of the tools sub-phase 9's
// "empty proof" detector applies to.
func isDataIntensive(tool string) bool {
	_, ok := dataIntensiveTools[tool]
	return ok
}

// isTransientError reports whether errText matches one of the
// network-class error markers the reflexion loop retries with backoff
// instead of engaging deeper reasoning.
func isTransientError(errText string) bool {
	lower := strings.ToLower(errText)
	for _, marker := range transientErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// backoff is the linear backoff schedule for transient-error retries.
func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 250 * time.Millisecond
}
