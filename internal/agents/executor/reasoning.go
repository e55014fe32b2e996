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

// proposedAction is the reasoning pass's {tool, args, server} triple,
// matching the step's own Args/Tool/Realm vocabulary so normalize can
// merge them without a translation layer.
type proposedAction struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Server string         `json:"server"`
}

// reasoningResponse is the Executor's "internal monologue" (spec §4.7
// step 6): a thought, a proposed tool call, a voice message for the user,
// and an optional question back to the Strategist when the Executor is
// stuck and needs planning help rather than a tool result.
type reasoningResponse struct {
	Thought         string         `json:"thought"`
	ProposedAction  proposedAction `json:"proposed_action"`
	VoiceMessage    string         `json:"voice_message"`
	QuestionToAtlas string         `json:"question_to_atlas"`
}

// fastPathServers are tool servers trivial enough that a read-only,
// schema-complete call skips the reasoning pass entirely (spec §4.7 step 5).
var fastPathServers = map[string]struct{}{
	"filesystem": {}, "websearch": {},
}

var readOnlyVerbs = map[string]struct{}{
	"read": {}, "list": {}, "search": {}, "find": {}, "view": {}, "get": {},
}

// isFastPath reports whether step can skip reasoning: it already names a
// tool and server, its leading verb is read-only, and the server is one of
// the trivial fast-path servers.
func isFastPath(step plan.Step) bool {
	if step.Tool == "" || step.Realm == "" {
		return false
	}
	if _, trivial := fastPathServers[step.Realm]; !trivial {
		return false
	}
	fields := strings.Fields(step.Action)
	if len(fields) == 0 {
		return false
	}
	_, ok := readOnlyVerbs[strings.ToLower(fields[0])]
	return ok
}

// reason implements sub-phase 6: ask the LLM for an internal monologue and
// a proposed tool call. The caller checks QuestionToAtlas first.
func (e *Executor) reason(ctx context.Context, step plan.Step, rejectionReport string) (reasoningResponse, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "STEP ACTION:\n%s\n\nEXPECTED RESULT:\n%s\n", step.Action, step.ExpectedResult)
	if step.Tool != "" {
		fmt.Fprintf(&b, "\nPLANNED TOOL: %s on %s\n", step.Tool, step.Realm)
	}
	if rejectionReport != "" {
		fmt.Fprintf(&b, "\nLAST REJECTION:\n%s\n", rejectionReport)
	}

	raw, err := llm.Complete(ctx, e.client, llm.CompletionRequest{
		SystemPrompt: `You are the execution half of a task-running system.
Produce an internal monologue before acting. Return strict JSON:
{"thought":"...","proposed_action":{"tool":"","args":{},"server":""},
"voice_message":"...","question_to_atlas":""}
question_to_atlas is only set when you are stuck and need planning help
instead of acting; in that case proposed_action may be empty.`,
		UserPrompt:  b.String(),
		ModelClass:  model.ModelClassDefault,
		Temperature: 0.2,
	})
	if err != nil {
		return reasoningResponse{}, err
	}

	var resp reasoningResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return reasoningResponse{}, err
	}
	return resp, nil
}

// normalize implements sub-phase 7: merge the proposed call with the
// step's own planned tool/server when the proposal omitted one, inject
// step_id and the last-known process id, and apply any vision-located
// coordinates, removing the args they make incompatible (a previously
// planned "click by selector" arg is dropped once coordinates are known).
func (e *Executor) normalize(step plan.Step, action proposedAction) proposedAction {
	if action.Tool == "" {
		action.Tool = step.Tool
	}
	if action.Server == "" {
		action.Server = step.Realm
	}
	action.Args = e.normalizeArgs(step.ID, action.Args)

	if e.pendingVisionCoords != nil && e.pendingVisionCoords.Found {
		action.Args["x"] = e.pendingVisionCoords.X
		action.Args["y"] = e.pendingVisionCoords.Y
		delete(action.Args, "selector")
		e.pendingVisionCoords = nil
	}
	return action
}
