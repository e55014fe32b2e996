// Package plan defines the shared data model that flows between the
// Strategist, Executor, Auditor, and Orchestrator: task plans, step results,
// and verification verdicts. None of these types carry behavior beyond
// small invariant-enforcing constructors; the agents that produce and
// consume them live in internal/agents and internal/orchestrator.
package plan

import "time"

// Status is the lifecycle state of a TaskPlan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskPlan is the Strategist's output: an ordered sequence of steps toward a
// goal. The Orchestrator exclusively owns a plan and its results list once
// created; agents only ever receive borrowed snapshots.
type TaskPlan struct {
	ID        string         `json:"id"`
	Goal      string         `json:"goal"`
	Steps     []Step         `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	Status    Status         `json:"status"`
	Context   map[string]any `json:"context,omitempty"`
}

// Step is one unit of work within a TaskPlan.
//
// Realm names the target tool server (a synonym of "server" used in plan
// JSON, kept to match the domain vocabulary the agents and prompts use).
type Step struct {
	ID                string         `json:"id"`
	Action            string         `json:"action"`
	VoiceAction       string         `json:"voice_action"`
	ExpectedResult    string         `json:"expected_result"`
	Realm             string         `json:"realm"`
	Tool              string         `json:"tool"`
	Args              map[string]any `json:"args,omitempty"`
	RequiresConsent   bool           `json:"requires_consent,omitempty"`
	RequiresUserInput bool           `json:"requires_user_input,omitempty"`
	RequiresVision    bool           `json:"requires_vision,omitempty"`
}

// StepResult is the Executor's record of having run a Step.
type StepResult struct {
	StepID         string    `json:"step_id"`
	Success        bool      `json:"success"`
	Result         string    `json:"result"`
	Error          string    `json:"error,omitempty"`
	ToolCall       *ToolCall `json:"tool_call,omitempty"`
	Thought        string    `json:"thought,omitempty"`
	IsDeviation    bool      `json:"is_deviation"`
	DeviationInfo  string    `json:"deviation_info,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	VoiceMessage   string    `json:"voice_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToolCall is the resolved (server, tool, args) triple a StepResult reports
// having actually issued, after dispatcher resolution.
type ToolCall struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

// VerificationResult is the Auditor's verdict on a single step or on a whole
// plan (pre-execution simulation).
type VerificationResult struct {
	StepID             string    `json:"step_id"`
	Verified           bool      `json:"verified"`
	Confidence         float64   `json:"confidence"`
	Description        string    `json:"description"`
	Issues             []string  `json:"issues,omitempty"`
	VoiceMessage       string    `json:"voice_message"`
	FixedPlan          *TaskPlan `json:"fixed_plan,omitempty"`
	ScreenshotAnalyzed bool      `json:"screenshot_analyzed,omitempty"`
}

// NewTaskPlan constructs a TaskPlan in StatusPending with the given goal and
// steps, stamping CreatedAt to now.
func NewTaskPlan(id, goal string, steps []Step) TaskPlan {
	return TaskPlan{
		ID:        id,
		Goal:      goal,
		Steps:     steps,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
}

// StepByID returns the step with the given ID and whether it was found.
func (p TaskPlan) StepByID(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
