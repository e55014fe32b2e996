package plan

// Kind distinguishes the cause of a Failure outcome so callers can route
// without inspecting error strings.
type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindUnknownTool  Kind = "unknown_tool"
	KindHallucinated Kind = "hallucinated"
	KindCompatibility Kind = "compatibility_error"
	KindTransient    Kind = "transient"
	KindToolError    Kind = "tool_error"
	KindBlocklisted  Kind = "blocklisted"
	KindFatal        Kind = "fatal"
)

// Outcome is the closed sum type the Executor returns instead of raising
// exceptions across the step boundary. Exactly one of the accessor-relevant
// fields is meaningful for a given Tag; callers switch on Tag.
//
//	Success       | NeedInput | ProactiveHelp | Deviation | Failure{Kind, Detail}
//
// This mirrors the "failed_step raises, orchestrator catches" pattern
// rewritten as a single matched value, so the Orchestrator's step loop never
// sees a raw panic or error from inside step execution.
type Outcome struct {
	Tag Tag

	Result *StepResult // set when Tag == TagSuccess or TagDeviation

	// NeedInput carries the prompt the orchestrator should surface to the
	// user when Tag == TagNeedInput.
	Prompt string

	// ProactiveHelp carries the Executor's question to the Strategist when
	// Tag == TagProactiveHelp.
	Question string

	// Failure detail, set when Tag == TagFailure.
	FailKind Kind
	Detail   string
}

// Tag identifies which variant of Outcome is populated.
type Tag int

const (
	TagSuccess Tag = iota
	TagNeedInput
	TagProactiveHelp
	TagDeviation
	TagFailure
)

// Success builds a successful Outcome wrapping the given StepResult.
func Success(r StepResult) Outcome { return Outcome{Tag: TagSuccess, Result: &r} }

// NeedInput builds an Outcome signaling the Executor needs a user-provided
// answer before it can proceed (the consent gate, spec §4.7 step 1).
func NeedInput(prompt string) Outcome { return Outcome{Tag: TagNeedInput, Prompt: prompt} }

// ProactiveHelp builds an Outcome signaling the Executor asked the
// Strategist a question instead of acting (spec §4.7 step 6,
// `question_to_atlas`).
func ProactiveHelp(question string) Outcome {
	return Outcome{Tag: TagProactiveHelp, Question: question}
}

// Deviation builds an Outcome where the Executor proposed a deliberate
// change to the plan vector; the wrapped StepResult carries IsDeviation=true
// and DeviationInfo.
func Deviation(r StepResult) Outcome { return Outcome{Tag: TagDeviation, Result: &r} }

// Failure builds an Outcome for a terminal step failure of the given Kind.
func Failure(kind Kind, detail string) Outcome {
	return Outcome{Tag: TagFailure, FailKind: kind, Detail: detail}
}
