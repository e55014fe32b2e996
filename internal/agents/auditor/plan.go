package auditor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/runtime/agent/model"
)

const sequentialThinkingPrompt = `You are a sequential-thinking verification
engine. Reason step by step, then conclude with these exact labeled
sections, each on its own line:
VERDICT: ACCEPT or REJECT
CORE PROBLEMS:
- one per line, empty if none
STRATEGIC GAP ANALYSIS: free text
FEEDBACK TO ATLAS: free text addressed to the planning agent
SUMMARY_UKRAINIAN: one sentence in Ukrainian summarizing the verdict`

// designatedAuthorities names the users a Creator override (spec §4.8 step
// 3) recognizes. Kept as a small table rather than an LLM judgment call,
// matching the deterministic verb-table pattern used for voice-action
// standardization.
var designatedAuthorities = []string{"the creator", "my creator", "administrator override"}

var verdictLine = regexp.MustCompile(`(?i)VERDICT[:\s]+(ACCEPT|REJECT)`)

// sequentialThought is the sequential-thinking engine's parsed response to
// a plan-simulation prompt (spec §4.8 verify_plan step 1).
type sequentialThought struct {
	Verdict              string // ACCEPT or REJECT
	CoreProblems         []string
	StrategicGapAnalysis string
	FeedbackToAtlas      string
	SummaryUkrainian     string
}

// VerifyPlan simulates the plan against the user's request before any step
// executes (spec §4.8 verify_plan). When the simulation rejects the plan and
// fixIfRejected is true, an Architecture Override pass attempts to produce a
// corrected plan rather than simply failing.
func (a *Auditor) VerifyPlan(ctx context.Context, t plan.TaskPlan, userRequest string, fixIfRejected bool) plan.VerificationResult {
	thought, err := a.simulatePlan(ctx, t, userRequest)
	if err != nil {
		return plan.VerificationResult{Verified: false, Confidence: 0, Description: "plan simulation failed: " + err.Error()}
	}

	issues := compressCascadingFailures(thought.CoreProblems)
	verified := strings.EqualFold(thought.Verdict, "ACCEPT")

	if !verified && creatorOverrideApplies(userRequest, issues) {
		verified = true
		issues = nil
	}

	result := plan.VerificationResult{
		Verified:     verified,
		Confidence:   confidenceFor(verified),
		Description:  thought.StrategicGapAnalysis,
		Issues:       issues,
		VoiceMessage: thought.SummaryUkrainian,
	}

	if verified || !fixIfRejected {
		return result
	}

	fixed, err := a.architectureOverride(ctx, t, userRequest, thought)
	if err == nil && fixed != nil {
		result.FixedPlan = fixed
	}
	return result
}

// simulatePlan prompts the sequential-thinking engine with the plan and
// goal and parses its labeled sections (spec §4.8 verify_plan step 1).
func (a *Auditor) simulatePlan(ctx context.Context, t plan.TaskPlan, userRequest string) (sequentialThought, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUEST:\n%s\n\nPLAN GOAL: %s\n\nSTEPS:\n", userRequest, t.Goal)
	for i, s := range t.Steps {
		fmt.Fprintf(&b, "%d. %s (expects: %s)\n", i+1, s.Action, s.ExpectedResult)
	}

	raw, err := a.complete(ctx, "verify_plan.simulate", llm.CompletionRequest{
		SystemPrompt: sequentialThinkingPrompt,
		UserPrompt:   b.String(),
		ModelClass:   model.ModelClassHighReasoning,
		Temperature:  0.2,
	})
	if err != nil {
		return sequentialThought{}, err
	}
	return parseSequentialThought(raw), nil
}

// compressCascadingFailures collapses three or more downstream-blocked
// issues into a single summary line (spec §4.8 verify_plan step 2), leaving
// unrelated issues untouched.
func compressCascadingFailures(issues []string) []string {
	var blocked, other []string
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue), "blocked") || strings.Contains(strings.ToLower(issue), "downstream") {
			blocked = append(blocked, issue)
			continue
		}
		other = append(other, issue)
	}
	if len(blocked) >= 3 {
		return append(other, fmt.Sprintf("cascading failure: %d downstream steps blocked by an upstream issue", len(blocked)))
	}
	return append(other, blocked...)
}

// creatorOverrideApplies implements spec §4.8 verify_plan step 3: if the
// user request names a designated authority and every remaining issue reads
// as policy (no technical blocker terms), the verdict inverts to accept.
func creatorOverrideApplies(userRequest string, issues []string) bool {
	lower := strings.ToLower(userRequest)
	named := false
	for _, authority := range designatedAuthorities {
		if strings.Contains(lower, authority) {
			named = true
			break
		}
	}
	if !named {
		return false
	}
	for _, issue := range issues {
		if isTechnicalBlocker(issue) {
			return false
		}
	}
	return true
}

var technicalBlockerMarkers = []string{"error", "exception", "missing tool", "unreachable", "timeout", "crash"}

func isTechnicalBlocker(issue string) bool {
	lower := strings.ToLower(issue)
	for _, marker := range technicalBlockerMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// architectureOverride implements spec §4.8 verify_plan step 4: a second
// sequential-thinking pass asked to produce a corrected plan, parsing JSON
// out of the final raw thought while tolerating markdown code fences and a
// handful of known prefix lines the reasoning engine tends to emit first.
func (a *Auditor) architectureOverride(ctx context.Context, t plan.TaskPlan, userRequest string, thought sequentialThought) (*plan.TaskPlan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The following plan was rejected.\nUSER REQUEST:\n%s\nCORE PROBLEMS:\n", userRequest)
	for _, p := range thought.CoreProblems {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	fmt.Fprintf(&b, "FEEDBACK: %s\n\nPropose a corrected plan. Return ONLY a JSON object: "+
		`{"goal":"","steps":[{"action":"","expected_result":"","realm":"","tool":""}]}`, thought.FeedbackToAtlas)

	raw, err := a.complete(ctx, "verify_plan.architecture_override", llm.CompletionRequest{
		SystemPrompt: "You produce corrected task plans as strict JSON, nothing else.",
		UserPrompt:   b.String(),
		ModelClass:   model.ModelClassHighReasoning,
		Temperature:  0.3,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Goal  string `json:"goal"`
		Steps []struct {
			Action         string `json:"action"`
			ExpectedResult string `json:"expected_result"`
			Realm          string `json:"realm"`
			Tool           string `json:"tool"`
		} `json:"steps"`
	}
	cleaned := extractJSONObject(raw)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("architecture override produced no steps")
	}

	steps := make([]plan.Step, len(parsed.Steps))
	for i, s := range parsed.Steps {
		steps[i] = plan.Step{ID: t.ID + "-fix-" + strconv.Itoa(i+1), Action: s.Action, ExpectedResult: s.ExpectedResult, Realm: s.Realm, Tool: s.Tool}
	}
	fixed := plan.NewTaskPlan(t.ID, parsed.Goal, plan.StandardizeVoiceActions(steps))
	return &fixed, nil
}

// knownThoughtPrefixes are lines a sequential-thinking reply sometimes
// prepends before its final JSON block; extractJSONObject strips them along
// with markdown code fences before looking for the outermost braces.
var knownThoughtPrefixes = []string{"here is the corrected plan:", "corrected plan:", "here's the fix:"}

func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	lowerText := strings.ToLower(text)
	for _, prefix := range knownThoughtPrefixes {
		if strings.HasPrefix(lowerText, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// parseSequentialThought extracts the labeled sections (VERDICT, CORE
// PROBLEMS, STRATEGIC GAP ANALYSIS, FEEDBACK TO ATLAS, SUMMARY_UKRAINIAN)
// from a sequential-thinking reply. Missing sections default to zero
// values rather than erroring, since the engine's formatting is best-effort
// free text.
func parseSequentialThought(raw string) sequentialThought {
	t := sequentialThought{Verdict: "REJECT"}
	if m := verdictLine.FindStringSubmatch(raw); m != nil {
		t.Verdict = strings.ToUpper(m[1])
	}
	t.CoreProblems = extractSection(raw, planThoughtLabels, "CORE PROBLEMS")
	t.StrategicGapAnalysis = extractSectionText(raw, planThoughtLabels, "STRATEGIC GAP ANALYSIS")
	t.FeedbackToAtlas = extractSectionText(raw, planThoughtLabels, "FEEDBACK TO ATLAS")
	t.SummaryUkrainian = extractSectionText(raw, planThoughtLabels, "SUMMARY_UKRAINIAN")
	return t
}

// planThoughtLabels are the section headers a plan-simulation
// sequential-thinking reply uses; step-verdict replies use a distinct set
// (see stepVerdictLabels in step.go), so both callers pass their own label
// set to the shared section-extraction helpers rather than sharing one
// global table.
var planThoughtLabels = []string{"VERDICT", "CORE PROBLEMS", "STRATEGIC GAP ANALYSIS", "FEEDBACK TO ATLAS", "SUMMARY_UKRAINIAN"}

// extractSection returns each non-empty line under a labeled section as a
// separate issue, until the next known labeled section or end of text.
func extractSection(raw string, labels []string, label string) []string {
	body := sectionBody(raw, labels, label)
	if body == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func extractSectionText(raw string, labels []string, label string) string {
	return strings.TrimSpace(sectionBody(raw, labels, label))
}

// sectionBody returns the text following "LABEL" or "LABEL:" up to the next
// label in labels or end of string.
func sectionBody(raw string, labels []string, label string) string {
	idx := strings.Index(strings.ToUpper(raw), label)
	if idx == -1 {
		return ""
	}
	rest := raw[idx+len(label):]
	rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
	upperRest := strings.ToUpper(rest)
	end := len(rest)
	for _, other := range labels {
		if other == label {
			continue
		}
		if i := strings.Index(upperRest, other); i != -1 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(rest[:end])
}

func confidenceFor(verified bool) float64 {
	if verified {
		return 0.85
	}
	return 0.3
}
