package strategist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trinity.dev/orchestrator/internal/memory"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/internal/toolschema"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// queuedClient returns successive canned text replies in order, one per
// Complete call, so a single test can script a multi-phase operation like
// CreatePlan without a real provider.
type queuedClient struct {
	replies []string
	errs    []error
	calls   int
}

func (q *queuedClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	i := q.calls
	q.calls++
	var err error
	if i < len(q.errs) {
		err = q.errs[i]
	}
	if err != nil {
		return nil, err
	}
	text := ""
	if i < len(q.replies) {
		text = q.replies[i]
	}
	return &model.Response{Content: []model.Message{
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
	}}, nil
}

func (q *queuedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func testCatalog() *toolschema.Registry {
	return toolschema.New(map[string]toolschema.ToolSchema{
		"run_command": {Server: "terminal", Required: []string{"command"}},
	}, map[string]toolschema.ServerCatalogEntry{
		"terminal": {Name: "terminal", Tier: 1, Description: "shell access"},
	})
}

func TestAnalyzeRequestParsesLLMResponse(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"mode":"task","reason":"imperative","enriched_request":"open TextEdit","complexity":"low"}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	blob, err := s.AnalyzeRequest(context.Background(), "open TextEdit", sharedctx.Snapshot{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "task", blob.Mode)
	assert.Equal(t, modeprofile.ModeTask, blob.Profile.Mode)
}

func TestAnalyzeRequestFallsBackOnLLMError(t *testing.T) {
	client := &queuedClient{errs: []error{errors.New("boom")}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	blob, err := s.AnalyzeRequest(context.Background(), "open TextEdit now", sharedctx.Snapshot{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "task", blob.Mode, "imperative verb should route via keyword fallback")
}

func TestAnalyzeRequestResolvesRepeatLastTask(t *testing.T) {
	mem := memory.NewInMemory()
	require.NoError(t, mem.Remember(context.Background(), memory.TaskSummary{Goal: "deploy the worker service"}))

	client := &queuedClient{replies: []string{
		`{"mode":"task","reason":"repeat","enriched_request":"deploy the worker service","complexity":"medium"}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), mem, testCatalog(), telemetry.Noop())

	blob, err := s.AnalyzeRequest(context.Background(), "do that again", sharedctx.Snapshot{}, nil)
	require.NoError(t, err)
	assert.Contains(t, blob.EnrichedRequest, "deploy the worker service")
}

func TestCreatePlanParsesStepsAndStandardizesVoice(t *testing.T) {
	client := &queuedClient{replies: []string{
		// synthesize
		`{"goal":"open TextEdit","steps":[{"action":"open TextEdit","realm":"terminal","tool":"run_command","args":{"command":"open -a TextEdit"}}]}`,
		// self-audit
		`{"confidence":0.95,"issues":[]}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	blob := ClassificationBlob{Mode: "task", EnrichedRequest: "open TextEdit", Profile: modeprofile.StandardRegistry().Build(modeprofile.Analysis{Mode: "task"})}
	t_, err := s.CreatePlan(context.Background(), blob, "")
	require.NoError(t, err)
	require.Len(t, t_.Steps, 1)
	assert.NotEmpty(t, t_.Steps[0].VoiceAction)
}

func TestCreatePlanMetaPlanningFallbackOnZeroSteps(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"goal":"do the thing","steps":[]}`,  // synthesize: zero steps
		`more research needed`,                // research pass
		`{"goal":"do the thing","steps":[{"action":"run it","realm":"terminal","tool":"run_command","args":{"command":"echo hi"}}]}`, // retry synthesize
		`{"confidence":0.9,"issues":[]}`, // self-audit
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	blob := ClassificationBlob{Mode: "task", EnrichedRequest: "do the thing", Profile: modeprofile.StandardRegistry().Build(modeprofile.Analysis{Mode: "task"})}
	t_, err := s.CreatePlan(context.Background(), blob, "")
	require.NoError(t, err)
	require.Len(t, t_.Steps, 1)
}

func TestAssessPlanCritiqueDispute(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"action":"DISPUTE","argument":"the rejection misreads the plan","confidence":0.9}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	decision, err := s.AssessPlanCritique(context.Background(), plan.TaskPlan{}, "policy violation")
	require.NoError(t, err)
	assert.Equal(t, ActionDispute, decision.Action)
	assert.InDelta(t, 0.9, decision.Confidence, 0.001)
}

func TestHelpExecutorParsesFixToolCall(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"fix_tool":"run_command","fix_server":"terminal","fix_args":{"command":"ls"},"alternative":""}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	suggestion, err := s.HelpExecutor(context.Background(), "step-1", "tool failed", nil, "")
	require.NoError(t, err)
	require.NotNil(t, suggestion.FixToolCall)
	assert.Equal(t, "run_command", suggestion.FixToolCall.Tool)
}

type fakeArtifacts struct{ missing map[string]bool }

func (f fakeArtifacts) Exists(path string) bool { return !f.missing[path] }

func TestEvaluateExecutionArtifactOverrideForcesFailure(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"achieved":true,"quality_score":0.95,"should_remember":true,"final_report":"done"}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop(),
		WithArtifactChecker(fakeArtifacts{missing: map[string]bool{"/tmp/out/report.md": true}}))

	results := []plan.StepResult{{StepID: "s1", Success: true, Result: "wrote /tmp/out/report.md"}}
	eval, err := s.EvaluateExecution(context.Background(), "write a report", results)
	require.NoError(t, err)
	assert.False(t, eval.Achieved)
	assert.LessOrEqual(t, eval.QualityScore, 0.3)
}

func TestEvaluateExecutionNoOverrideWhenArtifactExists(t *testing.T) {
	client := &queuedClient{replies: []string{
		`{"achieved":true,"quality_score":0.9,"should_remember":false,"final_report":"done"}`,
	}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop(),
		WithArtifactChecker(fakeArtifacts{missing: map[string]bool{}}))

	results := []plan.StepResult{{StepID: "s1", Success: true, Result: "wrote /tmp/out/report.md"}}
	eval, err := s.EvaluateExecution(context.Background(), "write a report", results)
	require.NoError(t, err)
	assert.True(t, eval.Achieved)
	assert.InDelta(t, 0.9, eval.QualityScore, 0.001)
}

func TestDecideForUserReturnsTrimmedAnswer(t *testing.T) {
	client := &queuedClient{replies: []string{"  yes, proceed  "}}
	s := New(client, modeprofile.StandardRegistry(), nil, testCatalog(), telemetry.Noop())

	answer, err := s.DecideForUser(context.Background(), "proceed with deletion?", "user idle 20s")
	require.NoError(t, err)
	assert.Equal(t, "yes, proceed", answer)
}
