package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskPlanPending(t *testing.T) {
	p := NewTaskPlan("plan-1", "deploy the service", []Step{{ID: "s1"}})
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestStepByID(t *testing.T) {
	p := NewTaskPlan("plan-1", "goal", []Step{{ID: "a"}, {ID: "b"}})

	s, ok := p.StepByID("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.ID)

	_, ok = p.StepByID("missing")
	assert.False(t, ok)
}

func TestStandardizeVoiceActionsRewritesLatin(t *testing.T) {
	steps := []Step{
		{ID: "s1", Action: "open TextEdit", VoiceAction: "Opening TextEdit"},
		{ID: "s2", Action: "search for cats", VoiceAction: ""},
		{ID: "s3", Action: "list files", VoiceAction: "Переглядаю файли"},
	}

	out := StandardizeVoiceActions(steps)

	assert.False(t, containsLatin(out[0].VoiceAction), "latin voice action should be rewritten: %q", out[0].VoiceAction)
	assert.False(t, containsLatin(out[1].VoiceAction))
	assert.Equal(t, "Переглядаю файли", out[2].VoiceAction, "already-clean voice action left untouched")
}

func TestOutcomeConstructors(t *testing.T) {
	o := Success(StepResult{StepID: "s1", Success: true})
	assert.Equal(t, TagSuccess, o.Tag)
	require.NotNil(t, o.Result)

	o = NeedInput("which coffee?")
	assert.Equal(t, TagNeedInput, o.Tag)
	assert.Equal(t, "which coffee?", o.Prompt)

	o = ProactiveHelp("should I use curl or wget?")
	assert.Equal(t, TagProactiveHelp, o.Tag)

	o = Failure(KindBlocklisted, "rm -rf / blocked")
	assert.Equal(t, TagFailure, o.Tag)
	assert.Equal(t, KindBlocklisted, o.FailKind)
}
