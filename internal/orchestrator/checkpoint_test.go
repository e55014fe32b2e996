package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trinity.dev/orchestrator/internal/plan"
)

func TestInMemoryCheckpointStoreRoundTrips(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Checkpoint{
		SessionID: "session-1", TaskID: "task-1", State: StateExecuting,
		Plan: plan.TaskPlan{ID: "task-1", Goal: "deploy the worker"}, NextStepIndex: 2,
	}))

	cp, found, err := store.Load(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "task-1", cp.TaskID)
	assert.Equal(t, StateExecuting, cp.State)
	assert.Equal(t, 2, cp.NextStepIndex)
	assert.False(t, cp.UpdatedAt.IsZero(), "Save should stamp UpdatedAt")
}

func TestInMemoryCheckpointStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	_, found, err := store.Load(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCheckpointStoreSaveCopiesResultsSlice(t *testing.T) {
	store := NewInMemoryCheckpointStore()
	ctx := context.Background()
	results := []plan.StepResult{{StepID: "s1", Success: true}}

	require.NoError(t, store.Save(ctx, Checkpoint{SessionID: "session-2", Results: results}))
	results[0].Success = false // mutate the caller's slice after Save

	cp, found, err := store.Load(ctx, "session-2")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cp.Results, 1)
	assert.True(t, cp.Results[0].Success, "stored checkpoint must not alias the caller's results slice")
}
