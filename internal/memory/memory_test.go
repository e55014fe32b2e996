package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRecallNewestFirst(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	require.NoError(t, m.Remember(ctx, TaskSummary{TaskID: "1", Goal: "deploy the api"}))
	require.NoError(t, m.Remember(ctx, TaskSummary{TaskID: "2", Goal: "deploy the worker"}))

	out, err := m.Recall(ctx, "deploy", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].TaskID, "most recent summary returned first")
}

func TestInMemoryRecallFiltersByGoalSubstring(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	require.NoError(t, m.Remember(ctx, TaskSummary{TaskID: "1", Goal: "deploy the api"}))
	require.NoError(t, m.Remember(ctx, TaskSummary{TaskID: "2", Goal: "write documentation"}))

	out, err := m.Recall(ctx, "deploy", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].TaskID)
}

func TestInMemoryRecallRespectsLimit(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Remember(ctx, TaskSummary{TaskID: "x", Goal: "deploy"}))
	}
	out, err := m.Recall(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestInMemoryWriteRejectionRecorded(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	require.NoError(t, m.WriteRejection(ctx, Rejection{StepID: "step-1", Reason: "blocked"}))
	require.Len(t, m.Rejections(), 1)
	assert.Equal(t, "step-1", m.Rejections()[0].StepID)
}
