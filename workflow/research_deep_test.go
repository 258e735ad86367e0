package workflow_test

import (
	"testing"

	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResearchDeepHappyPath(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	client.CreateResearchFunc = func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
		return &upstream.ResearchJob{ID: "res_42", Status: "pending"}, nil
	}
	client.GetResearchFunc = func(id string) (*upstream.ResearchJob, error) {
		return &upstream.ResearchJob{ID: id, Status: "completed", Result: "findings", Model: "deep-1"}, nil
	}

	task, ctx, err := store.Create(workflow.ResearchDeepWorkflowType, nil)
	require.NoError(t, err)

	result, err := workflow.ResearchDeep(ctx, task.ID, map[string]any{"instructions": "dig in"}, client, store)
	require.NoError(t, err)

	rr := result.(workflow.ResearchDeepResult)
	assert.Equal(t, "res_42", rr.ResearchID)
	assert.Equal(t, "completed", rr.Status)
	assert.Equal(t, "findings", rr.Result)
	assert.Equal(t, "deep-1", rr.Model)
	assert.False(t, rr.TimedOut)
}

// A job that never finishes inside the timeout budget completes the task
// with timedOut:true and the job's last-known status.
func TestResearchDeepTimeoutReturnsLastStatus(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	client.CreateResearchFunc = func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
		return &upstream.ResearchJob{ID: "res_slow", Status: "pending"}, nil
	}
	client.GetResearchFunc = func(id string) (*upstream.ResearchJob, error) {
		return &upstream.ResearchJob{ID: id, Status: "running"}, nil
	}

	task, ctx, err := store.Create(workflow.ResearchDeepWorkflowType, nil)
	require.NoError(t, err)

	result, err := workflow.ResearchDeep(ctx, task.ID, map[string]any{"instructions": "dig in", "timeout": 50}, client, store)
	require.NoError(t, err)

	rr := result.(workflow.ResearchDeepResult)
	assert.True(t, rr.TimedOut)
	assert.Equal(t, "running", rr.Status)
}

func TestResearchDeepRequiresInstructions(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)
	task, ctx, err := store.Create(workflow.ResearchDeepWorkflowType, nil)
	require.NoError(t, err)

	_, err = workflow.ResearchDeep(ctx, task.ID, map[string]any{}, client, store)
	require.Error(t, err)
}
