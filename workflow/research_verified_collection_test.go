package workflow_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One failing per-item research call lands on that item's record and never
// fails the task; items past researchLimit stay unresearched.
func TestVerifiedCollectionIsolatesResearchFailures(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	ws := &upstream.Webset{ID: "ws_vc", Status: upstream.WebsetIdle}
	client.Websets["ws_vc"] = ws
	client.CreateWebsetFunc = func(req upstream.CreateWebsetRequest) (*upstream.Webset, error) { return ws, nil }
	client.Items["ws_vc"] = []upstream.Item{
		{ID: "i1", URL: "https://one.test", Description: "first", Properties: map[string]any{"company": map[string]any{"name": "One"}}},
		{ID: "i2", URL: "https://two.test", Description: "second", Properties: map[string]any{"company": map[string]any{"name": "Two"}}},
		{ID: "i3", URL: "https://three.test", Description: "third", Properties: map[string]any{"company": map[string]any{"name": "Three"}}},
	}

	var mu sync.Mutex
	var prompts []string
	client.CreateResearchFunc = func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
		mu.Lock()
		prompts = append(prompts, req.Instructions)
		mu.Unlock()
		if strings.Contains(req.Instructions, "Two") {
			return nil, fmt.Errorf("upstream returned status 500")
		}
		return &upstream.ResearchJob{ID: "res_ok", Status: "completed", Result: "verified"}, nil
	}
	client.GetResearchFunc = func(id string) (*upstream.ResearchJob, error) {
		return &upstream.ResearchJob{ID: id, Status: "completed", Result: "verified"}, nil
	}

	task, ctx, err := store.Create(workflow.VerifiedCollectionWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{
		"query":          "x",
		"entity":         map[string]any{"type": "company"},
		"researchLimit":  2,
		"promptTemplate": "verify {{name}} at {{url}}: {{description}}",
	}
	result, err := workflow.VerifiedCollection(ctx, task.ID, args, client, store)
	require.NoError(t, err)

	vr := result.(workflow.VerifiedCollectionResult)
	require.Len(t, vr.Items, 3)
	assert.Equal(t, 3, vr.Total)
	assert.Equal(t, 2, vr.Researched)

	require.NotNil(t, vr.Items[0].Research)
	assert.Equal(t, "verified", vr.Items[0].Research.Result)
	require.NotNil(t, vr.Items[1].Research)
	assert.NotEmpty(t, vr.Items[1].Research.Error)
	assert.Empty(t, vr.Items[1].Research.Result)
	assert.Nil(t, vr.Items[2].Research)

	require.Len(t, prompts, 2)
	for _, p := range prompts {
		assert.Contains(t, p, "verify ")
		assert.NotContains(t, p, "{{")
	}
	assert.Contains(t, strings.Join(prompts, "\n"), "verify One at https://one.test: first")
}

func TestVerifiedCollectionRequiresPromptTemplate(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)
	task, ctx, err := store.Create(workflow.VerifiedCollectionWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{"query": "x", "entity": map[string]any{"type": "company"}}
	_, err = workflow.VerifiedCollection(ctx, task.ID, args, client, store)
	require.Error(t, err)
}
