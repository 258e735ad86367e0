package workflow_test

import (
	"testing"

	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The two evidence searches run sequentially, each against its own webset,
// and the optional synthesis step issues exactly one research call whose
// prompt is built from both item sets.
func TestAdversarialVerifySynthesis(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	client.CreateWebsetFunc = func(req upstream.CreateWebsetRequest) (*upstream.Webset, error) {
		id := "ws_support"
		if req.Query == "evidence against: the claim" {
			id = "ws_disconfirm"
		}
		ws := &upstream.Webset{ID: id, Status: upstream.WebsetIdle}
		client.Websets[id] = ws
		return ws, nil
	}
	client.Items["ws_support"] = []upstream.Item{
		{ID: "s1", URL: "https://pro.test", Description: "supports it", Properties: map[string]any{"article": map[string]any{"title": "Pro"}}},
	}
	client.Items["ws_disconfirm"] = []upstream.Item{
		{ID: "d1", URL: "https://con.test", Description: "refutes it", Properties: map[string]any{"article": map[string]any{"title": "Con"}}},
	}

	var prompts []string
	client.CreateResearchFunc = func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
		prompts = append(prompts, req.Instructions)
		return &upstream.ResearchJob{ID: "res_verdict", Status: "completed", Result: "claim holds"}, nil
	}

	task, ctx, err := store.Create(workflow.AdversarialVerifyWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{
		"claim":      "the claim",
		"entity":     map[string]any{"type": "article"},
		"synthesize": true,
	}
	result, err := workflow.AdversarialVerify(ctx, task.ID, args, client, store)
	require.NoError(t, err)

	ar := result.(workflow.AdversarialVerifyResult)
	assert.Equal(t, "ws_support", ar.SupportingWebsetID)
	assert.Equal(t, "ws_disconfirm", ar.DisconfirmingWebsetID)
	require.Len(t, ar.Supporting.Data, 1)
	require.Len(t, ar.Disconfirming.Data, 1)

	require.NotNil(t, ar.Synthesis)
	assert.Equal(t, "res_verdict", ar.Synthesis.ResearchID)
	assert.Equal(t, "claim holds", ar.Synthesis.Text)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Claim: the claim")
	assert.Contains(t, prompts[0], "Pro")
	assert.Contains(t, prompts[0], "Con")
}

func TestAdversarialVerifySkipsSynthesisByDefault(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	client.CreateWebsetFunc = func(req upstream.CreateWebsetRequest) (*upstream.Webset, error) {
		ws := &upstream.Webset{ID: "ws_" + req.Query, Status: upstream.WebsetIdle}
		client.Websets[ws.ID] = ws
		return ws, nil
	}
	researchCalls := 0
	client.CreateResearchFunc = func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
		researchCalls++
		return &upstream.ResearchJob{ID: "res_1", Status: "completed"}, nil
	}

	task, ctx, err := store.Create(workflow.AdversarialVerifyWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{"claim": "x", "entity": map[string]any{"type": "company"}}
	result, err := workflow.AdversarialVerify(ctx, task.ID, args, client, store)
	require.NoError(t, err)

	ar := result.(workflow.AdversarialVerifyResult)
	assert.Nil(t, ar.Synthesis)
	assert.Zero(t, researchCalls)
}
