package workflow_test

import (
	"testing"

	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two queries sharing one URL: that entity lands in the intersection with
// confidence 0.5, the leftovers split into per-query unique buckets.
func TestConvergentSearchIntersection(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)

	var created []string
	client.CreateWebsetFunc = func(req upstream.CreateWebsetRequest) (*upstream.Webset, error) {
		id := "ws_" + req.Query
		created = append(created, id)
		ws := &upstream.Webset{ID: id, Status: upstream.WebsetIdle}
		client.Websets[id] = ws
		return ws, nil
	}
	client.Items["ws_q1"] = []upstream.Item{{ID: "1", URL: "a"}, {ID: "2", URL: "b"}}
	client.Items["ws_q2"] = []upstream.Item{{ID: "3", URL: "a"}, {ID: "4", URL: "c"}}

	task, ctx, err := store.Create(workflow.ConvergentSearchWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{
		"queries": []string{"q1", "q2"},
		"entity":  map[string]any{"type": "company"},
	}
	result, err := workflow.ConvergentSearch(ctx, task.ID, args, client, store)
	require.NoError(t, err)

	cr := result.(workflow.ConvergentSearchResult)
	require.Len(t, cr.Intersection, 1)
	assert.Equal(t, "a", cr.Intersection[0].URL)
	assert.Equal(t, 0.5, cr.Intersection[0].Confidence)

	require.Len(t, cr.Unique[0], 1)
	assert.Equal(t, "b", cr.Unique[0][0].URL)
	require.Len(t, cr.Unique[1], 1)
	assert.Equal(t, "c", cr.Unique[1][0].URL)

	assert.Equal(t, 1, cr.OverlapMatrix[0][1])
	assert.Equal(t, 1, cr.OverlapMatrix[1][0])
}

func TestConvergentSearchRejectsTooFewQueries(t *testing.T) {
	client := newMockClient()
	store := newTestTaskStore(t)
	task, ctx, err := store.Create(workflow.ConvergentSearchWorkflowType, nil)
	require.NoError(t, err)

	args := map[string]any{"queries": []string{"only-one"}, "entity": map[string]any{"type": "company"}}
	_, err = workflow.ConvergentSearch(ctx, task.ID, args, client, store)
	require.Error(t, err)
}
