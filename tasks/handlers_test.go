package tasks_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartograph-dev/cartograph/tasks"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
)

// stubClient is a minimal upstream.Client for dispatcher-level tests; the
// workflow behavior itself is covered under package workflow.
type stubClient struct {
	mu      sync.Mutex
	websets map[string]*upstream.Webset
}

func newStubClient() *stubClient {
	return &stubClient{websets: map[string]*upstream.Webset{"ws_1": {ID: "ws_1", Status: upstream.WebsetIdle}}}
}

func (c *stubClient) CreateWebset(_ context.Context, req upstream.CreateWebsetRequest) (*upstream.Webset, error) {
	ws := &upstream.Webset{ID: "ws_new", Status: upstream.WebsetIdle}
	return ws, nil
}
func (c *stubClient) GetWebset(_ context.Context, id string) (*upstream.Webset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws, ok := c.websets[id]
	if !ok {
		return nil, fmt.Errorf("no such webset %s", id)
	}
	cp := *ws
	return &cp, nil
}
func (c *stubClient) CancelWebset(_ context.Context, id string) error { return nil }
func (c *stubClient) DeleteWebset(_ context.Context, id string) error { return nil }
func (c *stubClient) ListItems(_ context.Context, websetID, cursor string, limit int) (*upstream.ItemPage, error) {
	return &upstream.ItemPage{Items: []upstream.Item{{ID: "i1", URL: "https://a.test", Description: "A"}}}, nil
}
func (c *stubClient) CreateMonitor(_ context.Context, websetID, cron, timezone string) (*upstream.Monitor, error) {
	return &upstream.Monitor{ID: "mon_1", Cron: cron, Timezone: timezone}, nil
}
func (c *stubClient) CreateResearch(_ context.Context, req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
	return &upstream.ResearchJob{ID: "res_1", Status: "completed"}, nil
}
func (c *stubClient) GetResearch(_ context.Context, id string) (*upstream.ResearchJob, error) {
	return &upstream.ResearchJob{ID: id, Status: "completed"}, nil
}

func newTestHandlers(t *testing.T) *tasks.Handlers {
	t.Helper()
	store := taskstore.New(taskstore.Options{SweepInterval: -1})
	t.Cleanup(store.Close)
	client := newStubClient()
	scheduler := workflow.NewScheduler(store, workflow.NewDefaultRegistry(), client, nil)
	return tasks.NewHandlers(store, scheduler, client)
}

func TestCreateRejectsMissingType(t *testing.T) {
	h := newTestHandlers(t)
	_, err := h.Create(map[string]any{"query": "x"})
	require.Error(t, err)
}

func TestCreateGetCancelLifecycle(t *testing.T) {
	h := newTestHandlers(t)

	created, err := h.Create(map[string]any{
		"type":   workflow.HarvestWorkflowType,
		"query":  "AI infra startups",
		"entity": map[string]any{"type": "company"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.TaskID)

	got, err := h.Get(created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, workflow.HarvestWorkflowType, got.Type)

	cancel := h.Cancel(created.TaskID)
	assert.True(t, cancel.Cancelled)

	result, err := h.Result(created.TaskID)
	require.NoError(t, err)
	_ = result // either PendingResult or a final result depending on scheduling timing

	list := h.List("")
	assert.NotEmpty(t, list)
}

func TestListItemsAppliesProjection(t *testing.T) {
	h := newTestHandlers(t)
	env, err := h.ListItems("ws_1", "", 10)
	require.NoError(t, err)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "A", env.Data[0].Description)
}

func TestGetWebsetReturnsRawForm(t *testing.T) {
	h := newTestHandlers(t)
	ws, err := h.GetWebset("ws_1")
	require.NoError(t, err)
	assert.Equal(t, "ws_1", ws.ID)
}
