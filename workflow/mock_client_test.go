package workflow_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/cartograph-dev/cartograph/upstream"
)

// mockClient is a scriptable upstream.Client used across workflow tests. It
// never makes network calls; callers configure behavior via the exported
// fields before invoking a workflow.
type mockClient struct {
	mu sync.Mutex

	// CreateWebsetFunc overrides webset creation. Defaults to returning a
	// new webset in WebsetRunning status with an incrementing id.
	CreateWebsetFunc func(req upstream.CreateWebsetRequest) (*upstream.Webset, error)
	// GetWebsetFunc overrides GetWebset. Defaults to looking up the stored
	// websets map.
	GetWebsetFunc func(id string) (*upstream.Webset, error)
	// ListItemsFunc overrides ListItems. Defaults to returning Items once
	// then an empty page.
	ListItemsFunc func(websetID, cursor string, limit int) (*upstream.ItemPage, error)
	// CreateResearchFunc overrides research dispatch.
	CreateResearchFunc func(req upstream.CreateResearchRequest) (*upstream.ResearchJob, error)
	// GetResearchFunc overrides research polling.
	GetResearchFunc func(id string) (*upstream.ResearchJob, error)

	Websets map[string]*upstream.Webset
	Items   map[string][]upstream.Item

	Cancelled []string
	Deleted   []string

	nextID int
}

func newMockClient() *mockClient {
	return &mockClient{Websets: map[string]*upstream.Webset{}, Items: map[string][]upstream.Item{}}
}

func (m *mockClient) CreateWebset(_ context.Context, req upstream.CreateWebsetRequest) (*upstream.Webset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateWebsetFunc != nil {
		return m.CreateWebsetFunc(req)
	}
	m.nextID++
	id := fmt.Sprintf("ws_%d", m.nextID)
	ws := &upstream.Webset{ID: id, Status: upstream.WebsetRunning, Searches: []upstream.Search{{ID: "s1", Query: req.Query}}}
	m.Websets[id] = ws
	return ws, nil
}

func (m *mockClient) GetWebset(_ context.Context, id string) (*upstream.Webset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetWebsetFunc != nil {
		return m.GetWebsetFunc(id)
	}
	ws, ok := m.Websets[id]
	if !ok {
		return nil, fmt.Errorf("no such webset %s", id)
	}
	cp := *ws
	return &cp, nil
}

func (m *mockClient) CancelWebset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, id)
	return nil
}

func (m *mockClient) DeleteWebset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, id)
	return nil
}

func (m *mockClient) ListItems(_ context.Context, websetID, cursor string, limit int) (*upstream.ItemPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListItemsFunc != nil {
		return m.ListItemsFunc(websetID, cursor, limit)
	}
	if cursor != "" {
		return &upstream.ItemPage{}, nil
	}
	items := m.Items[websetID]
	if limit > 0 && limit < len(items) {
		return &upstream.ItemPage{Items: items[:limit], NextCursor: "more"}, nil
	}
	return &upstream.ItemPage{Items: items}, nil
}

func (m *mockClient) CreateMonitor(_ context.Context, websetID string, cron, timezone string) (*upstream.Monitor, error) {
	return &upstream.Monitor{ID: "mon_1", Cron: cron, Timezone: timezone}, nil
}

func (m *mockClient) CreateResearch(_ context.Context, req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateResearchFunc != nil {
		return m.CreateResearchFunc(req)
	}
	return &upstream.ResearchJob{ID: "res_1", Status: "completed", Result: "synthesized"}, nil
}

func (m *mockClient) GetResearch(_ context.Context, id string) (*upstream.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetResearchFunc != nil {
		return m.GetResearchFunc(id)
	}
	return &upstream.ResearchJob{ID: id, Status: "completed", Result: "done"}, nil
}

// setIdle marks ws idle in the store; a helper test setups call after
// seeding items so PollUntilIdle returns immediately.
func (m *mockClient) setIdle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.Websets[id]; ok {
		ws.Status = upstream.WebsetIdle
	}
}
