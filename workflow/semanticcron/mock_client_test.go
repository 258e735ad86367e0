package semanticcron_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/cartograph-dev/cartograph/upstream"
)

// mockClient is a scriptable upstream.Client for semanticcron's
// black-box tests, mirroring package workflow's test double.
type mockClient struct {
	mu sync.Mutex

	Websets map[string]*upstream.Webset
	Items   map[string][]upstream.Item

	CreateWebsetFunc func(req upstream.CreateWebsetRequest) (*upstream.Webset, error)

	Cancelled []string
	nextID    int
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
	ws := &upstream.Webset{ID: id, Status: upstream.WebsetIdle}
	m.Websets[id] = ws
	return ws, nil
}

func (m *mockClient) GetWebset(_ context.Context, id string) (*upstream.Webset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *mockClient) DeleteWebset(_ context.Context, id string) error { return nil }

func (m *mockClient) ListItems(_ context.Context, websetID, cursor string, limit int) (*upstream.ItemPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cursor != "" {
		return &upstream.ItemPage{}, nil
	}
	return &upstream.ItemPage{Items: m.Items[websetID]}, nil
}

func (m *mockClient) CreateMonitor(_ context.Context, websetID, cron, timezone string) (*upstream.Monitor, error) {
	return &upstream.Monitor{ID: "mon_1", Cron: cron, Timezone: timezone}, nil
}

func (m *mockClient) CreateResearch(_ context.Context, req upstream.CreateResearchRequest) (*upstream.ResearchJob, error) {
	return &upstream.ResearchJob{ID: "res_1", Status: "completed"}, nil
}

func (m *mockClient) GetResearch(_ context.Context, id string) (*upstream.ResearchJob, error) {
	return &upstream.ResearchJob{ID: id, Status: "completed"}, nil
}
