// Package tasks implements the dispatcher-facing operation set: task
// lifecycle operations (create/get/result/list/cancel) plus thin
// pass-through wrappers over the upstream primitives, every pass-through
// applying the projection boundary.
package tasks

import (
	"context"
	"time"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow"
)

// Handlers implements the dispatcher's operation set. It holds no
// connection-level state of its own; store, scheduler, and client are the
// only shared resources it touches.
type Handlers struct {
	store     *taskstore.Store
	scheduler *workflow.Scheduler
	client    upstream.Client
}

// NewHandlers constructs a Handlers bound to the given store, scheduler,
// and upstream client.
func NewHandlers(store *taskstore.Store, scheduler *workflow.Scheduler, client upstream.Client) *Handlers {
	return &Handlers{store: store, scheduler: scheduler, client: client}
}

// CreateResult is tasks.create's return shape.
type CreateResult struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// Create implements tasks.create: args must include a "type" key naming a
// registered workflow; every other key becomes that workflow's argument
// map. The task starts Pending and is flipped to Working by Launch before
// the workflow goroutine runs.
func (h *Handlers) Create(args map[string]any) (CreateResult, error) {
	wfType, _ := args["type"].(string)
	if wfType == "" {
		return CreateResult{}, taskerror.Validation("dispatch", "tasks.create requires a string \"type\"")
	}

	workflowArgs := make(map[string]any, len(args))
	for k, v := range args {
		if k == "type" {
			continue
		}
		workflowArgs[k] = v
	}

	task, taskCtx, err := h.store.Create(wfType, workflowArgs)
	if err != nil {
		return CreateResult{}, err
	}
	if err := h.scheduler.Launch(taskCtx, task.ID, wfType, workflowArgs); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{TaskID: task.ID, Status: string(task.Status)}, nil
}

// GetResult is tasks.get's return shape.
type GetResult struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Status    string             `json:"status"`
	Progress  taskstore.Progress `json:"progress"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Get implements tasks.get.
func (h *Handlers) Get(taskID string) (GetResult, error) {
	t, err := h.store.Get(taskID)
	if err != nil {
		return GetResult{}, err
	}
	return GetResult{
		ID:        t.ID,
		Type:      t.Type,
		Status:    string(t.Status),
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

// PendingResult is tasks.result's return shape for a task that has not yet
// reached a terminal state, or that reached Failed.
type PendingResult struct {
	Status string            `json:"status"`
	Error  *taskerror.Record `json:"error,omitempty"`
}

// Result implements tasks.result: it never blocks. A non-terminal task
// reports only its status; a failed task reports its status and error
// record; a completed (or cancelled) task returns its stored result
// verbatim, which may be nil for a cancelled task that never produced one.
func (h *Handlers) Result(taskID string) (any, error) {
	t, err := h.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !t.Status.Terminal() {
		return PendingResult{Status: string(t.Status)}, nil
	}
	if t.Status == taskstore.StatusFailed {
		return PendingResult{Status: string(t.Status), Error: t.Error}, nil
	}
	return t.Result, nil
}

// List implements tasks.list. An empty status returns every task;
// otherwise only tasks in that status are returned.
func (h *Handlers) List(status string) []taskstore.Summary {
	if status == "" {
		return h.store.List()
	}
	return h.store.List(taskstore.Status(status))
}

// CancelResult is tasks.cancel's return shape.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// Cancel implements tasks.cancel.
func (h *Handlers) Cancel(taskID string) CancelResult {
	return CancelResult{Cancelled: h.store.Cancel(taskID)}
}

// GetWebset implements the websets.get pass-through. Single-item get
// returns the raw upstream form rather than a projection.
func (h *Handlers) GetWebset(websetID string) (*upstream.Webset, error) {
	return h.client.GetWebset(context.Background(), websetID)
}

// CancelWebset implements the websets.cancel pass-through.
func (h *Handlers) CancelWebset(websetID string) error {
	return h.client.CancelWebset(context.Background(), websetID)
}

// DeleteWebset implements the websets.delete pass-through.
func (h *Handlers) DeleteWebset(websetID string) error {
	return h.client.DeleteWebset(context.Background(), websetID)
}

// ListItems implements the items.list pass-through, applying the bulk item
// projection envelope.
func (h *Handlers) ListItems(websetID, cursor string, limit int) (projection.Envelope, error) {
	ws, err := h.client.GetWebset(context.Background(), websetID)
	if err != nil {
		return projection.Envelope{}, taskerror.FromError("items.list", err)
	}
	page, err := h.client.ListItems(context.Background(), websetID, cursor, limit)
	if err != nil {
		return projection.Envelope{}, taskerror.FromError("items.list", err)
	}
	defs := make(map[string]upstream.EnrichmentDefinition, len(ws.Enrichments))
	for _, d := range ws.Enrichments {
		defs[d.ID] = d
	}
	return projection.ProjectItems(page.Items, defs), nil
}

// CreateMonitor implements the monitors.create pass-through.
func (h *Handlers) CreateMonitor(websetID, cron, timezone string) (*upstream.Monitor, error) {
	return h.client.CreateMonitor(context.Background(), websetID, cron, timezone)
}

// CreateResearch implements the research.create pass-through.
func (h *Handlers) CreateResearch(instructions string) (*upstream.ResearchJob, error) {
	return h.client.CreateResearch(context.Background(), upstream.CreateResearchRequest{Instructions: instructions})
}

// GetResearch implements the research.get pass-through.
func (h *Handlers) GetResearch(researchID string) (*upstream.ResearchJob, error) {
	return h.client.GetResearch(context.Background(), researchID)
}
