package workflow

import (
	"context"
	"time"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// HarvestWorkflowType is the registry key for lifecycle.harvest.
const HarvestWorkflowType = "lifecycle.harvest"

// DefaultHarvestCount is the item count assumed when args.Count is unset.
const DefaultHarvestCount = 10

// HarvestArgs is lifecycle.harvest's argument schema.
type HarvestArgs struct {
	Query       string             `json:"query" validate:"required"`
	Entity      HarvestEntity      `json:"entity" validate:"required"`
	Criteria    []string           `json:"criteria,omitempty"`
	Enrichments []HarvestEnrichArg `json:"enrichments,omitempty"`
	Count       int                `json:"count,omitempty"`
	TimeoutMs   int                `json:"timeout,omitempty"`
	Cleanup     bool               `json:"cleanup,omitempty"`
}

// HarvestEntity narrows the search to one entity type.
type HarvestEntity struct {
	Type string `json:"type" validate:"required"`
}

// HarvestEnrichArg describes one enrichment to attach at creation time.
type HarvestEnrichArg struct {
	Description string `json:"description" validate:"required"`
	Format      string `json:"format" validate:"required,oneof=number options text date email phone url"`
}

// HarvestResult is lifecycle.harvest's completed-task payload.
type HarvestResult struct {
	WebsetID        string                  `json:"websetId"`
	Items           projection.Envelope     `json:"items"`
	ItemCount       int                     `json:"itemCount"`
	SearchProgress  upstream.SearchProgress `json:"searchProgress"`
	EnrichmentCount int                     `json:"enrichmentCount"`
	DurationMs      int64                   `json:"duration"`
	Steps           []Step                  `json:"steps"`
	TimedOut        bool                    `json:"timedOut,omitempty"`
}

// Harvest implements lifecycle.harvest: create one webset, poll
// it to idle, collect up to 2x count items, optionally delete the webset,
// and return a projected result. It is the simplest workflow and the
// reference shape every other workflow in this package follows.
func Harvest(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args HarvestArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}

	tracker := NewStepTracker(store, taskID, 3)

	var ws *upstream.Webset
	if err := tracker.Run(ctx, "create", func(ctx context.Context) error {
		enrichReqs := make([]upstream.EnrichmentRequest, 0, len(args.Enrichments))
		for _, e := range args.Enrichments {
			enrichReqs = append(enrichReqs, upstream.EnrichmentRequest{Description: e.Description, Format: e.Format})
		}
		created, err := client.CreateWebset(ctx, upstream.CreateWebsetRequest{
			Query:       args.Query,
			Entity:      upstream.EntitySpec{Type: args.Entity.Type},
			Criteria:    args.Criteria,
			Enrichments: enrichReqs,
			Count:       args.Count,
		})
		if err != nil {
			return taskerror.FromError("create", err)
		}
		ws = created
		return nil
	}); err != nil {
		return nil, err
	}

	if Cancelled(ctx) {
		_ = client.CancelWebset(context.Background(), ws.ID)
		return nil, nil
	}

	cap := ItemCap(args.Count, DefaultHarvestCount)
	var poll PollResult
	if err := tracker.Run(ctx, "poll", func(ctx context.Context) error {
		deadline := time.Duration(args.TimeoutMs) * time.Millisecond
		r, err := PollUntilIdle(ctx, client, tracker, ws.ID, "poll", PollOptions{Deadline: deadline})
		if err != nil {
			return err
		}
		poll = r
		return nil
	}); err != nil {
		return nil, err
	}
	if poll.Cancelled {
		return nil, nil
	}
	if poll.Webset != nil {
		ws = poll.Webset
	}

	var items []upstream.Item
	if !poll.TimedOut {
		if Cancelled(ctx) {
			_ = client.CancelWebset(context.Background(), ws.ID)
			return nil, nil
		}
		if err := tracker.Run(ctx, "collect", func(ctx context.Context) error {
			collected, _, err := CollectItems(ctx, client, ws.ID, cap)
			if err != nil {
				return taskerror.FromError("collect", err)
			}
			items = collected
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if args.Cleanup {
		_ = client.DeleteWebset(context.Background(), ws.ID)
	}

	var searchProgress upstream.SearchProgress
	if last, ok := ws.LastSearch(); ok {
		searchProgress = last.Progress
	}

	result := HarvestResult{
		WebsetID:        ws.ID,
		Items:           projection.ProjectItems(items, EnrichmentDefs(ws)),
		ItemCount:       len(items),
		SearchProgress:  searchProgress,
		EnrichmentCount: len(ws.Enrichments),
		DurationMs:      time.Since(start).Milliseconds(),
		Steps:           tracker.Steps(),
		TimedOut:        poll.TimedOut,
	}
	return result, nil
}
