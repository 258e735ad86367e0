package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cartograph-dev/cartograph/concurrency"
	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// VerifiedCollectionWorkflowType is the registry key for
// research.verifiedCollection.
const VerifiedCollectionWorkflowType = "research.verifiedCollection"

// DefaultVerifiedCollectionCount is the item count assumed when args.Count
// is unset.
const DefaultVerifiedCollectionCount = 10

// DefaultResearchLimit caps how many collected items get a per-item
// research call when args.ResearchLimit is unset.
const DefaultResearchLimit = 5

// ResearchConcurrency bounds concurrent per-item upstream research calls.
const ResearchConcurrency = 3

// VerifiedCollectionArgs is research.verifiedCollection's argument
// schema.
type VerifiedCollectionArgs struct {
	Query          string        `json:"query" validate:"required"`
	Entity         HarvestEntity `json:"entity" validate:"required"`
	Criteria       []string      `json:"criteria,omitempty"`
	Count          int           `json:"count,omitempty"`
	TimeoutMs      int           `json:"timeout,omitempty"`
	ResearchLimit  int           `json:"researchLimit,omitempty"`
	PromptTemplate string        `json:"promptTemplate" validate:"required"`
}

// ItemResearch is the per-item research outcome attached during
// research.verifiedCollection. Error is set instead of Result/Structured
// when the per-item research call failed; a per-item research failure
// never fails the task.
type ItemResearch struct {
	ResearchID string         `json:"researchId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Result     string         `json:"result,omitempty"`
	Structured map[string]any `json:"structuredOutput,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// VerifiedItem pairs a projected item with its optional per-item research.
type VerifiedItem struct {
	projection.Item
	Research *ItemResearch `json:"research,omitempty"`
}

// VerifiedCollectionResult is research.verifiedCollection's completed-task
// payload.
type VerifiedCollectionResult struct {
	WebsetID   string         `json:"websetId"`
	Items      []VerifiedItem `json:"items"`
	Total      int            `json:"total"`
	Researched int            `json:"researched"`
	DurationMs int64          `json:"duration"`
	Steps      []Step         `json:"steps"`
	TimedOut   bool           `json:"timedOut,omitempty"`
}

// VerifiedCollection implements research.verifiedCollection:
// create a webset, collect items, then issue a bounded-concurrency
// per-item deep-research call for the first researchLimit items using a
// prompt built from a {{name}}/{{url}}/{{description}} template.
func VerifiedCollection(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args VerifiedCollectionArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}
	researchLimit := args.ResearchLimit
	if researchLimit <= 0 {
		researchLimit = DefaultResearchLimit
	}

	tracker := NewStepTracker(store, taskID, 3)
	cap := ItemCap(args.Count, DefaultVerifiedCollectionCount)
	deadline := time.Duration(args.TimeoutMs) * time.Millisecond

	var ws *upstream.Webset
	if err := tracker.Run(ctx, "create", func(ctx context.Context) error {
		created, err := client.CreateWebset(ctx, upstream.CreateWebsetRequest{
			Query:    args.Query,
			Entity:   upstream.EntitySpec{Type: args.Entity.Type},
			Criteria: args.Criteria,
			Count:    args.Count,
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
		cancelAll(client, []string{ws.ID})
		return nil, nil
	}

	var poll PollResult
	if err := tracker.Run(ctx, "poll", func(ctx context.Context) error {
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
			cancelAll(client, []string{ws.ID})
			return nil, nil
		}
		collected, _, err := CollectItems(ctx, client, ws.ID, cap)
		if err != nil {
			return nil, taskerror.FromError("collect", err)
		}
		items = collected
	}

	defs := EnrichmentDefs(ws)
	verified := make([]VerifiedItem, len(items))
	for i, it := range items {
		verified[i] = VerifiedItem{Item: projection.ProjectItem(it, defs)}
	}

	researched := 0
	if !poll.TimedOut && !Cancelled(ctx) {
		if err := tracker.Run(ctx, "research", func(ctx context.Context) error {
			n := researchLimit
			if n > len(items) {
				n = len(items)
			}
			limiter := concurrency.NewLimiter(ResearchConcurrency)
			var wg sync.WaitGroup
			var mu sync.Mutex
			for i := 0; i < n; i++ {
				if Cancelled(ctx) {
					break
				}
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					prompt := renderPromptTemplate(args.PromptTemplate, items[i])
					_ = limiter.Run(ctx, func() error {
						if Cancelled(ctx) {
							return nil
						}
						r := researchOneItem(ctx, client, prompt)
						mu.Lock()
						verified[i].Research = r
						mu.Unlock()
						return nil
					})
				}(i)
			}
			wg.Wait()
			return nil
		}); err != nil {
			return nil, err
		}
		for _, v := range verified[:researchLimitOrLen(researchLimit, len(items))] {
			if v.Research != nil {
				researched++
			}
		}
	}

	return VerifiedCollectionResult{
		WebsetID:   ws.ID,
		Items:      verified,
		Total:      len(items),
		Researched: researched,
		DurationMs: time.Since(start).Milliseconds(),
		Steps:      tracker.Steps(),
		TimedOut:   poll.TimedOut,
	}, nil
}

func researchLimitOrLen(limit, n int) int {
	if limit > n {
		return n
	}
	return limit
}

// researchOneItem issues one upstream deep-research call and never returns
// an error: a failing per-item call is captured on the ItemResearch record
// instead.
func researchOneItem(ctx context.Context, client upstream.Client, prompt string) *ItemResearch {
	job, err := client.CreateResearch(ctx, upstream.CreateResearchRequest{Instructions: prompt})
	if err != nil {
		return &ItemResearch{Error: taskerror.FromError("research", err).Error()}
	}
	polled, _, err := PollResearch(ctx, client, job.ID, "research", PollOptions{})
	if err != nil {
		return &ItemResearch{ResearchID: job.ID, Error: taskerror.FromError("research", err).Error()}
	}
	if polled == nil {
		return &ItemResearch{ResearchID: job.ID, Status: job.Status}
	}
	return &ItemResearch{ResearchID: polled.ID, Status: polled.Status, Result: polled.Result, Structured: polled.StructuredOutput}
}

// renderPromptTemplate substitutes {{name}}, {{url}}, and {{description}}
// in template with item's fields.
func renderPromptTemplate(template string, item upstream.Item) string {
	name, _ := projection.Identity(item)
	r := strings.NewReplacer(
		"{{name}}", name,
		"{{url}}", item.URL,
		"{{description}}", item.Description,
	)
	return r.Replace(template)
}
