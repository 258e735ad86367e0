package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/textsim"
	"github.com/cartograph-dev/cartograph/upstream"
)

// ConvergentSearchWorkflowType is the registry key for convergent.search.
const ConvergentSearchWorkflowType = "convergent.search"

// DefaultConvergentCount is the per-query item count assumed when
// args.Count is unset.
const DefaultConvergentCount = 10

// ConvergentSearchArgs is convergent.search's argument schema.
type ConvergentSearchArgs struct {
	Queries   []string      `json:"queries" validate:"required,min=2,max=5,dive,required"`
	Entity    HarvestEntity `json:"entity" validate:"required"`
	Criteria  []string      `json:"criteria,omitempty"`
	Count     int           `json:"count,omitempty"`
	TimeoutMs int           `json:"timeout,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
}

// ConvergentEntity is one deduplicated entity surfaced by convergent.search.
type ConvergentEntity struct {
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	FoundInCount int     `json:"foundInCount"`
	Confidence   float64 `json:"confidence"`
	QueryIndices []int   `json:"queryIndices"`
}

// ConvergentSearchResult is convergent.search's completed-task payload.
type ConvergentSearchResult struct {
	WebsetIDs     []string                   `json:"websetIds"`
	Intersection  []ConvergentEntity         `json:"intersection"`
	Unique        map[int][]ConvergentEntity `json:"unique"`
	OverlapMatrix [][]int                    `json:"overlapMatrix"`
	DurationMs    int64                      `json:"duration"`
	Steps         []Step                     `json:"steps"`
}

// convergentCandidate is one raw item observed under one query, carrying
// just enough identity to dedupe.
type convergentCandidate struct {
	queryIdx int
	name     string
	url      string
}

// ConvergentSearch implements convergent.search: launch 2-5
// queries as independent websets in parallel, poll all to idle, then
// deduplicate entities across websets by exact URL match first and
// Dice-bigram name similarity second.
func ConvergentSearch(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args ConvergentSearchArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}
	threshold := args.Threshold
	if threshold <= 0 {
		threshold = textsim.DefaultThreshold
	}

	n := len(args.Queries)
	tracker := NewStepTracker(store, taskID, 3)
	cap := ItemCap(args.Count, DefaultConvergentCount)

	websetIDs := make([]string, n)
	if err := tracker.Run(ctx, "create", func(ctx context.Context) error {
		return runParallel(ctx, n, func(i int) error {
			req := upstream.CreateWebsetRequest{
				Query:    args.Queries[i],
				Entity:   upstream.EntitySpec{Type: args.Entity.Type},
				Criteria: args.Criteria,
				Count:    args.Count,
			}
			ws, err := client.CreateWebset(ctx, req)
			if err != nil {
				return taskerror.FromError("create", err)
			}
			websetIDs[i] = ws.ID
			return nil
		})
	}); err != nil {
		return nil, err
	}

	if Cancelled(ctx) {
		cancelAll(client, websetIDs)
		return nil, nil
	}

	deadline := time.Duration(args.TimeoutMs) * time.Millisecond
	if err := tracker.Run(ctx, "poll", func(ctx context.Context) error {
		return runParallel(ctx, n, func(i int) error {
			res, err := PollUntilIdle(ctx, client, tracker, websetIDs[i], "poll", PollOptions{Deadline: deadline})
			if err != nil {
				return err
			}
			if res.Cancelled {
				return taskerror.Cancelled("poll")
			}
			return nil
		})
	}); err != nil {
		if taskerror.FromError("poll", err).Kind == taskerror.KindCancellation {
			cancelAll(client, websetIDs)
			return nil, nil
		}
		return nil, err
	}

	if Cancelled(ctx) {
		cancelAll(client, websetIDs)
		return nil, nil
	}

	candidates := make([][]convergentCandidate, n)
	if err := tracker.Run(ctx, "collect", func(ctx context.Context) error {
		return runParallel(ctx, n, func(i int) error {
			items, _, err := CollectItems(ctx, client, websetIDs[i], cap)
			if err != nil {
				return taskerror.FromError("collect", err)
			}
			out := make([]convergentCandidate, 0, len(items))
			for _, it := range items {
				out = append(out, convergentCandidate{queryIdx: i, name: projection.MatchableName(it), url: it.URL})
			}
			candidates[i] = out
			return nil
		})
	}); err != nil {
		return nil, err
	}

	intersection, unique, overlap := deduplicate(candidates, n, threshold)

	result := ConvergentSearchResult{
		WebsetIDs:     websetIDs,
		Intersection:  intersection,
		Unique:        unique,
		OverlapMatrix: overlap,
		DurationMs:    time.Since(start).Milliseconds(),
		Steps:         tracker.Steps(),
	}
	return result, nil
}

// dedupeEntity is the fold target for matching candidates across queries.
type dedupeEntity struct {
	name    string
	url     string
	queries map[int]bool
}

// deduplicate folds every query's candidates into canonical entities
// (exact URL match first, Dice name similarity second), then partitions
// them into the intersection bucket (foundInCount >= 2) and per-query
// unique buckets, and computes the pairwise overlap matrix.
func deduplicate(candidates [][]convergentCandidate, n int, threshold float64) ([]ConvergentEntity, map[int][]ConvergentEntity, [][]int) {
	var entities []*dedupeEntity
	byURL := map[string]*dedupeEntity{}

	for i := 0; i < n; i++ {
		for _, c := range candidates[i] {
			var match *dedupeEntity
			if c.url != "" {
				match = byURL[c.url]
			}
			if match == nil {
				for _, e := range entities {
					if e.queries[i] {
						continue // a query cannot match its own earlier candidate
					}
					if c.url != "" && e.url != "" && c.url == e.url {
						match = e
						break
					}
					if c.name != "" && e.name != "" && textsim.Dice(c.name, e.name) >= threshold {
						match = e
						break
					}
				}
			}
			if match == nil {
				match = &dedupeEntity{name: c.name, url: c.url, queries: map[int]bool{}}
				entities = append(entities, match)
				if c.url != "" {
					byURL[c.url] = match
				}
			}
			match.queries[i] = true
		}
	}

	var intersection []ConvergentEntity
	unique := make(map[int][]ConvergentEntity, n)
	for _, e := range entities {
		indices := make([]int, 0, len(e.queries))
		for q := range e.queries {
			indices = append(indices, q)
		}
		sort.Ints(indices)
		// Confidence counts the confirmations beyond the first sighting: an
		// entity surfaced by one query scores 0, each further query that
		// independently re-surfaces it adds 1/totalQueries.
		ce := ConvergentEntity{
			Name:         e.name,
			URL:          e.url,
			FoundInCount: len(e.queries),
			Confidence:   float64(len(e.queries)-1) / float64(n),
			QueryIndices: indices,
		}
		if len(e.queries) >= 2 {
			intersection = append(intersection, ce)
		} else {
			q := indices[0]
			unique[q] = append(unique[q], ce)
		}
	}

	overlap := make([][]int, n)
	for i := range overlap {
		overlap[i] = make([]int, n)
	}
	for _, e := range entities {
		for i := range e.queries {
			for j := range e.queries {
				if i != j {
					overlap[i][j]++
				}
			}
		}
	}

	return intersection, unique, overlap
}

// runParallel runs fn(0..n-1) concurrently and returns the first error, if
// any, after every goroutine has finished.
func runParallel(ctx context.Context, n int, fn func(i int) error) error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// cancelAll best-effort cancels every webset the workflow created, used on
// the cancellation checkpoints between parallel branches.
func cancelAll(client upstream.Client, ids []string) {
	for _, id := range ids {
		if id != "" {
			_ = client.CancelWebset(context.Background(), id)
		}
	}
}
