package semanticcron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/upstream"
)

// DefaultPollInterval and DefaultPollTimeout mirror workflow.PollUntilIdle's
// defaults. semanticcron cannot import package workflow (it would create an
// import cycle, since workflow registers the semantic.cron workflow that
// wraps Evaluate) so it carries its own small poll loop with the same
// cadence and deadline.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 300 * time.Second
	// DefaultLensItemCap bounds how many items a lens collects per
	// evaluation absent an explicit lens.Count.
	DefaultLensItemCap = 100
	lensListPageSize   = 50
)

// ProgressFunc receives a human-readable progress message for one named
// step; the semantic.cron workflow wrapper wires this to a StepTracker.
type ProgressFunc func(step, message string)

// Options tunes one Evaluate call. Zero values use package defaults.
type Options struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Progress     ProgressFunc
}

func (o Options) progress(step, message string) {
	if o.Progress != nil {
		o.Progress(step, message)
	}
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}

func (o Options) pollTimeout() time.Duration {
	if o.PollTimeout > 0 {
		return o.PollTimeout
	}
	return DefaultPollTimeout
}

// Result is the outcome of one Evaluate call: the snapshot, the resolved
// lens-id-to-webset-id map, and (when a previous snapshot was supplied)
// the delta against it.
type Result struct {
	Snapshot  Snapshot          `json:"snapshot"`
	WebsetIDs map[string]string `json:"websetIds"`
	Delta     *Delta            `json:"delta,omitempty"`
}

// cancelled reports whether ctx has been cancelled without blocking.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Evaluate runs one full semantic cron pass: mode selection, enrichment
// resolution, per-lens collection and shape evaluation, the join, the
// signal rule, snapshot assembly, delta computation against prev, and
// (initial runs only) best-effort monitor registration. cfg must already
// be template-expanded and validated (see ExpandTemplate, ParseConfig).
func Evaluate(ctx context.Context, client upstream.Client, cfg *Config, prev *Snapshot, existing map[string]string, opts Options) (*Result, error) {
	isReEvaluation := len(existing) > 0
	websetIDs := make(map[string]string, len(cfg.Lenses))
	var createdThisRun []string

	var lensResults []LensResult
	for _, lens := range cfg.Lenses {
		if cancelled(ctx) {
			cancelCreated(client, createdThisRun)
			return nil, nil
		}

		websetID, created, skipPoll, err := resolveLensWebset(ctx, client, lens, isReEvaluation, existing, opts)
		if err != nil {
			cancelCreated(client, createdThisRun)
			return nil, err
		}
		if created {
			createdThisRun = append(createdThisRun, websetID)
		}
		websetIDs[lens.ID] = websetID

		if !isReEvaluation && !skipPoll {
			opts.progress("poll", fmt.Sprintf("lens %s polling webset %s", lens.ID, websetID))
			ws, timedOut, cancelledMidPoll, err := pollToIdle(ctx, client, websetID, opts)
			if err != nil {
				cancelCreated(client, createdThisRun)
				return nil, err
			}
			if cancelledMidPoll {
				cancelCreated(client, createdThisRun)
				return nil, nil
			}
			_ = timedOut // a lens that times out still proceeds to collection with whatever items exist
			_ = ws
		}

		ws, err := client.GetWebset(ctx, websetID)
		if err != nil {
			cancelCreated(client, createdThisRun)
			return nil, taskerror.FromError("collect", err)
		}

		descByID := DescriptionsByID(defsByID(ws))
		items, err := collectLensItems(ctx, client, websetID, lensItemCap(lens))
		if err != nil {
			cancelCreated(client, createdThisRun)
			return nil, taskerror.FromError("collect", err)
		}

		shapes := cfg.ShapesForLens(lens.ID)
		lensResults = append(lensResults, LensResult{
			LensID:     lens.ID,
			WebsetID:   websetID,
			TotalItems: len(items),
			Shaped:     shapeItems(items, lens.ID, shapes, descByID),
		})
	}

	if cancelled(ctx) {
		cancelCreated(client, createdThisRun)
		return nil, nil
	}

	opts.progress("join", "joining lens results")
	joinResult := Join(cfg.Join, lensResults)

	opts.progress("signal", "evaluating signal rule")
	signalResult := EvaluateSignal(cfg.Signal, joinResult, cfg.LensIDs())

	snapshot := BuildSnapshot(time.Now(), cfg, lensResults, joinResult, signalResult)

	var delta *Delta
	if prev != nil {
		d := ComputeDelta(*prev, snapshot)
		delta = &d
	}

	if !isReEvaluation && cfg.Monitor != nil {
		registerMonitors(ctx, client, cfg, websetIDs)
	}

	return &Result{Snapshot: snapshot, WebsetIDs: websetIDs, Delta: delta}, nil
}

// resolveLensWebset implements mode selection for a single lens:
// re-evaluation binds to the caller-supplied webset id without creating or
// polling; initial run binds to lens.ExistingWebsetID (skipping polling,
// since the caller owns that webset's lifecycle) or creates a fresh webset
// and asks for a poll by returning skipPoll=false.
func resolveLensWebset(ctx context.Context, client upstream.Client, lens Lens, isReEvaluation bool, existing map[string]string, opts Options) (websetID string, created bool, skipPoll bool, err error) {
	if isReEvaluation {
		id, ok := existing[lens.ID]
		if !ok {
			return "", false, false, taskerror.Validation("validate", "no existing webset bound for lens %q", lens.ID)
		}
		return id, false, true, nil
	}

	if lens.ExistingWebsetID != "" {
		return lens.ExistingWebsetID, false, true, nil
	}

	opts.progress("create", fmt.Sprintf("creating webset for lens %s", lens.ID))
	ws, err := client.CreateWebset(ctx, upstream.CreateWebsetRequest{
		Query:       lens.Query,
		Entity:      upstream.EntitySpec{Type: lens.EntityType},
		Criteria:    lens.Criteria,
		Enrichments: toEnrichmentRequests(lens.Enrichments),
		Count:       lens.Count,
	})
	if err != nil {
		return "", false, false, taskerror.FromError("create", err)
	}
	return ws.ID, true, false, nil
}

func toEnrichmentRequests(specs []EnrichmentSpec) []upstream.EnrichmentRequest {
	out := make([]upstream.EnrichmentRequest, len(specs))
	for i, s := range specs {
		out[i] = upstream.EnrichmentRequest{Description: s.Description, Format: s.Format}
	}
	return out
}

func defsByID(ws *upstream.Webset) map[string]upstream.EnrichmentDefinition {
	out := make(map[string]upstream.EnrichmentDefinition, len(ws.Enrichments))
	for _, d := range ws.Enrichments {
		out[d.ID] = d
	}
	return out
}

func lensItemCap(lens Lens) int {
	if lens.Count > 0 {
		return lens.Count * 2
	}
	return DefaultLensItemCap
}

// pollToIdle drives a webset to WebsetIdle on the same cadence/deadline
// policy as workflow.PollUntilIdle.
func pollToIdle(ctx context.Context, client upstream.Client, websetID string, opts Options) (*upstream.Webset, bool, bool, error) {
	deadlineAt := time.Now().Add(opts.pollTimeout())

	for {
		if cancelled(ctx) {
			_ = client.CancelWebset(context.Background(), websetID)
			return nil, false, true, nil
		}

		ws, err := client.GetWebset(ctx, websetID)
		if err != nil {
			return nil, false, false, taskerror.FromError("poll", err)
		}

		switch ws.Status {
		case upstream.WebsetIdle:
			return ws, false, false, nil
		case upstream.WebsetPaused:
			return nil, false, false, taskerror.New(taskerror.KindUpstreamTerminal, "poll", fmt.Sprintf("webset %s paused", websetID))
		}

		if time.Now().After(deadlineAt) {
			return ws, true, false, nil
		}

		select {
		case <-ctx.Done():
			_ = client.CancelWebset(context.Background(), websetID)
			return nil, false, true, nil
		case <-time.After(opts.pollInterval()):
		}
	}
}

// collectLensItems pages through a lens's webset items up to cap, mirroring
// workflow.CollectItems' truncation behavior.
func collectLensItems(ctx context.Context, client upstream.Client, websetID string, cap int) ([]upstream.Item, error) {
	var items []upstream.Item
	cursor := ""

	for {
		if cancelled(ctx) {
			return items, nil
		}
		remaining := cap - len(items)
		if remaining <= 0 {
			break
		}
		limit := remaining
		if limit > lensListPageSize {
			limit = lensListPageSize
		}

		page, err := client.ListItems(ctx, websetID, cursor, limit)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		if len(items) >= cap {
			if len(items) > cap {
				items = items[:cap]
			}
			break
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return items, nil
}

// shapeItems applies the evaluation pre-filter and shape test to every
// collected item, returning the shaped subset reduced to
// what the join engine needs.
func shapeItems(items []upstream.Item, lensID string, shapes []Shape, descByID map[string]string) []ShapedItem {
	var out []ShapedItem
	for _, item := range items {
		if !PassesEvaluationFilter(item) {
			continue
		}
		resolved := ResolveEnrichments(item, descByID)
		if !IsShaped(shapes, resolved) {
			continue
		}
		values := make(map[string]string, len(resolved))
		for desc, er := range resolved {
			values[desc] = er.FirstResult()
		}
		out = append(out, ShapedItem{
			ItemID:      item.ID,
			LensID:      lensID,
			Name:        projection.MatchableName(item),
			URL:         item.URL,
			Enrichments: values,
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}

// cancelCreated best-effort cancels every webset this run created, used
// when an evaluation aborts partway through (error or cancellation).
func cancelCreated(client upstream.Client, websetIDs []string) {
	for _, id := range websetIDs {
		_ = client.CancelWebset(context.Background(), id)
	}
}

// cronFieldOptions selects the 5-field (minute hour day month weekday)
// cron grammar, as opposed to cron/v3's default 6-field-with-seconds
// parser.
var cronFieldOptions = cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow

// registerMonitors attempts to attach cfg.Monitor to every lens's webset.
// It runs only on an initial evaluation; failures (including an invalid
// cron expression) are non-fatal and silently dropped.
func registerMonitors(ctx context.Context, client upstream.Client, cfg *Config, websetIDs map[string]string) {
	parser := cron.NewParser(cronFieldOptions)
	if _, err := parser.Parse(cfg.Monitor.Cron); err != nil {
		return
	}
	for _, lens := range cfg.Lenses {
		websetID, ok := websetIDs[lens.ID]
		if !ok {
			continue
		}
		_, _ = client.CreateMonitor(ctx, websetID, cfg.Monitor.Cron, cfg.Monitor.Timezone)
	}
}
