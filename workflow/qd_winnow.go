package workflow

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// QDWinnowWorkflowType is the registry key for qd.winnow.
const QDWinnowWorkflowType = "qd.winnow"

// DefaultQDWinnowCount is the item count assumed when args.Count is unset.
const DefaultQDWinnowCount = 20

// StrategyDiverse, StrategyAllCriteria, and StrategyAnyCriteria are the
// three elite-selection strategies.
const (
	StrategyDiverse     = "diverse"
	StrategyAllCriteria = "all-criteria"
	StrategyAnyCriteria = "any-criteria"
)

// QDWinnowArgs is qd.winnow's argument schema. Criteria define
// the behavioral dimensions of the niche space; Enrichments define the
// fitness function.
type QDWinnowArgs struct {
	Query       string             `json:"query" validate:"required"`
	Entity      HarvestEntity      `json:"entity" validate:"required"`
	Criteria    []string           `json:"criteria" validate:"required,min=1"`
	Enrichments []HarvestEnrichArg `json:"enrichments,omitempty"`
	Count       int                `json:"count,omitempty"`
	TimeoutMs   int                `json:"timeout,omitempty"`
	Rounds      int                `json:"rounds,omitempty"`
	Strategy    string             `json:"strategy,omitempty" validate:"omitempty,oneof=diverse all-criteria any-criteria"`
	Cleanup     bool               `json:"cleanup,omitempty"`
}

// QDWinnowElite is one selected item together with its niche coordinate and
// fitness score.
type QDWinnowElite struct {
	Item     projection.Item `json:"item"`
	NicheKey string          `json:"nicheKey"`
	Fitness  float64         `json:"fitness"`
}

// DescriptorFeedback is the per-criterion quality label qd.winnow reports.
type DescriptorFeedback struct {
	Criterion   string  `json:"criterion"`
	SuccessRate float64 `json:"successRate"`
	Label       string  `json:"label"`
}

// QDWinnowResult is qd.winnow's completed-task payload.
type QDWinnowResult struct {
	WebsetID    string               `json:"websetId"`
	Strategy    string               `json:"strategy"`
	Elites      []QDWinnowElite      `json:"elites"`
	Coverage    float64              `json:"coverage"`
	AvgFitness  float64              `json:"avgFitness"`
	Diversity   float64              `json:"diversity"`
	Stringency  float64              `json:"stringency"`
	Descriptors []DescriptorFeedback `json:"descriptors"`
	ItemCount   int                  `json:"itemCount"`
	DurationMs  int64                `json:"duration"`
	Steps       []Step               `json:"steps"`
	TimedOut    bool                 `json:"timedOut,omitempty"`
}

// QDWinnow implements qd.winnow: classify items into niches by
// their satisfied-criteria bitstring, score fitness from enrichment
// results, and select elites per the requested strategy, reporting
// coverage/diversity/stringency quality metrics and per-criterion
// descriptor feedback.
func QDWinnow(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args QDWinnowArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}
	rounds := args.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	strategy := args.Strategy
	if strategy == "" {
		strategy = StrategyDiverse
	}

	tracker := NewStepTracker(store, taskID, rounds+2)
	cap := ItemCap(args.Count, DefaultQDWinnowCount)
	deadline := time.Duration(args.TimeoutMs) * time.Millisecond

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
		cancelAll(client, []string{ws.ID})
		return nil, nil
	}

	var items []upstream.Item
	var timedOut bool
	for round := 0; round < rounds; round++ {
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
		if poll.TimedOut {
			timedOut = true
			break
		}

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

	var result QDWinnowResult
	if err := tracker.Run(ctx, "score", func(ctx context.Context) error {
		defs := EnrichmentDefs(ws)
		niches := classify(items, args.Criteria)
		elites := selectElites(items, niches, defs, strategy)

		result = QDWinnowResult{
			WebsetID:    ws.ID,
			Strategy:    strategy,
			Elites:      elites,
			Coverage:    coverage(niches, len(args.Criteria)),
			AvgFitness:  avgFitness(elites),
			Diversity:   diversity(niches, len(args.Criteria)),
			Stringency:  stringency(ws),
			Descriptors: descriptorFeedback(ws, args.Criteria),
			ItemCount:   len(items),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if args.Cleanup {
		_ = client.DeleteWebset(context.Background(), ws.ID)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	result.Steps = tracker.Steps()
	result.TimedOut = timedOut
	return result, nil
}

// classify computes each item's niche key: position i is true
// iff the item has an evaluation for criteria[i] satisfied "yes". Items
// missing an evaluation for a criterion contribute false at that position.
func classify(items []upstream.Item, criteria []string) []string {
	keys := make([]string, len(items))
	for idx, it := range items {
		bits := make([]string, len(criteria))
		for i, crit := range criteria {
			satisfied := false
			for _, e := range it.Evaluations {
				if e.Criterion == crit && e.Satisfied == "yes" {
					satisfied = true
					break
				}
			}
			if satisfied {
				bits[i] = "1"
			} else {
				bits[i] = "0"
			}
		}
		keys[idx] = strings.Join(bits, ",")
	}
	return keys
}

// fitness computes an item's fitness score: the arithmetic mean of its
// completed enrichments' sub-scores, 0 if there are none.
func fitness(item upstream.Item, defs map[string]upstream.EnrichmentDefinition) float64 {
	var total float64
	var n int
	for _, er := range item.Enrichments {
		if er.Status == "pending" || er.Status == "cancelled" {
			continue
		}
		def := defs[er.EnrichmentID]
		total += subscore(def.Format, er)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func subscore(format string, er upstream.EnrichmentResult) float64 {
	first := er.FirstResult()
	switch format {
	case "number":
		v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
		if err != nil {
			return 0
		}
		return v
	case "options":
		if first != "" {
			return 1
		}
		return 0
	case "text":
		if strings.TrimSpace(first) != "" {
			return 1
		}
		return 0
	case "date", "email", "phone", "url":
		if first != "" {
			return 1
		}
		return 0
	default:
		if first != "" {
			return 1
		}
		return 0
	}
}

// selectElites applies the requested elite-selection strategy.
func selectElites(items []upstream.Item, niches []string, defs map[string]upstream.EnrichmentDefinition, strategy string) []QDWinnowElite {
	type scored struct {
		item    upstream.Item
		niche   string
		fitness float64
	}
	all := make([]scored, len(items))
	for i, it := range items {
		all[i] = scored{item: it, niche: niches[i], fitness: fitness(it, defs)}
	}

	var chosen []scored
	switch strategy {
	case StrategyAllCriteria:
		for _, s := range all {
			if isAllTrue(s.niche) {
				chosen = append(chosen, s)
			}
		}
	case StrategyAnyCriteria:
		for _, s := range all {
			if !isAllFalse(s.niche) {
				chosen = append(chosen, s)
			}
		}
	default: // diverse
		best := map[string]scored{}
		for _, s := range all {
			cur, ok := best[s.niche]
			if !ok || s.fitness > cur.fitness {
				best[s.niche] = s
			}
		}
		for _, s := range best {
			chosen = append(chosen, s)
		}
	}

	sort.SliceStable(chosen, func(i, j int) bool { return chosen[i].fitness > chosen[j].fitness })

	elites := make([]QDWinnowElite, len(chosen))
	for i, s := range chosen {
		elites[i] = QDWinnowElite{Item: projection.ProjectItem(s.item, defs), NicheKey: s.niche, Fitness: s.fitness}
	}
	return elites
}

func isAllTrue(niche string) bool {
	for _, b := range strings.Split(niche, ",") {
		if b != "1" {
			return false
		}
	}
	return true
}

func isAllFalse(niche string) bool {
	for _, b := range strings.Split(niche, ",") {
		if b != "0" {
			return false
		}
	}
	return true
}

// coverage is the fraction of the 2^N niche space that is populated.
func coverage(niches []string, n int) float64 {
	if n == 0 {
		return 0
	}
	populated := map[string]bool{}
	for _, k := range niches {
		populated[k] = true
	}
	total := math.Pow(2, float64(n))
	return float64(len(populated)) / total
}

func avgFitness(elites []QDWinnowElite) float64 {
	if len(elites) == 0 {
		return 0
	}
	var sum float64
	for _, e := range elites {
		sum += e.Fitness
	}
	return sum / float64(len(elites))
}

// diversity is the Shannon entropy of the niche distribution, normalized by
// log2(2^N) = N so the result falls in [0,1]. It is exactly 1 when every
// one of the 2^N niches holds the same count of items.
func diversity(niches []string, n int) float64 {
	if n == 0 || len(niches) == 0 {
		return 0
	}
	counts := map[string]int{}
	for _, k := range niches {
		counts[k]++
	}
	total := float64(len(niches))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	maxEntropy := float64(n)
	if maxEntropy == 0 {
		return 0
	}
	return entropy / maxEntropy
}

// stringency aggregates found/analyzed across every search attached to the
// webset.
func stringency(ws *upstream.Webset) float64 {
	var found, analyzed int
	for _, s := range ws.Searches {
		found += s.Progress.Found
		analyzed += s.Progress.Analyzed
	}
	if analyzed == 0 {
		return 0
	}
	return float64(found) / float64(analyzed)
}

// descriptorFeedback labels each criterion by its live success rate on the
// webset's last search.
func descriptorFeedback(ws *upstream.Webset, criteria []string) []DescriptorFeedback {
	last, ok := ws.LastSearch()
	rates := map[string]float64{}
	if ok {
		for _, c := range last.Criteria {
			rates[c.Criterion] = c.SuccessRate
		}
	}

	out := make([]DescriptorFeedback, len(criteria))
	for i, crit := range criteria {
		rate := rates[crit]
		var label string
		switch {
		case rate < 5:
			label = "too-strict"
		case rate > 95:
			label = "not-discriminating"
		default:
			label = "good-discriminator"
		}
		out[i] = DescriptorFeedback{Criterion: crit, SuccessRate: rate, Label: label}
	}
	return out
}
