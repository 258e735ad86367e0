package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cartograph-dev/cartograph/projection"
	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// AdversarialVerifyWorkflowType is the registry key for adversarial.verify.
const AdversarialVerifyWorkflowType = "adversarial.verify"

// DefaultAdversarialCount is the per-side item count assumed when
// args.Count is unset.
const DefaultAdversarialCount = 8

// adversarialSummaryLimit caps how many items feed the synthesis prompt so
// it stays bounded regardless of how many items either search turned up.
const adversarialSummaryLimit = 5

// AdversarialVerifyArgs is adversarial.verify's argument schema.
type AdversarialVerifyArgs struct {
	Claim      string        `json:"claim" validate:"required"`
	Entity     HarvestEntity `json:"entity" validate:"required"`
	Criteria   []string      `json:"criteria,omitempty"`
	Count      int           `json:"count,omitempty"`
	TimeoutMs  int           `json:"timeout,omitempty"`
	Synthesize bool          `json:"synthesize,omitempty"`
}

// AdversarialSynthesis is the optional deep-research verdict over both
// evidence sets.
type AdversarialSynthesis struct {
	ResearchID       string         `json:"researchId"`
	StructuredOutput map[string]any `json:"structuredOutput,omitempty"`
	Text             string         `json:"text,omitempty"`
}

// AdversarialVerifyResult is adversarial.verify's completed-task payload.
type AdversarialVerifyResult struct {
	SupportingWebsetID    string                `json:"supportingWebsetId"`
	DisconfirmingWebsetID string                `json:"disconfirmingWebsetId"`
	Supporting            projection.Envelope   `json:"supporting"`
	Disconfirming         projection.Envelope   `json:"disconfirming"`
	Synthesis             *AdversarialSynthesis `json:"synthesis,omitempty"`
	DurationMs            int64                 `json:"duration"`
	Steps                 []Step                `json:"steps"`
}

// AdversarialVerify implements adversarial.verify: run one
// search for supporting evidence and one, sequentially, for disconfirming
// evidence, then optionally synthesize a verdict via a single deterministic
// upstream deep-research call over both evidence sets.
func AdversarialVerify(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args AdversarialVerifyArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}

	steps := 2
	if args.Synthesize {
		steps = 3
	}
	tracker := NewStepTracker(store, taskID, steps)
	cap := ItemCap(args.Count, DefaultAdversarialCount)
	deadline := time.Duration(args.TimeoutMs) * time.Millisecond

	supportWS, supportItems, err := runEvidenceSearch(ctx, client, tracker, "supporting",
		"evidence supporting: "+args.Claim, args, cap, deadline)
	if err != nil {
		return nil, err
	}
	if supportWS == nil {
		return nil, nil // cancelled
	}

	if Cancelled(ctx) {
		cancelAll(client, []string{supportWS.ID})
		return nil, nil
	}

	disconfirmWS, disconfirmItems, err := runEvidenceSearch(ctx, client, tracker, "disconfirming",
		"evidence against: "+args.Claim, args, cap, deadline)
	if err != nil {
		return nil, err
	}
	if disconfirmWS == nil {
		return nil, nil // cancelled
	}

	result := AdversarialVerifyResult{
		SupportingWebsetID:    supportWS.ID,
		DisconfirmingWebsetID: disconfirmWS.ID,
		Supporting:            projection.ProjectItems(supportItems, EnrichmentDefs(supportWS)),
		Disconfirming:         projection.ProjectItems(disconfirmItems, EnrichmentDefs(disconfirmWS)),
	}

	if args.Synthesize {
		if Cancelled(ctx) {
			return nil, nil
		}
		var synthesis *AdversarialSynthesis
		if err := tracker.Run(ctx, "synthesize", func(ctx context.Context) error {
			prompt := synthesisPrompt(args.Claim, supportItems, disconfirmItems)
			job, err := client.CreateResearch(ctx, upstream.CreateResearchRequest{Instructions: prompt})
			if err != nil {
				return taskerror.FromError("synthesize", err)
			}
			synthesis = &AdversarialSynthesis{ResearchID: job.ID, StructuredOutput: job.StructuredOutput, Text: job.Result}
			return nil
		}); err != nil {
			return nil, err
		}
		result.Synthesis = synthesis
	}

	result.DurationMs = time.Since(start).Milliseconds()
	result.Steps = tracker.Steps()
	return result, nil
}

// runEvidenceSearch creates one webset, polls it to idle, and collects its
// items, returning (nil, nil, nil) if the task was cancelled mid-step.
func runEvidenceSearch(ctx context.Context, client upstream.Client, tracker *StepTracker, step, query string, args AdversarialVerifyArgs, cap int, deadline time.Duration) (*upstream.Webset, []upstream.Item, error) {
	var ws *upstream.Webset
	if err := tracker.Run(ctx, step, func(ctx context.Context) error {
		created, err := client.CreateWebset(ctx, upstream.CreateWebsetRequest{
			Query:    query,
			Entity:   upstream.EntitySpec{Type: args.Entity.Type},
			Criteria: args.Criteria,
			Count:    args.Count,
		})
		if err != nil {
			return taskerror.FromError(step, err)
		}
		ws = created
		return nil
	}); err != nil {
		return nil, nil, err
	}

	if Cancelled(ctx) {
		cancelAll(client, []string{ws.ID})
		return nil, nil, nil
	}

	poll, err := PollUntilIdle(ctx, client, tracker, ws.ID, step, PollOptions{Deadline: deadline})
	if err != nil {
		return nil, nil, err
	}
	if poll.Cancelled {
		return nil, nil, nil
	}
	if poll.Webset != nil {
		ws = poll.Webset
	}
	if poll.TimedOut {
		return ws, nil, nil
	}

	if Cancelled(ctx) {
		cancelAll(client, []string{ws.ID})
		return nil, nil, nil
	}

	items, _, err := CollectItems(ctx, client, ws.ID, cap)
	if err != nil {
		return nil, nil, taskerror.FromError(step, err)
	}
	return ws, items, nil
}

// synthesisPrompt builds a deterministic research prompt from summaries of
// both evidence sets: the same inputs always produce the same prompt text.
func synthesisPrompt(claim string, supporting, disconfirming []upstream.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n\n", claim)
	b.WriteString("Supporting evidence:\n")
	b.WriteString(summarizeItems(supporting))
	b.WriteString("\nDisconfirming evidence:\n")
	b.WriteString(summarizeItems(disconfirming))
	b.WriteString("\nWeigh both sides and report whether the claim holds.")
	return b.String()
}

func summarizeItems(items []upstream.Item) string {
	if len(items) == 0 {
		return "(none found)\n"
	}
	var b strings.Builder
	n := len(items)
	if n > adversarialSummaryLimit {
		n = adversarialSummaryLimit
	}
	for _, it := range items[:n] {
		name, _ := projection.Identity(it)
		fmt.Fprintf(&b, "- %s: %s (%s)\n", name, it.Description, it.URL)
	}
	return b.String()
}
