package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
	"github.com/cartograph-dev/cartograph/workflow/semanticcron"
)

// SemanticCronWorkflowType is the registry key for semantic.cron.
const SemanticCronWorkflowType = "semantic.cron"

// SemanticCronArgs is semantic.cron's argument schema.
// Config carries the configuration document exactly as supplied, still
// containing unresolved {{var}} tokens; it is expanded and validated
// inside the "validate" step rather than by struct tags, since its shape
// is a nested document the tag-based validator cannot usefully describe.
type SemanticCronArgs struct {
	Config           json.RawMessage        `json:"config" validate:"required"`
	Variables        map[string]string      `json:"variables,omitempty"`
	PreviousSnapshot *semanticcron.Snapshot `json:"previousSnapshot,omitempty"`
	ExistingWebsets  map[string]string      `json:"existingWebsets,omitempty"`
	TimeoutMs        int                    `json:"timeout,omitempty"`
}

// SemanticCronResult is semantic.cron's completed-task payload.
type SemanticCronResult struct {
	Snapshot   semanticcron.Snapshot `json:"snapshot"`
	WebsetIDs  map[string]string     `json:"websetIds"`
	Delta      *semanticcron.Delta   `json:"delta,omitempty"`
	DurationMs int64                 `json:"duration"`
	Steps      []Step                `json:"steps"`
}

// SemanticCron implements the semantic.cron workflow: expand
// and validate the configuration, select initial-run vs. re-evaluation
// mode, run the declarative pipeline, and return the snapshot (plus delta,
// if a previous snapshot was supplied).
func SemanticCron(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args SemanticCronArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}

	tracker := NewStepTracker(store, taskID, 2)

	var cfg *semanticcron.Config
	if err := tracker.Run(ctx, "validate", func(ctx context.Context) error {
		expanded, err := semanticcron.ExpandTemplate(args.Config, args.Variables)
		if err != nil {
			return err
		}
		parsed, err := semanticcron.ParseConfig(expanded)
		if err != nil {
			return err
		}
		cfg = parsed
		return nil
	}); err != nil {
		return nil, err
	}

	if Cancelled(ctx) {
		return nil, nil
	}

	var result *semanticcron.Result
	if err := tracker.Run(ctx, "evaluate", func(ctx context.Context) error {
		opts := semanticcron.Options{
			Progress: func(step, message string) { tracker.Progress(step, message) },
		}
		if args.TimeoutMs > 0 {
			opts.PollTimeout = time.Duration(args.TimeoutMs) * time.Millisecond
		}
		r, err := semanticcron.Evaluate(ctx, client, cfg, args.PreviousSnapshot, args.ExistingWebsets, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	}); err != nil {
		return nil, err
	}
	if result == nil {
		// Evaluate observed cancellation mid-run.
		return nil, nil
	}

	return SemanticCronResult{
		Snapshot:   result.Snapshot,
		WebsetIDs:  result.WebsetIDs,
		Delta:      result.Delta,
		DurationMs: time.Since(start).Milliseconds(),
		Steps:      tracker.Steps(),
	}, nil
}
