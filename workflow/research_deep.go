package workflow

import (
	"context"
	"time"

	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// ResearchDeepWorkflowType is the registry key for research.deep.
const ResearchDeepWorkflowType = "research.deep"

// ResearchDeepArgs is research.deep's argument schema.
type ResearchDeepArgs struct {
	Instructions string `json:"instructions" validate:"required"`
	TimeoutMs    int    `json:"timeout,omitempty"`
}

// ResearchDeepResult is research.deep's completed-task payload.
type ResearchDeepResult struct {
	ResearchID string         `json:"researchId"`
	Status     string         `json:"status"`
	Result     string         `json:"result,omitempty"`
	Structured map[string]any `json:"structuredOutput,omitempty"`
	Model      string         `json:"model,omitempty"`
	DurationMs int64          `json:"duration"`
	Steps      []Step         `json:"steps"`
	TimedOut   bool           `json:"timedOut,omitempty"`
}

// ResearchDeep implements research.deep: dispatch one upstream
// deep-research job and poll it to a terminal state within the timeout
// budget.
func ResearchDeep(ctx context.Context, taskID string, rawArgs map[string]any, client upstream.Client, store *taskstore.Store) (any, error) {
	start := time.Now()
	var args ResearchDeepArgs
	if err := DecodeArgs(rawArgs, &args); err != nil {
		return nil, err
	}

	tracker := NewStepTracker(store, taskID, 2)

	var job *upstream.ResearchJob
	if err := tracker.Run(ctx, "dispatch", func(ctx context.Context) error {
		created, err := client.CreateResearch(ctx, upstream.CreateResearchRequest{Instructions: args.Instructions})
		if err != nil {
			return taskerror.FromError("dispatch", err)
		}
		job = created
		return nil
	}); err != nil {
		return nil, err
	}

	if Cancelled(ctx) {
		return nil, nil
	}

	var timedOut bool
	if err := tracker.Run(ctx, "poll", func(ctx context.Context) error {
		deadline := time.Duration(args.TimeoutMs) * time.Millisecond
		polled, to, err := PollResearch(ctx, client, job.ID, "poll", PollOptions{Deadline: deadline})
		if err != nil {
			return err
		}
		if polled != nil {
			job = polled
		}
		timedOut = to
		return nil
	}); err != nil {
		return nil, err
	}

	if Cancelled(ctx) {
		return nil, nil
	}

	return ResearchDeepResult{
		ResearchID: job.ID,
		Status:     job.Status,
		Result:     job.Result,
		Structured: job.StructuredOutput,
		Model:      job.Model,
		DurationMs: time.Since(start).Milliseconds(),
		Steps:      tracker.Steps(),
		TimedOut:   timedOut,
	}, nil
}
