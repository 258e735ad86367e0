package workflow

import (
	"context"
	"time"

	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/upstream"
)

// DefaultResearchPollInterval is the refresh cadence for polling a
// deep-research job to a terminal state.
const DefaultResearchPollInterval = 2 * time.Second

// PollResearch polls a deep-research job until it reaches a terminal
// status ("completed" or "failed") within the timeout budget. Like
// PollUntilIdle, exceeding the
// deadline returns a timedOut flag rather than an error so the caller can
// decide whether a partial/missing result is acceptable.
func PollResearch(ctx context.Context, client upstream.Client, researchID, step string, opts PollOptions) (*upstream.ResearchJob, bool, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultResearchPollInterval
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultPollTimeout
	}
	deadlineAt := time.Now().Add(deadline)

	for {
		if Cancelled(ctx) {
			return nil, false, nil
		}

		job, err := client.GetResearch(ctx, researchID)
		if err != nil {
			return nil, false, taskerror.FromError(step, err)
		}
		if job.Status == "completed" || job.Status == "failed" {
			return job, false, nil
		}
		if time.Now().After(deadlineAt) {
			return job, true, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, nil
		case <-time.After(interval):
		}
	}
}
