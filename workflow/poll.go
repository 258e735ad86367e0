package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/upstream"
)

// DefaultPollInterval is the poll-to-idle refresh cadence.
const DefaultPollInterval = 2 * time.Second

// DefaultPollTimeout is the default per-step poll-to-idle deadline.
const DefaultPollTimeout = 300 * time.Second

// PollOptions configures PollUntilIdle. Zero values fall back to the
// package defaults.
type PollOptions struct {
	Interval time.Duration
	Deadline time.Duration
}

// PollResult is the outcome of driving a webset to idle.
type PollResult struct {
	// Webset is the last-fetched state of the dataset, set when the webset
	// reached idle or the deadline elapsed; it is nil on cancellation.
	Webset *upstream.Webset
	// TimedOut reports that the per-step deadline elapsed before the
	// webset reached idle; the workflow may still use Webset's last-known
	// state for a partial result.
	TimedOut bool
	// Cancelled reports that the task was cancelled mid-poll; the caller
	// requested upstream cancellation of the webset on a best-effort
	// basis before returning.
	Cancelled bool
}

// PollUntilIdle drives a webset's lifecycle to WebsetIdle: refetch on a
// fixed cadence, mirror the latest search's {found, analyzed}
// into task progress, fail on a transition to Paused, time out without
// raising past the per-step deadline, and honor cancellation by requesting
// upstream cancel and returning early.
func PollUntilIdle(ctx context.Context, client upstream.Client, tracker *StepTracker, websetID, step string, opts PollOptions) (PollResult, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultPollTimeout
	}
	deadlineAt := time.Now().Add(deadline)

	for {
		if Cancelled(ctx) {
			_ = client.CancelWebset(context.Background(), websetID)
			return PollResult{Cancelled: true}, nil
		}

		ws, err := client.GetWebset(ctx, websetID)
		if err != nil {
			return PollResult{}, taskerror.FromError(step, err)
		}

		if last, ok := ws.LastSearch(); ok {
			tracker.Progress(step, fmt.Sprintf("found=%d analyzed=%d", last.Progress.Found, last.Progress.Analyzed))
		}

		switch ws.Status {
		case upstream.WebsetIdle:
			return PollResult{Webset: ws}, nil
		case upstream.WebsetPaused:
			return PollResult{}, taskerror.New(taskerror.KindUpstreamTerminal, step, fmt.Sprintf("webset %s paused", websetID))
		}

		if time.Now().After(deadlineAt) {
			return PollResult{Webset: ws, TimedOut: true}, nil
		}

		select {
		case <-ctx.Done():
			_ = client.CancelWebset(context.Background(), websetID)
			return PollResult{Cancelled: true}, nil
		case <-time.After(interval):
		}
	}
}
