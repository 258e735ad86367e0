package upstream

import "context"

// Client is the facade workflows use to reach the upstream search and
// enrichment API. Implementations must classify failures per the taxonomy
// in taskerror (validation is the caller's responsibility; everything this
// client returns is either nil or an *taskerror.StepError: upstream failures
// are tagged UpstreamTransient/UpstreamTerminal, a context cancelled while
// waiting or in flight is tagged Cancelled, and a request that cannot be
// built or encoded is tagged Internal).
type Client interface {
	// CreateWebset creates a dataset with one initial search and returns it
	// in its initial (usually "pending" or "running") status.
	CreateWebset(ctx context.Context, req CreateWebsetRequest) (*Webset, error)

	// GetWebset fetches the current state of a dataset, including its
	// searches' live progress.
	GetWebset(ctx context.Context, id string) (*Webset, error)

	// CancelWebset requests upstream cancellation of a dataset. It is
	// idempotent: cancelling an already-cancelled or completed webset is
	// not an error.
	CancelWebset(ctx context.Context, id string) error

	// DeleteWebset permanently removes a dataset upstream.
	DeleteWebset(ctx context.Context, id string) error

	// ListItems streams one page of items for a dataset. Pass an empty
	// cursor to start from the beginning; continue while NextCursor is
	// non-empty.
	ListItems(ctx context.Context, websetID string, cursor string, limit int) (*ItemPage, error)

	// CreateMonitor registers a recurring schedule on a dataset.
	CreateMonitor(ctx context.Context, websetID string, cron, timezone string) (*Monitor, error)

	// CreateResearch dispatches a deep-research job.
	CreateResearch(ctx context.Context, req CreateResearchRequest) (*ResearchJob, error)

	// GetResearch fetches the current state of a research job.
	GetResearch(ctx context.Context, id string) (*ResearchJob, error)
}
