package workflow

import (
	"context"

	"github.com/cartograph-dev/cartograph/upstream"
)

// CollectorMultiplier is the factor applied to a caller-requested count to
// absorb upstream over-recall.
const CollectorMultiplier = 2

// ItemCap returns the hard cap CollectItems enforces for a caller-requested
// count, defaulting count to defaultCount when zero or negative.
func ItemCap(count, defaultCount int) int {
	if count <= 0 {
		count = defaultCount
	}
	return count * CollectorMultiplier
}

const listPageSize = 50

// CollectItems iterates a webset's streamed item listing, stopping once cap
// items have been collected (truncating the last page if it overshoots),
// the upstream listing is exhausted, or the task is cancelled.
func CollectItems(ctx context.Context, client upstream.Client, websetID string, cap int) ([]upstream.Item, Bounds, error) {
	var items []upstream.Item
	cursor := ""

	for {
		if Cancelled(ctx) {
			return items, Bounds{Returned: len(items), Total: len(items)}, nil
		}

		remaining := cap - len(items)
		if remaining <= 0 {
			break
		}
		limit := remaining
		if limit > listPageSize {
			limit = listPageSize
		}

		page, err := client.ListItems(ctx, websetID, cursor, limit)
		if err != nil {
			return items, Bounds{}, err
		}
		items = append(items, page.Items...)

		if len(items) >= cap {
			truncated := page.NextCursor != "" || len(items) > cap
			if len(items) > cap {
				items = items[:cap]
			}
			return items, Bounds{Returned: len(items), Total: len(items), Truncated: truncated}, nil
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return items, Bounds{Returned: len(items), Total: len(items)}, nil
}

// EnrichmentDefs indexes a webset's enrichment definitions by id, the
// lookup projection.ProjectItem and qd.winnow's fitness scorer both need.
func EnrichmentDefs(ws *upstream.Webset) map[string]upstream.EnrichmentDefinition {
	defs := make(map[string]upstream.EnrichmentDefinition, len(ws.Enrichments))
	for _, d := range ws.Enrichments {
		defs[d.ID] = d
	}
	return defs
}
