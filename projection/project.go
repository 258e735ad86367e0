// Package projection reduces verbose upstream objects to decision-relevant
// shapes for the agent boundary. Internal workflow code keeps working with
// raw upstream.Item values (which carry the evaluation metadata classifiers
// need); only handler-facing outputs pass through this package.
package projection

import "github.com/cartograph-dev/cartograph/upstream"

// Evaluation is the stripped-down view of an upstream evaluation.
type Evaluation struct {
	Criterion string `json:"criterion"`
	Satisfied string `json:"satisfied"`
}

// Enrichment is the stripped-down, description-indexed view of an
// enrichment result. Unlike upstream.EnrichmentResult, it never exposes the
// enrichment id or status.
type Enrichment struct {
	Description string   `json:"description"`
	Format      string   `json:"format"`
	Result      []string `json:"result"`
}

// Item is the projected shape every multi-item output exposes. It never
// carries raw content, reasoning, enrichment ids/statuses, or internal
// timestamps.
type Item struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	EntityType  string       `json:"entityType"`
	Description string       `json:"description"`
	Evaluations []Evaluation `json:"evaluations"`
	Enrichments []Enrichment `json:"enrichments"`
}

// Envelope is the mandatory wrapper for bulk item results.
type Envelope struct {
	Data     []Item `json:"data"`
	Total    int    `json:"total"`
	Included int    `json:"included"`
	Excluded int    `json:"excluded"`
}

// entityPrecedence is the ordered list of properties-bag keys tried when
// deriving an item's display name and entity type.
var entityPrecedence = []struct {
	key   string
	field string
}{
	{"company", "name"},
	{"person", "name"},
	{"article", "title"},
	{"researchPaper", "title"},
	{"custom", "title"},
}

// ProjectItem converts one raw upstream item into its projection-safe
// shape. defs resolves enrichment ids to the natural-language description
// and format recorded on the webset at creation time; enrichments whose id
// is not present in defs are dropped rather than surfaced with a raw id.
func ProjectItem(item upstream.Item, defs map[string]upstream.EnrichmentDefinition) Item {
	name, entityType := extractIdentity(item.Properties, item.Description)

	evals := make([]Evaluation, 0, len(item.Evaluations))
	for _, e := range item.Evaluations {
		evals = append(evals, Evaluation{Criterion: e.Criterion, Satisfied: e.Satisfied})
	}

	enrichments := make([]Enrichment, 0, len(item.Enrichments))
	for _, er := range item.Enrichments {
		def, ok := defs[er.EnrichmentID]
		if !ok {
			continue
		}
		enrichments = append(enrichments, Enrichment{
			Description: def.Description,
			Format:      def.Format,
			Result:      er.Result,
		})
	}

	return Item{
		ID:          item.ID,
		Name:        name,
		URL:         item.URL,
		EntityType:  entityType,
		Description: item.Description,
		Evaluations: evals,
		Enrichments: enrichments,
	}
}

// Reproject is the identity transform on an already-projected Item.
// Everything strippable has already been stripped by ProjectItem, so
// applying projection again changes nothing: this is what the projection
// idempotence invariant asserts.
func Reproject(item Item) Item {
	return item
}

// ProjectItems projects a batch of raw items into the mandatory bulk
// envelope, filtering out items with at least one evaluation and none of
// them satisfied. Items with zero evaluations always pass.
func ProjectItems(items []upstream.Item, defs map[string]upstream.EnrichmentDefinition) Envelope {
	env := Envelope{Total: len(items)}
	for _, it := range items {
		if !passesEvaluationFilter(it) {
			env.Excluded++
			continue
		}
		env.Data = append(env.Data, ProjectItem(it, defs))
		env.Included++
	}
	return env
}

func passesEvaluationFilter(item upstream.Item) bool {
	if len(item.Evaluations) == 0 {
		return true
	}
	for _, e := range item.Evaluations {
		if e.Satisfied == "yes" {
			return true
		}
	}
	return false
}

// Identity returns the display name and entity type an item would project
// to. Exposed for workflows
// (convergent.search, semantic cron's entity join) that need an item's
// canonical name before the handler-boundary projection step.
func Identity(item upstream.Item) (name, entityType string) {
	return extractIdentity(item.Properties, item.Description)
}

// MatchableName returns the name an item contributes to fuzzy entity
// matching: the projected display name, or "" when the item has no
// derivable identity. The "unknown" placeholder must never participate in
// similarity comparisons.
func MatchableName(item upstream.Item) string {
	name, _ := extractIdentity(item.Properties, item.Description)
	if name == "unknown" && item.Description == "" {
		return ""
	}
	return name
}

func extractIdentity(properties map[string]any, description string) (name, entityType string) {
	for _, p := range entityPrecedence {
		bag, ok := properties[p.key].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := bag[p.field].(string); ok && v != "" {
			return v, p.key
		}
	}
	if description != "" {
		return description, "unknown"
	}
	return "unknown", "unknown"
}
