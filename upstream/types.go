// Package upstream is a thin client facade over the external web-search and
// entity-enrichment API ("websets"). It owns only wire-shape types and HTTP
// plumbing; workflow semantics live above it.
package upstream

import "time"

// WebsetStatus is the composite lifecycle state of a dataset.
type WebsetStatus string

const (
	WebsetPending WebsetStatus = "pending"
	WebsetRunning WebsetStatus = "running"
	WebsetIdle    WebsetStatus = "idle"
	WebsetPaused  WebsetStatus = "paused"
)

// SearchProgress mirrors one search's live counters.
type SearchProgress struct {
	Found      int     `json:"found"`
	Analyzed   int     `json:"analyzed"`
	Completion float64 `json:"completion"`
	TimeLeft   string  `json:"timeLeft,omitempty"`
}

// CriterionFeedback is the live success rate for one search criterion,
// consumed by qd.winnow's descriptor feedback step.
type CriterionFeedback struct {
	Criterion   string  `json:"criterion"`
	SuccessRate float64 `json:"successRate"`
}

// Search is one query attached to a webset.
type Search struct {
	ID       string              `json:"id"`
	Query    string              `json:"query"`
	Progress SearchProgress      `json:"progress"`
	Criteria []CriterionFeedback `json:"criteria,omitempty"`
}

// EnrichmentDefinition describes an enrichment attached to a webset at
// creation time: a natural-language instruction and its expected result
// shape.
type EnrichmentDefinition struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Format      string `json:"format"` // number|options|text|date|email|phone|url
}

// Monitor is a recurring schedule bound to a webset.
type Monitor struct {
	ID       string `json:"id"`
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// Webset is the externally owned dataset the system references by id.
type Webset struct {
	ID          string                 `json:"id"`
	Status      WebsetStatus           `json:"status"`
	Searches    []Search               `json:"searches,omitempty"`
	Enrichments []EnrichmentDefinition `json:"enrichments,omitempty"`
	Monitors    []Monitor              `json:"monitors,omitempty"`
}

// LastSearch returns the most recently added search, or the zero value if
// the webset has none.
func (w Webset) LastSearch() (Search, bool) {
	if len(w.Searches) == 0 {
		return Search{}, false
	}
	return w.Searches[len(w.Searches)-1], true
}

// Evaluation records whether one search criterion was satisfied for an item.
type Evaluation struct {
	Criterion string `json:"criterion"`
	Satisfied string `json:"satisfied"` // yes|no|unclear
}

// EnrichmentResult is one enrichment's outcome for an item. Result is
// always stringified regardless of the enrichment's declared format.
type EnrichmentResult struct {
	EnrichmentID string   `json:"enrichmentId"`
	Status       string   `json:"status"` // pending|completed|cancelled
	Result       []string `json:"result,omitempty"`
}

// FirstResult returns the first result string, or "" if there is none.
func (r EnrichmentResult) FirstResult() string {
	if len(r.Result) == 0 {
		return ""
	}
	return r.Result[0]
}

// Item is one entity observed within a webset. Content is deliberately
// separate from Properties so callers are forced to opt into surfacing it.
type Item struct {
	ID          string             `json:"id"`
	Properties  map[string]any     `json:"properties"`
	Description string             `json:"description,omitempty"`
	URL         string             `json:"url,omitempty"`
	Content     string             `json:"content,omitempty"`
	Evaluations []Evaluation       `json:"evaluations,omitempty"`
	Enrichments []EnrichmentResult `json:"enrichments,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// ResearchJob is the upstream deep-research job resource.
type ResearchJob struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"` // pending|running|completed|failed
	Result           string         `json:"result,omitempty"`
	StructuredOutput map[string]any `json:"structuredOutput,omitempty"`
	Model            string         `json:"model,omitempty"`
}

// EntitySpec narrows a search to a particular entity type.
type EntitySpec struct {
	Type string `json:"type"` // company|person|article|researchPaper|custom
}

// CreateWebsetRequest constructs a new dataset with one initial search.
type CreateWebsetRequest struct {
	Query       string              `json:"query"`
	Entity      EntitySpec          `json:"entity"`
	Criteria    []string            `json:"criteria,omitempty"`
	Enrichments []EnrichmentRequest `json:"enrichments,omitempty"`
	Count       int                 `json:"count,omitempty"`
}

// EnrichmentRequest describes an enrichment to attach at webset creation.
type EnrichmentRequest struct {
	Description string `json:"description"`
	Format      string `json:"format"`
}

// CreateResearchRequest starts a deep-research job.
type CreateResearchRequest struct {
	Instructions string `json:"instructions"`
}

// ItemPage is one page of a streamed item listing.
type ItemPage struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
