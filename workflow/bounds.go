package workflow

// Bounds describes how a CollectItems result has been capped relative to
// the full upstream listing.
type Bounds struct {
	// Returned is how many items the collector actually returned.
	Returned int `json:"returned"`
	// Total is the number of items collected (the same value as Returned);
	// the upstream listing reports no overall count.
	Total int `json:"total"`
	// Truncated reports whether the cap stopped collection before the
	// upstream listing was exhausted.
	Truncated bool `json:"truncated"`
}
