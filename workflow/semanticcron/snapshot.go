package semanticcron

import "time"

// LensSummary is one lens's contribution to a snapshot: webset id, total
// items, shaped count, shape list.
type LensSummary struct {
	WebsetID    string   `json:"websetId"`
	TotalItems  int      `json:"totalItems"`
	ShapedCount int      `json:"shapedCount"`
	Shapes      []string `json:"shapes,omitempty"`
}

// Snapshot is the durable external state of a semantic cron evaluation.
// Callers re-supply the previous snapshot on re-evaluation to compute a
// Delta; the system itself does not persist it.
type Snapshot struct {
	EvaluatedAt time.Time              `json:"evaluatedAt"`
	Lenses      map[string]LensSummary `json:"lenses"`
	Join        JoinResult             `json:"join"`
	Signal      SignalResult           `json:"signal"`
}

// BuildSnapshot assembles the {evaluatedAt, lenses, join, signal} record
// from a completed evaluation's intermediate results.
func BuildSnapshot(evaluatedAt time.Time, cfg *Config, lensResults []LensResult, join JoinResult, signal SignalResult) Snapshot {
	lenses := make(map[string]LensSummary, len(lensResults))
	for _, lr := range lensResults {
		shapeLabels := shapeLabelsFor(cfg, lr.LensID)
		lenses[lr.LensID] = LensSummary{
			WebsetID:    lr.WebsetID,
			TotalItems:  lr.TotalItems,
			ShapedCount: len(lr.Shaped),
			Shapes:      shapeLabels,
		}
	}
	return Snapshot{
		EvaluatedAt: evaluatedAt,
		Lenses:      lenses,
		Join:        join,
		Signal:      signal,
	}
}

// shapeLabelsFor names the shapes bound to a lens by their combinator
// ("all" or "any"), a compact human-readable label since shapes carry no
// identifier of their own.
func shapeLabelsFor(cfg *Config, lensID string) []string {
	shapes := cfg.ShapesForLens(lensID)
	if len(shapes) == 0 {
		return nil
	}
	labels := make([]string, len(shapes))
	for i, s := range shapes {
		labels[i] = normalizeCombinator(s.Combinator)
	}
	return labels
}
