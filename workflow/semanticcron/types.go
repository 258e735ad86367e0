package semanticcron

import "time"

// ShapedItem is one collected item that passed its lens's evaluation
// pre-filter and shape test, reduced to the fields the join engine needs:
// projected identity, enrichment values indexed by description, and the
// item's creation timestamp.
type ShapedItem struct {
	ItemID      string
	LensID      string
	Name        string
	URL         string
	Enrichments map[string]string
	CreatedAt   time.Time
}

// LensResult is one lens's contribution after collection and shape
// evaluation: the resolved webset id, its total item count, and the
// subset of items that were shaped.
type LensResult struct {
	LensID     string
	WebsetID   string
	TotalItems int
	Shaped     []ShapedItem
}

// LensTimestamp pairs a lens id with one of a joined entity's evidence
// timestamps, used by the entity+temporal join mode.
type LensTimestamp struct {
	LensID    string    `json:"lensId"`
	CreatedAt time.Time `json:"createdAt"`
}

// JoinedEntity is one canonical entity folded together from shaped items
// across lenses, carrying a per-lens snapshot of the enrichment values that
// contributed to the match.
type JoinedEntity struct {
	Name              string                       `json:"name"`
	URL               string                       `json:"url,omitempty"`
	ItemID            string                       `json:"itemId,omitempty"`
	PresentInLenses   []string                     `json:"presentInLenses"`
	Timestamps        []LensTimestamp              `json:"timestamps,omitempty"`
	EnrichmentsByLens map[string]map[string]string `json:"enrichmentsByLens,omitempty"`
}

func (e *JoinedEntity) addEvidence(lensID string, item ShapedItem) {
	found := false
	for _, l := range e.PresentInLenses {
		if l == lensID {
			found = true
			break
		}
	}
	if !found {
		e.PresentInLenses = append(e.PresentInLenses, lensID)
	}
	e.Timestamps = append(e.Timestamps, LensTimestamp{LensID: lensID, CreatedAt: item.CreatedAt})
	if len(item.Enrichments) > 0 {
		if e.EnrichmentsByLens == nil {
			e.EnrichmentsByLens = make(map[string]map[string]string)
		}
		snapshot := e.EnrichmentsByLens[lensID]
		if snapshot == nil {
			snapshot = make(map[string]string, len(item.Enrichments))
			e.EnrichmentsByLens[lensID] = snapshot
		}
		for desc, v := range item.Enrichments {
			snapshot[desc] = v
		}
	}
}

// CanonicalKey returns the stable identity used for delta computation:
// URL when present, otherwise name, otherwise the first item id the entity
// was seeded from.
func (e *JoinedEntity) CanonicalKey() string {
	if e.URL != "" {
		return "url:" + e.URL
	}
	if e.Name != "" {
		return "name:" + e.Name
	}
	return "item:" + e.ItemID
}

// JoinResult is the output of the join engine: either a set of joined
// entities (entity, entity+temporal modes) or a lens-evidence set
// (temporal, cooccurrence modes).
type JoinResult struct {
	Entities           []JoinedEntity `json:"entities,omitempty"`
	LensesWithEvidence []string       `json:"lensesWithEvidence,omitempty"`
}
