package semanticcron

import (
	"time"

	"github.com/cartograph-dev/cartograph/textsim"
)

// Join dispatches to one of the four join modes named by rule.By.
func Join(rule JoinRule, lensResults []LensResult) JoinResult {
	threshold := rule.NameThreshold
	if threshold <= 0 {
		threshold = DefaultNameThreshold
	}
	minOverlap := rule.MinLensOverlap
	if minOverlap <= 0 {
		minOverlap = DefaultMinLensOverlap
	}
	var window time.Duration
	if rule.Temporal != nil {
		window = daysToDuration(rule.Temporal.Days)
	}

	switch rule.By {
	case "entity+temporal":
		entities := buildEntities(lensResults, threshold)
		filtered := filterEntities(entities, minOverlap, func(e *JoinedEntity) bool {
			return hasTemporalPair(e.Timestamps, window)
		})
		return JoinResult{Entities: filtered}
	case "temporal":
		return JoinResult{LensesWithEvidence: temporalEvidence(lensResults, window)}
	case "cooccurrence":
		return JoinResult{LensesWithEvidence: cooccurrenceEvidence(lensResults, rule.Temporal)}
	default: // "entity"
		entities := buildEntities(lensResults, threshold)
		filtered := filterEntities(entities, minOverlap, nil)
		return JoinResult{Entities: filtered}
	}
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// buildEntities folds shaped items across lenses into canonical entities:
// walk lens results in order,
// match first by exact URL then by Dice-bigram name similarity, otherwise
// start a new entry.
func buildEntities(lensResults []LensResult, threshold float64) []*JoinedEntity {
	var entities []*JoinedEntity
	byURL := map[string]*JoinedEntity{}

	for _, lr := range lensResults {
		for _, item := range lr.Shaped {
			match := matchEntity(entities, byURL, item, threshold)
			if match == nil {
				match = &JoinedEntity{Name: item.Name, URL: item.URL, ItemID: item.ItemID}
				entities = append(entities, match)
				if item.URL != "" {
					byURL[item.URL] = match
				}
			} else {
				if match.URL == "" && item.URL != "" {
					match.URL = item.URL
					byURL[item.URL] = match
				}
				if match.Name == "" && item.Name != "" {
					match.Name = item.Name
				}
			}
			match.addEvidence(lr.LensID, item)
		}
	}
	return entities
}

func matchEntity(entities []*JoinedEntity, byURL map[string]*JoinedEntity, item ShapedItem, threshold float64) *JoinedEntity {
	if item.URL != "" {
		if e, ok := byURL[item.URL]; ok {
			return e
		}
	}
	if item.Name == "" {
		return nil
	}
	for _, e := range entities {
		if e.Name != "" && textsim.Dice(e.Name, item.Name) >= threshold {
			return e
		}
	}
	return nil
}

// filterEntities keeps only entities meeting the lens-overlap floor and,
// if extra is non-nil, an additional predicate (the entity+temporal
// window requirement).
func filterEntities(entities []*JoinedEntity, minOverlap int, extra func(*JoinedEntity) bool) []JoinedEntity {
	out := make([]JoinedEntity, 0, len(entities))
	for _, e := range entities {
		if len(e.PresentInLenses) < minOverlap {
			continue
		}
		if extra != nil && !extra(e) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// hasTemporalPair reports whether at least two timestamps from distinct
// lenses fall within window of each other.
func hasTemporalPair(timestamps []LensTimestamp, window time.Duration) bool {
	for i := 0; i < len(timestamps); i++ {
		for j := i + 1; j < len(timestamps); j++ {
			if timestamps[i].LensID == timestamps[j].LensID {
				continue
			}
			if absDuration(timestamps[i].CreatedAt.Sub(timestamps[j].CreatedAt)) <= window {
				return true
			}
		}
	}
	return false
}

// temporalEvidence implements the "temporal" join mode: no entity
// identity, lens-evidence set is every lens id for which some pair of
// items from two different lenses fall within window of each other.
func temporalEvidence(lensResults []LensResult, window time.Duration) []string {
	evidence := map[string]bool{}
	for i := 0; i < len(lensResults); i++ {
		for j := i + 1; j < len(lensResults); j++ {
			if pairWithinWindow(lensResults[i].Shaped, lensResults[j].Shaped, window) {
				evidence[lensResults[i].LensID] = true
				evidence[lensResults[j].LensID] = true
			}
		}
	}
	return sortedKeys(evidence, lensResults)
}

func pairWithinWindow(a, b []ShapedItem, window time.Duration) bool {
	for _, ia := range a {
		for _, ib := range b {
			if absDuration(ia.CreatedAt.Sub(ib.CreatedAt)) <= window {
				return true
			}
		}
	}
	return false
}

// cooccurrenceEvidence implements the "cooccurrence" join mode: every lens
// with at least one shaped item, optionally restricted to those whose
// earliest shaped-item timestamp falls within the temporal window of the
// earliest timestamp across all lenses.
func cooccurrenceEvidence(lensResults []LensResult, window *TemporalWindow) []string {
	var earliestOverall time.Time
	earliestByLens := map[string]time.Time{}
	present := map[string]bool{}

	for _, lr := range lensResults {
		if len(lr.Shaped) == 0 {
			continue
		}
		present[lr.LensID] = true
		earliest := lr.Shaped[0].CreatedAt
		for _, item := range lr.Shaped[1:] {
			if item.CreatedAt.Before(earliest) {
				earliest = item.CreatedAt
			}
		}
		earliestByLens[lr.LensID] = earliest
		if earliestOverall.IsZero() || earliest.Before(earliestOverall) {
			earliestOverall = earliest
		}
	}

	if window == nil {
		return sortedKeys(present, lensResults)
	}

	w := daysToDuration(window.Days)
	filtered := map[string]bool{}
	for lensID := range present {
		if absDuration(earliestByLens[lensID].Sub(earliestOverall)) <= w {
			filtered[lensID] = true
		}
	}
	return sortedKeys(filtered, lensResults)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// sortedKeys returns the lens ids in set, ordered by their declaration
// order in lensResults rather than map iteration order.
func sortedKeys(set map[string]bool, lensResults []LensResult) []string {
	out := make([]string, 0, len(set))
	for _, lr := range lensResults {
		if set[lr.LensID] {
			out = append(out, lr.LensID)
		}
	}
	return out
}
