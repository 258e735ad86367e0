package semanticcron

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genLensResults builds a random set of lens results with shaped items
// sharing a small pool of names/urls, enough entity-folding collisions to
// exercise minLensOverlap filtering and the temporal pairing condition.
func genLensResults() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(2, 4),
		gen.SliceOfN(10, gen.IntRange(0, 2)),  // entity index per item, 3 entities
		gen.SliceOfN(10, gen.IntRange(0, 3)),  // lens index per item
		gen.SliceOfN(10, gen.IntRange(0, 20)), // hours offset per item
	).Map(func(vals []interface{}) []LensResult {
		numLenses := vals[0].(int)
		entityIdx := vals[1].([]int)
		lensIdx := vals[2].([]int)
		hourOffsets := vals[3].([]int)

		byLens := make(map[int][]ShapedItem)
		base := time.Unix(1700000000, 0)
		for i := range entityIdx {
			lens := lensIdx[i] % numLenses
			entity := entityIdx[i]
			byLens[lens] = append(byLens[lens], ShapedItem{
				ItemID:    string(rune('a' + i)),
				LensID:    lensName(lens),
				Name:      entityName(entity),
				CreatedAt: base.Add(time.Duration(hourOffsets[i]) * time.Hour),
			})
		}

		results := make([]LensResult, numLenses)
		for l := 0; l < numLenses; l++ {
			results[l] = LensResult{LensID: lensName(l), Shaped: byLens[l], TotalItems: len(byLens[l])}
		}
		return results
	})
}

func lensName(i int) string { return string(rune('A' + i)) }
func entityName(i int) string {
	return []string{"Acme Corp", "Globex Inc", "Initech LLC"}[i%3]
}

// Every returned joined entity's lens set is at least minLensOverlap.
func TestJoinEntityMinLensOverlapProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("joined entities respect minLensOverlap", prop.ForAll(
		func(lensResults []LensResult, minOverlap int) bool {
			rule := JoinRule{By: "entity", MinLensOverlap: minOverlap, NameThreshold: 0.5}
			result := Join(rule, lensResults)
			for _, e := range result.Entities {
				if len(e.PresentInLenses) < minOverlap {
					return false
				}
			}
			return true
		},
		genLensResults(),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}

// Every entity returned by the entity+temporal join has at least two
// timestamps from distinct lenses within the configured window.
func TestJoinEntityTemporalWindowProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("entity+temporal entities have a qualifying timestamp pair", prop.ForAll(
		func(lensResults []LensResult, windowHours int) bool {
			rule := JoinRule{
				By:             "entity+temporal",
				MinLensOverlap: 1,
				NameThreshold:  0.5,
				Temporal:       &TemporalWindow{Days: float64(windowHours) / 24},
			}
			result := Join(rule, lensResults)
			window := time.Duration(windowHours) * time.Hour
			for _, e := range result.Entities {
				if !hasTemporalPair(e.Timestamps, window) {
					return false
				}
			}
			return true
		},
		genLensResults(),
		gen.IntRange(1, 48),
	))

	properties.TestingRun(t)
}

func TestJoinTemporalModeFindsPairsWithinWindow(t *testing.T) {
	base := time.Unix(1700000000, 0)
	lensResults := []LensResult{
		{LensID: "A", Shaped: []ShapedItem{{ItemID: "1", LensID: "A", CreatedAt: base}}},
		{LensID: "B", Shaped: []ShapedItem{{ItemID: "2", LensID: "B", CreatedAt: base.Add(2 * time.Hour)}}},
		{LensID: "C", Shaped: []ShapedItem{{ItemID: "3", LensID: "C", CreatedAt: base.Add(48 * time.Hour)}}},
	}
	rule := JoinRule{By: "temporal", Temporal: &TemporalWindow{Days: 1}}
	result := Join(rule, lensResults)
	if len(result.Entities) != 0 {
		t.Fatalf("temporal mode must not produce joined entities")
	}
	if len(result.LensesWithEvidence) != 2 {
		t.Fatalf("expected exactly lenses A and B in evidence, got %v", result.LensesWithEvidence)
	}
}
