package semanticcron

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSnapshot builds a snapshot with a random set of joined entities, used
// to check that two identical snapshots produce an empty newJoins
// and lostJoins delta regardless of their timestamps or lens summaries.
func genSnapshot() gopter.Gen {
	return gen.SliceOfN(5, gen.IntRange(0, 2)).Map(func(entityIdx []int) Snapshot {
		seen := map[int]bool{}
		var entities []JoinedEntity
		for _, i := range entityIdx {
			if seen[i] {
				continue
			}
			seen[i] = true
			entities = append(entities, JoinedEntity{
				Name:            entityName(i),
				PresentInLenses: []string{"A", "B"},
			})
		}
		return Snapshot{
			Lenses: map[string]LensSummary{"A": {ShapedCount: len(entities)}},
			Join:   JoinResult{Entities: entities},
			Signal: SignalResult{Fired: len(entities) > 0},
		}
	})
}

func TestIdenticalSnapshotsProduceEmptyJoinDeltaProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("no upstream change means no new or lost joins", prop.ForAll(
		func(snap Snapshot, earlierOffsetMinutes int) bool {
			earlier := snap
			earlier.EvaluatedAt = snap.EvaluatedAt.Add(-time.Duration(earlierOffsetMinutes) * time.Minute)
			later := snap
			later.EvaluatedAt = snap.EvaluatedAt

			d := ComputeDelta(earlier, later)
			return len(d.NewJoins) == 0 && len(d.LostJoins) == 0
		},
		genSnapshot(),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}
