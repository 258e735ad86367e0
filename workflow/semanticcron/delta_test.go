package semanticcron_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cartograph-dev/cartograph/workflow/semanticcron"
)

func snapshotAt(at time.Time, shaped map[string]int, entities []semanticcron.JoinedEntity, fired bool, names []string) semanticcron.Snapshot {
	lenses := make(map[string]semanticcron.LensSummary, len(shaped))
	for id, n := range shaped {
		lenses[id] = semanticcron.LensSummary{WebsetID: "ws_" + id, ShapedCount: n}
	}
	return semanticcron.Snapshot{
		EvaluatedAt: at,
		Lenses:      lenses,
		Join:        semanticcron.JoinResult{Entities: entities},
		Signal:      semanticcron.SignalResult{Fired: fired, Entities: names},
	}
}

func TestDeltaCountsNewShapedItemsPerLens(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := snapshotAt(t0, map[string]int{"A": 3, "B": 5}, nil, false, nil)
	curr := snapshotAt(t0.Add(time.Hour), map[string]int{"A": 7, "B": 2}, nil, false, nil)

	d := semanticcron.ComputeDelta(prev, curr)
	assert.Equal(t, 4, d.Lenses["A"].NewShapedItems)
	// A shrinking lens clamps to zero instead of reporting negative growth.
	assert.Equal(t, 0, d.Lenses["B"].NewShapedItems)
}

func TestDeltaJoinSetDifferencesPreferURLKeys(t *testing.T) {
	t0 := time.Now()
	prev := snapshotAt(t0, nil, []semanticcron.JoinedEntity{
		{Name: "Old Corp", URL: "https://old.test"},
	}, false, nil)
	curr := snapshotAt(t0.Add(time.Minute), nil, []semanticcron.JoinedEntity{
		{Name: "New Corp", URL: "https://new.test"},
		{Name: "Nameless"},
	}, false, nil)

	d := semanticcron.ComputeDelta(prev, curr)
	assert.ElementsMatch(t, []string{"url:https://new.test", "name:Nameless"}, d.NewJoins)
	assert.Equal(t, []string{"url:https://old.test"}, d.LostJoins)
}

func TestDeltaElapsedFormatting(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{30 * time.Second, "0m"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{26*time.Hour + 30*time.Minute, "1d 2h 30m"},
		{48 * time.Hour, "2d"},
	}
	for _, tc := range cases {
		prev := snapshotAt(t0, nil, nil, false, nil)
		curr := snapshotAt(t0.Add(tc.elapsed), nil, nil, false, nil)
		d := semanticcron.ComputeDelta(prev, curr)
		assert.Equal(t, tc.want, d.TimeSinceLastEval)
	}
}

// Two byte-identical snapshots yield an empty delta and an unchanged
// signal transition.
func TestDeltaOfIdenticalSnapshots(t *testing.T) {
	t0 := time.Now()
	snap := snapshotAt(t0, map[string]int{"A": 2}, []semanticcron.JoinedEntity{
		{Name: "Acme", URL: "https://acme.test"},
	}, true, []string{"Acme"})

	d := semanticcron.ComputeDelta(snap, snap)
	assert.Empty(t, d.NewJoins)
	assert.Empty(t, d.LostJoins)
	assert.Equal(t, 0, d.Lenses["A"].NewShapedItems)
	assert.False(t, d.SignalTransition.Changed)
	assert.Empty(t, d.SignalTransition.NewEntities)
	assert.Empty(t, d.SignalTransition.LostEntities)
}
