package semanticcron

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LensDelta is one lens's change since the previous snapshot.
type LensDelta struct {
	NewShapedItems int `json:"newShapedItems"`
}

// SignalTransition compares a signal's fired bit and matching-entity set
// across two snapshots.
type SignalTransition struct {
	Was          bool     `json:"was"`
	Now          bool     `json:"now"`
	Changed      bool     `json:"changed"`
	NewEntities  []string `json:"newEntities"`
	LostEntities []string `json:"lostEntities"`
}

// Delta is the computed difference between two snapshots of the same
// semantic cron.
type Delta struct {
	Lenses            map[string]LensDelta `json:"lenses"`
	NewJoins          []string             `json:"newJoins"`
	LostJoins         []string             `json:"lostJoins"`
	SignalTransition  SignalTransition     `json:"signalTransition"`
	TimeSinceLastEval string               `json:"timeSinceLastEval"`
}

// ComputeDelta computes per-lens new-shaped-item counts,
// joined-entity set differences (canonical key: URL preferred over name),
// the signal's fired/entity transition, and a human-readable elapsed-time
// string.
func ComputeDelta(prev, current Snapshot) Delta {
	lensDeltas := make(map[string]LensDelta, len(current.Lenses))
	for id, now := range current.Lenses {
		was := prev.Lenses[id]
		newShaped := now.ShapedCount - was.ShapedCount
		if newShaped < 0 {
			newShaped = 0
		}
		lensDeltas[id] = LensDelta{NewShapedItems: newShaped}
	}

	prevKeys := entityKeySet(prev.Join.Entities)
	currKeys := entityKeySet(current.Join.Entities)

	return Delta{
		Lenses:            lensDeltas,
		NewJoins:          setDifference(currKeys, prevKeys),
		LostJoins:         setDifference(prevKeys, currKeys),
		SignalTransition:  computeSignalTransition(prev.Signal, current.Signal),
		TimeSinceLastEval: formatElapsed(current.EvaluatedAt.Sub(prev.EvaluatedAt)),
	}
}

func entityKeySet(entities []JoinedEntity) map[string]bool {
	out := make(map[string]bool, len(entities))
	for _, e := range entities {
		out[e.CanonicalKey()] = true
	}
	return out
}

func setDifference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func computeSignalTransition(prev, current SignalResult) SignalTransition {
	prevSet := stringSet(prev.Entities)
	currSet := stringSet(current.Entities)
	return SignalTransition{
		Was:          prev.Fired,
		Now:          current.Fired,
		Changed:      prev.Fired != current.Fired,
		NewEntities:  setDifference(currSet, prevSet),
		LostEntities: setDifference(prevSet, currSet),
	}
}

func stringSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

// formatElapsed renders a duration as non-zero "d h m" parts joined by a
// single space, with minutes as the smallest reported unit. A duration
// under one minute renders as "0m".
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	totalMinutes := int(d.Minutes())
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes % (24 * 60)) / 60
	minutes := totalMinutes % 60

	var parts []string
	if days != 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours != 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
