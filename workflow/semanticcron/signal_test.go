package semanticcron_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartograph-dev/cartograph/workflow/semanticcron"
)

func entity(name, url string, lenses ...string) semanticcron.JoinedEntity {
	return semanticcron.JoinedEntity{Name: name, URL: url, PresentInLenses: lenses}
}

func TestSignalAllRequiresEveryLens(t *testing.T) {
	declared := []string{"A", "B", "C"}
	rule := semanticcron.SignalRule{Type: "all"}

	partial := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{
		Entities: []semanticcron.JoinedEntity{entity("Acme", "https://acme.test", "A", "B")},
	}, declared)
	assert.False(t, partial.Fired)
	assert.Empty(t, partial.Entities)

	full := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{
		Entities: []semanticcron.JoinedEntity{entity("Acme", "https://acme.test", "A", "B", "C")},
	}, declared)
	assert.True(t, full.Fired)
	assert.Equal(t, []string{"Acme"}, full.Entities)
	assert.ElementsMatch(t, declared, full.SatisfiedBy)
}

func TestSignalThresholdDefaultsToTwo(t *testing.T) {
	rule := semanticcron.SignalRule{Type: "threshold"}
	declared := []string{"A", "B", "C"}

	one := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{
		Entities: []semanticcron.JoinedEntity{entity("Solo", "", "A")},
	}, declared)
	assert.False(t, one.Fired)

	two := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{
		Entities: []semanticcron.JoinedEntity{entity("Pair", "", "A", "C")},
	}, declared)
	assert.True(t, two.Fired)
}

// Over a bare lens-evidence set (temporal/cooccurrence joins) the signal
// fires on the evidence alone and reports no entities.
func TestSignalOverEvidenceSet(t *testing.T) {
	declared := []string{"A", "B"}
	rule := semanticcron.SignalRule{Type: "any"}

	none := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{LensesWithEvidence: []string{}}, declared)
	assert.False(t, none.Fired)
	assert.Empty(t, none.Entities)

	some := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{LensesWithEvidence: []string{"B"}}, declared)
	assert.True(t, some.Fired)
	assert.Equal(t, []string{"B"}, some.SatisfiedBy)
	assert.Empty(t, some.Entities)
}

func TestSignalCombinationReportsMatchedSet(t *testing.T) {
	declared := []string{"A", "B", "C", "D"}
	rule := semanticcron.SignalRule{Type: "combination", Sufficient: [][]string{{"A", "B"}, {"A", "C", "D"}}}

	result := semanticcron.EvaluateSignal(rule, semanticcron.JoinResult{
		Entities: []semanticcron.JoinedEntity{
			entity("Partial", "", "B", "C"),
			entity("Match", "", "A", "C", "D"),
		},
	}, declared)

	assert.True(t, result.Fired)
	assert.Equal(t, []string{"A", "C", "D"}, result.MatchedCombination)
	assert.Equal(t, []string{"Match"}, result.Entities)
}
