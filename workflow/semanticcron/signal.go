package semanticcron

// SignalResult is the composite boolean output of a signal-rule
// evaluation.
type SignalResult struct {
	Fired              bool     `json:"fired"`
	RuleType           string   `json:"ruleType"`
	SatisfiedBy        []string `json:"satisfiedBy"`
	MatchedCombination []string `json:"matchedCombination,omitempty"`
	Entities           []string `json:"entities"`
}

// EvaluateSignal applies rule to join's output, dispatching on whether the
// join produced entities (entity/entity+temporal modes) or a bare
// lens-evidence set (temporal/cooccurrence modes).
func EvaluateSignal(rule SignalRule, join JoinResult, declaredLenses []string) SignalResult {
	if join.Entities != nil {
		return evaluateOverEntities(rule, join.Entities, declaredLenses)
	}
	return evaluateOverEvidence(rule, join.LensesWithEvidence, declaredLenses)
}

func evaluateOverEntities(rule SignalRule, entities []JoinedEntity, declaredLenses []string) SignalResult {
	var matching []JoinedEntity
	var matchedCombination []string
	satisfiedSet := map[string]bool{}

	for _, e := range entities {
		ok, combo := satisfies(rule, e.PresentInLenses, declaredLenses)
		if !ok {
			continue
		}
		matching = append(matching, e)
		if matchedCombination == nil && combo != nil {
			matchedCombination = combo
		}
		for _, l := range e.PresentInLenses {
			satisfiedSet[l] = true
		}
	}

	names := make([]string, len(matching))
	for i, e := range matching {
		names[i] = e.Name
		if names[i] == "" {
			names[i] = e.URL
		}
	}

	return SignalResult{
		Fired:              len(matching) > 0,
		RuleType:           rule.Type,
		SatisfiedBy:        unionOrdered(satisfiedSet, entities),
		MatchedCombination: matchedCombination,
		Entities:           names,
	}
}

func evaluateOverEvidence(rule SignalRule, evidence []string, declaredLenses []string) SignalResult {
	ok, combo := satisfies(rule, evidence, declaredLenses)
	return SignalResult{
		Fired:              ok,
		RuleType:           rule.Type,
		SatisfiedBy:        append([]string(nil), evidence...),
		MatchedCombination: combo,
		Entities:           []string{},
	}
}

// satisfies tests one lens-id set against rule, returning the matched
// sufficient combination when rule.Type is "combination".
func satisfies(rule SignalRule, lensIDs []string, declaredLenses []string) (bool, []string) {
	present := map[string]bool{}
	for _, l := range lensIDs {
		present[l] = true
	}

	switch rule.Type {
	case "any":
		return len(lensIDs) >= 1, nil
	case "threshold":
		min := rule.Min
		if min <= 0 {
			min = DefaultThresholdMin
		}
		return len(lensIDs) >= min, nil
	case "combination":
		for _, set := range rule.Sufficient {
			if coversAll(present, set) {
				return true, set
			}
		}
		return false, nil
	default: // "all"
		return coversAll(present, declaredLenses), nil
	}
}

func coversAll(present map[string]bool, set []string) bool {
	for _, l := range set {
		if !present[l] {
			return false
		}
	}
	return len(set) > 0
}

func unionOrdered(set map[string]bool, entities []JoinedEntity) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range entities {
		for _, l := range e.PresentInLenses {
			if set[l] && !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}
