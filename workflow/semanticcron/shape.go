package semanticcron

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/cartograph-dev/cartograph/upstream"
)

// ResolvedEnrichments re-keys a single item's enrichment results by their
// natural-language description, the form the shape evaluator consumes.
type ResolvedEnrichments map[string]upstream.EnrichmentResult

// ResolveEnrichments builds the description-indexed bag for one item given
// a lens's enrichment-id-to-description map.
func ResolveEnrichments(item upstream.Item, descByID map[string]string) ResolvedEnrichments {
	out := make(ResolvedEnrichments, len(item.Enrichments))
	for _, e := range item.Enrichments {
		desc, ok := descByID[e.EnrichmentID]
		if !ok {
			continue
		}
		out[desc] = e
	}
	return out
}

// DescriptionsByID builds the enrichment-id-to-description map a lens's
// collected items resolve against.
func DescriptionsByID(defs map[string]upstream.EnrichmentDefinition) map[string]string {
	out := make(map[string]string, len(defs))
	for id, d := range defs {
		out[id] = d.Description
	}
	return out
}

// PassesEvaluationFilter applies the permissive evaluation pre-filter:
// an item with no evaluations passes automatically; one with evaluations
// must have at least one satisfied "yes".
func PassesEvaluationFilter(item upstream.Item) bool {
	if len(item.Evaluations) == 0 {
		return true
	}
	for _, e := range item.Evaluations {
		if strings.EqualFold(e.Satisfied, "yes") {
			return true
		}
	}
	return false
}

// IsShaped reports whether item is shaped for its lens: an
// item is shaped if any of the lens's shapes pass, or if the lens has no
// shapes bound to it at all.
func IsShaped(shapes []Shape, resolved ResolvedEnrichments) bool {
	if len(shapes) == 0 {
		return true
	}
	for _, s := range shapes {
		if ShapePasses(s, resolved) {
			return true
		}
	}
	return false
}

// ShapePasses evaluates one shape's conditions against resolved enrichment
// values, combining them with the shape's combinator (default "all").
func ShapePasses(shape Shape, resolved ResolvedEnrichments) bool {
	combinator := normalizeCombinator(shape.Combinator)
	if len(shape.Conditions) == 0 {
		return true
	}
	if combinator == "any" {
		for _, c := range shape.Conditions {
			if EvaluateCondition(c, resolved) {
				return true
			}
		}
		return false
	}
	for _, c := range shape.Conditions {
		if !EvaluateCondition(c, resolved) {
			return false
		}
	}
	return true
}

// EvaluateCondition applies one condition operator to the enrichment value
// it names. A missing or empty result fails
// every operator except exists, which simply returns false.
func EvaluateCondition(c Condition, resolved ResolvedEnrichments) bool {
	result, ok := resolved[c.Enrichment]
	first := ""
	if ok {
		first = result.FirstResult()
	}

	switch strings.ToLower(c.Operator) {
	case "exists":
		return first != ""
	case "gte", "gt", "lte", "lt", "eq":
		if first == "" {
			return false
		}
		got, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
		if err != nil {
			return false
		}
		want, ok := numericValue(c.Value)
		if !ok {
			return false
		}
		switch strings.ToLower(c.Operator) {
		case "gte":
			return got >= want
		case "gt":
			return got > want
		case "lte":
			return got <= want
		case "lt":
			return got < want
		default: // eq
			return got == want
		}
	case "contains":
		if first == "" {
			return false
		}
		want, ok := c.Value.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(first), strings.ToLower(want))
	case "matches":
		if first == "" {
			return false
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(first)
	case "oneof":
		if first == "" {
			return false
		}
		for _, v := range conditionValues(c) {
			if strings.EqualFold(first, v) {
				return true
			}
		}
		return false
	case "withindays":
		if first == "" {
			return false
		}
		days, ok := numericValue(c.Value)
		if !ok {
			return false
		}
		ts, err := dateparse.ParseAny(first)
		if err != nil {
			return false
		}
		window := time.Duration(days * float64(24*time.Hour))
		diff := time.Since(ts)
		if diff < 0 {
			diff = -diff
		}
		return diff <= window
	default:
		return false
	}
}

// numericValue coerces a condition's JSON-decoded Value (float64, or a
// numeric string) to a float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// conditionValues returns the candidate set for a oneOf condition,
// accepting either the dedicated Values field or a Value that decoded as a
// JSON array of strings.
func conditionValues(c Condition) []string {
	if len(c.Values) > 0 {
		return c.Values
	}
	if arr, ok := c.Value.([]any); ok {
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
