package semanticcron

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// genTemplateCase builds a config-shaped JSON fragment with N distinct
// {{var}} tokens and a vars map covering a random subset of them, to test
// the round-trip guarantee: expansion either leaves no residual token or fails
// validation naming every residual.
func genTemplateCase() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 5),
		gen.SliceOfN(5, gen.Bool()),
	).Map(func(vals []interface{}) templateCase {
		n := vals[0].(int)
		resolve := vals[1].([]bool)

		var sb strings.Builder
		sb.WriteString(`{"query": "`)
		vars := map[string]string{}
		var unresolved []string
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("var%d", i)
			sb.WriteString(fmt.Sprintf("{{%s}} ", name))
			if i < len(resolve) && resolve[i] {
				vars[name] = fmt.Sprintf("value%d", i)
			} else {
				unresolved = append(unresolved, name)
			}
		}
		sb.WriteString(`"}`)
		return templateCase{raw: []byte(sb.String()), vars: vars, unresolved: unresolved}
	})
}

type templateCase struct {
	raw        []byte
	vars       map[string]string
	unresolved []string
}

func TestTemplateExpansionRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("expansion leaves no residual token, or fails naming every residual", prop.ForAll(
		func(tc templateCase) bool {
			expanded, err := ExpandTemplate(tc.raw, tc.vars)
			if len(tc.unresolved) == 0 {
				if err != nil {
					return false
				}
				return !templateVarPattern.Match(expanded)
			}
			if err == nil {
				return false
			}
			se, ok := err.(*taskerror.StepError)
			if !ok {
				return false
			}
			for _, name := range tc.unresolved {
				if !strings.Contains(se.Message, "{{"+name+"}}") {
					return false
				}
			}
			return true
		},
		genTemplateCase(),
	))

	properties.TestingRun(t)
}
