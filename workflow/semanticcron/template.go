package semanticcron

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// templateVarPattern matches a {{identifier}} token anywhere in the raw
// configuration text, including inside JSON string literals: substitution
// treats the configuration as opaque text, not a parsed structure.
var templateVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// ExpandTemplate substitutes every {{var}} token in raw from vars, then
// scans the result for any token that remained unresolved. An unresolved
// token is a validation failure naming every distinct residual
// identifier.
func ExpandTemplate(raw []byte, vars map[string]string) ([]byte, error) {
	expanded := templateVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := templateVarPattern.FindSubmatch(match)[1]
		if v, ok := vars[string(name)]; ok {
			return []byte(escapeForJSONString(v))
		}
		return match
	})

	residual := templateVarPattern.FindAllSubmatch(expanded, -1)
	if len(residual) == 0 {
		return expanded, nil
	}

	seen := make(map[string]bool, len(residual))
	var names []string
	for _, m := range residual {
		name := string(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, "{{"+name+"}}")
		}
	}
	sort.Strings(names)
	return nil, taskerror.Validation("validate", "unresolved template variables: %s", strings.Join(names, ", "))
}

// escapeForJSONString escapes backslashes and double quotes in a
// substituted value so dropping it into a JSON string literal in place of
// a {{var}} token cannot corrupt the surrounding document.
func escapeForJSONString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
