// Package semanticcron implements the declarative composite-signal
// evaluator: N independent lenses (websets) combined through shape
// evaluation, a cross-lens join, and a signal rule, with delta computation
// against a previously returned snapshot. It is invoked by the
// "semantic.cron" workflow registered in package workflow.
package semanticcron

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// configSchema is the structural shape every configuration must satisfy
// before any referential-integrity check runs: a config with no lenses, no
// shapes, or a missing join/signal is rejected outright.
const configSchema = `{
	"type": "object",
	"required": ["lenses", "shapes", "join", "signal"],
	"properties": {
		"lenses": {"type": "array", "minItems": 1},
		"shapes": {"type": "array", "minItems": 1},
		"join": {"type": "object", "required": ["by"]},
		"signal": {"type": "object", "required": ["type"]}
	}
}`

var compiledSchema *jsonschema.Schema

func init() {
	var doc any
	if err := json.Unmarshal([]byte(configSchema), &doc); err != nil {
		panic(fmt.Sprintf("semanticcron: invalid embedded schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.json", doc); err != nil {
		panic(fmt.Sprintf("semanticcron: add schema resource: %v", err))
	}
	s, err := c.Compile("config.json")
	if err != nil {
		panic(fmt.Sprintf("semanticcron: compile schema: %v", err))
	}
	compiledSchema = s
}

// EnrichmentSpec describes one enrichment to attach when a lens creates a
// new webset.
type EnrichmentSpec struct {
	Description string `json:"description"`
	Format      string `json:"format"`
}

// Lens is one independent sensor in a semantic cron: either a new-search
// source spec, or a reference to an existing webset via ExistingWebsetID.
type Lens struct {
	ID               string           `json:"id"`
	Query            string           `json:"query,omitempty"`
	EntityType       string           `json:"entityType,omitempty"`
	Criteria         []string         `json:"criteria,omitempty"`
	Enrichments      []EnrichmentSpec `json:"enrichments,omitempty"`
	Count            int              `json:"count,omitempty"`
	ExistingWebsetID string           `json:"existingWebsetId,omitempty"`
}

// Condition is one boolean test against a resolved enrichment value.
type Condition struct {
	Enrichment string   `json:"enrichment"`
	Operator   string   `json:"operator"`
	Value      any      `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

// Shape binds a boolean combination of conditions to one lens.
type Shape struct {
	LensID     string      `json:"lensId"`
	Combinator string      `json:"combinator"` // all|any
	Conditions []Condition `json:"conditions"`
}

// TemporalWindow bounds a join evaluation to timestamps within
// Days of each other (entity+temporal, temporal, cooccurrence modes).
type TemporalWindow struct {
	Days float64 `json:"days"`
}

// JoinRule selects the cross-lens join mode and its parameters.
type JoinRule struct {
	By             string          `json:"by"` // entity|entity+temporal|temporal|cooccurrence
	NameThreshold  float64         `json:"nameThreshold,omitempty"`
	MinLensOverlap int             `json:"minLensOverlap,omitempty"`
	Temporal       *TemporalWindow `json:"temporal,omitempty"`
}

// DefaultNameThreshold is the Dice-coefficient floor used when a JoinRule
// does not set one.
const DefaultNameThreshold = 0.85

// DefaultMinLensOverlap is the minimum lens count a joined entity must
// reach when a JoinRule does not set one.
const DefaultMinLensOverlap = 2

// SignalRule composes the joined evidence into a single fired/not-fired
// bit.
type SignalRule struct {
	Type       string     `json:"type"` // all|any|threshold|combination
	Min        int        `json:"min,omitempty"`
	Sufficient [][]string `json:"sufficient,omitempty"`
}

// DefaultThresholdMin is the minimum lens count a "threshold" signal
// requires when Min is unset.
const DefaultThresholdMin = 2

// MonitorConfig requests an upstream recurring schedule on each lens's
// webset, attached only on an initial run.
type MonitorConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// Config is the tagged, validated form of a semantic cron's configuration
// document. Runtime-untyped JSON becomes this record once,
// at the validate step; every later stage assumes it is well-formed.
type Config struct {
	Name    string         `json:"name,omitempty"`
	Proxy   string         `json:"proxy,omitempty"`
	Lenses  []Lens         `json:"lenses"`
	Shapes  []Shape        `json:"shapes"`
	Join    JoinRule       `json:"join"`
	Signal  SignalRule     `json:"signal"`
	Monitor *MonitorConfig `json:"monitor,omitempty"`
}

// ParseConfig unmarshals raw (already template-expanded) JSON into a
// Config and runs Validate against it.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, taskerror.Validation("validate", "parse config: %v", err)
	}
	if err := Validate(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a config against the structural schema and
// the referential-integrity rules the schema cannot express: every shape's
// lensId must name a declared lens, and every lens id inside a signal's
// combination.sufficient must exist.
func Validate(raw []byte, cfg *Config) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return taskerror.Validation("validate", "parse config: %v", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return taskerror.Validation("validate", "config schema: %v", err)
	}

	lensIDs := make(map[string]bool, len(cfg.Lenses))
	for _, l := range cfg.Lenses {
		if l.ID == "" {
			return taskerror.Validation("validate", "lens missing id")
		}
		lensIDs[l.ID] = true
	}

	for _, s := range cfg.Shapes {
		if !lensIDs[s.LensID] {
			return taskerror.Validation("validate", "shape references undeclared lens %q", s.LensID)
		}
	}

	if cfg.Signal.Type == "combination" {
		for _, set := range cfg.Signal.Sufficient {
			for _, id := range set {
				if !lensIDs[id] {
					return taskerror.Validation("validate", "signal combination references undeclared lens %q", id)
				}
			}
		}
	}

	return nil
}

// LensByID returns the declared lens with the given id, or false if none
// exists.
func (c *Config) LensByID(id string) (Lens, bool) {
	for _, l := range c.Lenses {
		if l.ID == id {
			return l, true
		}
	}
	return Lens{}, false
}

// ShapesForLens returns every shape bound to the given lens id, in
// declaration order.
func (c *Config) ShapesForLens(lensID string) []Shape {
	var out []Shape
	for _, s := range c.Shapes {
		if s.LensID == lensID {
			out = append(out, s)
		}
	}
	return out
}

// LensIDs returns every declared lens id, in declaration order.
func (c *Config) LensIDs() []string {
	out := make([]string, len(c.Lenses))
	for i, l := range c.Lenses {
		out[i] = l.ID
	}
	return out
}

func normalizeCombinator(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "all"
	}
	return c
}
