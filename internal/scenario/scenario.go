package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

// Metadata describes the scenario as a whole.
type Metadata struct {
	Description string `json:"description"`
	EntityCount int    `json:"entity_count"`
}

// EntityState is one entry of the initial_state block.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// GeneratorSpec declares procedural noise for one chapter.
type GeneratorSpec struct {
	Rules      []Rule `json:"rules"`
	DurationMS int    `json:"duration_ms"`
}

// Rule expands into a synthetic event sequence for every matching entity.
type Rule struct {
	EntityPattern string    `json:"entity_pattern"`
	IntervalMS    int       `json:"interval_ms"`
	Noise         NoiseSpec `json:"noise"`
}

// Noise policy type tags.
const (
	NoiseRandomWalk = "random_walk"
	NoiseSinusoidal = "sinusoidal"
	NoiseCurve      = "curve"
	NoiseStochastic = "stochastic"
	NoiseDerived    = "derived"
)

// NoiseSpec selects one of five value-generation policies. Only the fields
// belonging to Type are meaningful; the scenario schema enforces them.
type NoiseSpec struct {
	Type string `json:"type"`

	// random_walk
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Step float64 `json:"step,omitempty"`

	// sinusoidal
	Baseline  float64 `json:"baseline,omitempty"`
	Amplitude float64 `json:"amplitude,omitempty"`
	PeriodMS  int     `json:"period_ms,omitempty"`

	// curve
	Points      [][2]float64 `json:"points,omitempty"`
	StateValues []string     `json:"state_values,omitempty"`

	// stochastic
	OnProbability float64 `json:"on_probability,omitempty"`

	// derived
	From    string `json:"from,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// Chapter is one named phase of the scenario.
type Chapter struct {
	Description string         `json:"description"`
	Events      []Event        `json:"events"`
	Generator   *GeneratorSpec `json:"generator,omitempty"`
}

// Scenario is a loaded scenario file.
type Scenario struct {
	Metadata     Metadata           `json:"metadata"`
	InitialState []EntityState      `json:"initial_state"`
	Chapters     map[string]Chapter `json:"chapters"`
}

// CanonicalChapters is the fixed play order. Chapters absent from the file
// are skipped.
var CanonicalChapters = []string{
	"early_morning",
	"morning_rush",
	"daytime",
	"evening_arrival",
	"night",
	"overnight_outage",
	"final_report",
}

// Load reads a JSON scenario definition from disk, validating it against the
// CUE schema first so malformed scenarios fail at load, not at dispatch.
// An empty schemaPath skips schema validation.
func Load(path, schemaPath string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	if schemaPath != "" {
		if err := validateWithCue(path, b, schemaPath); err != nil {
			return nil, err
		}
	}
	var s Scenario
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// validateWithCue checks the raw scenario JSON against a CUE schema file.
func validateWithCue(path string, data []byte, cueFile string) error {
	ctx := cuecontext.New()

	expr, err := cuejson.Extract(path, data)
	if err != nil {
		return fmt.Errorf("cannot parse scenario JSON: %w", err)
	}
	scenarioVal := ctx.BuildExpr(expr)

	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes)

	final := scenarioVal.Unify(schemaVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
