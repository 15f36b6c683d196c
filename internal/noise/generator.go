// Generator engine expanding declarative noise rules into synthetic state events
package noise

import (
	"math"
	"math/rand"
	"path"
	"sort"
	"strconv"

	"homeops-driver/internal/scenario"
	"homeops-driver/internal/state"
)

// Tick is one synthetic state event produced by a noise rule.
type Tick struct {
	OffsetMS int
	EntityID string
	Value    string
}

// Engine expands generator rules into finite, offset-sorted tick sequences.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an engine with a time-based random source.
func NewEngine() *Engine {
	return &Engine{rng: rand.New(rand.NewSource(rand.Int63()))}
}

// NewEngineWithSeed creates an engine with a fixed seed for reproducible runs.
func NewEngineWithSeed(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Generate expands rules over [0, durationMS] into ticks for every entity
// matching each rule's pattern. Ticks land at 0, interval, 2·interval, …
// up to and including durationMS. Output is sorted by offset ascending with
// ties kept in rule-declaration then entity-match order.
//
// Values that depend on DriverState (random_walk seeds, derived sources) read
// the state as it is at generation time, not at dispatch time: a chapter's
// own scripted events do not feed the values generated for that chapter.
// Calling Generate again without resetting the walk cache continues the
// previous walk rather than restarting it.
func (e *Engine) Generate(rules []scenario.Rule, durationMS int, st *state.State, entities []string) []Tick {
	var ticks []Tick
	for _, rule := range rules {
		interval := rule.IntervalMS
		if interval <= 0 {
			// A non-positive interval degrades to a single terminal
			// tick instead of looping forever.
			interval = durationMS + 1
		}
		for _, entity := range entities {
			if ok, err := path.Match(rule.EntityPattern, entity); err != nil || !ok {
				continue
			}
			for t := 0; t <= durationMS; t += interval {
				value, ok := e.value(rule.Noise, t, durationMS, entity, st)
				if !ok {
					continue
				}
				ticks = append(ticks, Tick{OffsetMS: t, EntityID: entity, Value: value})
			}
		}
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].OffsetMS < ticks[j].OffsetMS })
	return ticks
}

// value computes one tick's value for the given policy.
func (e *Engine) value(spec scenario.NoiseSpec, t, durationMS int, entity string, st *state.State) (string, bool) {
	switch spec.Type {
	case scenario.NoiseRandomWalk:
		return formatValue(e.randomWalk(spec, entity, st)), true
	case scenario.NoiseSinusoidal:
		return formatValue(sinusoidal(spec, t)), true
	case scenario.NoiseCurve:
		return curve(spec, t, durationMS)
	case scenario.NoiseStochastic:
		if e.rng.Float64() < spec.OnProbability {
			return "on", true
		}
		return "off", true
	case scenario.NoiseDerived:
		return derived(spec, st)
	default:
		return "", false
	}
}

// randomWalk advances the per-entity continuous float, clamped to [min, max].
// The walk seeds from the entity's last-known value, or the midpoint of the
// range when that value is absent or non-numeric.
func (e *Engine) randomWalk(spec scenario.NoiseSpec, entity string, st *state.State) float64 {
	prev, ok := st.Walk(entity)
	if !ok {
		prev = (spec.Min + spec.Max) / 2
		if raw, exists := st.Value(entity); exists {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				prev = v
			}
		}
	}
	next := prev + (e.rng.Float64()*2-1)*spec.Step
	next = math.Max(spec.Min, math.Min(spec.Max, next))
	st.SetWalk(entity, next)
	return next
}

// sinusoidal is stateless: baseline + amplitude·sin(2π·t/period).
func sinusoidal(spec scenario.NoiseSpec, t int) float64 {
	if spec.PeriodMS <= 0 {
		return spec.Baseline
	}
	return spec.Baseline + spec.Amplitude*math.Sin(2*math.Pi*float64(t)/float64(spec.PeriodMS))
}

// curve interpolates an explicit (progress, value) point list by t/duration,
// or indexes a discrete state_values list by progress.
func curve(spec scenario.NoiseSpec, t, durationMS int) (string, bool) {
	progress := 0.0
	if durationMS > 0 {
		progress = float64(t) / float64(durationMS)
	}
	if len(spec.Points) > 0 {
		return formatValue(interpolate(spec.Points, progress)), true
	}
	if len(spec.StateValues) > 0 {
		idx := int(progress * float64(len(spec.StateValues)))
		if idx >= len(spec.StateValues) {
			idx = len(spec.StateValues) - 1
		}
		return spec.StateValues[idx], true
	}
	return "", false
}

// interpolate linearly interpolates between curve points, clamping outside
// the declared range.
func interpolate(points [][2]float64, progress float64) float64 {
	if progress <= points[0][0] {
		return points[0][1]
	}
	last := points[len(points)-1]
	if progress >= last[0] {
		return last[1]
	}
	for i := 1; i < len(points); i++ {
		if progress > points[i][0] {
			continue
		}
		p0, p1 := points[i-1], points[i]
		span := p1[0] - p0[0]
		if span <= 0 {
			return p1[1]
		}
		frac := (progress - p0[0]) / span
		return p0[1] + frac*(p1[1]-p0[1])
	}
	return last[1]
}

// derived evaluates the rule's formula against the source entity's last-known
// value. Evaluation failure falls back to the raw source value unchanged; a
// missing source skips the tick.
func derived(spec scenario.NoiseSpec, st *state.State) (string, bool) {
	raw, ok := st.Value(spec.From)
	if !ok {
		return "", false
	}
	src, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, true
	}
	v, err := Eval(spec.Formula, src)
	if err != nil {
		return raw, true
	}
	return formatValue(v), true
}

// formatValue rounds to one decimal and stringifies, matching the wire shape
// the targets expect for numeric sensor states.
func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
}
