package noise

import (
	"strconv"
	"testing"

	"homeops-driver/internal/scenario"
	"homeops-driver/internal/state"
)

func newState(entities map[string]string, order ...string) *state.State {
	st := state.New(nil)
	for _, id := range order {
		st.SetValue(id, entities[id])
	}
	return st
}

func TestRandomWalkStaysInBounds(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "5"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    100,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseRandomWalk, Min: 0, Max: 10, Step: 5},
	}}
	ticks := NewEngineWithSeed(1).Generate(rules, 10000, st, st.Entities())
	if len(ticks) != 101 {
		t.Fatalf("expected 101 ticks, got %d", len(ticks))
	}
	for _, tick := range ticks {
		v, err := strconv.ParseFloat(tick.Value, 64)
		if err != nil {
			t.Fatalf("non-numeric walk value %q: %v", tick.Value, err)
		}
		if v < 0 || v > 10 {
			t.Errorf("walk value %v outside [0,10]", v)
		}
	}
}

func TestRandomWalkSeedsFromMidpointWhenNonNumeric(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "unknown"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseRandomWalk, Min: 10, Max: 20, Step: 0},
	}}
	ticks := NewEngineWithSeed(1).Generate(rules, 1000, st, st.Entities())
	for _, tick := range ticks {
		if tick.Value != "15.0" {
			t.Errorf("expected midpoint seed 15.0, got %q", tick.Value)
		}
	}
}

func TestSinusoidalValues(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "0"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseSinusoidal, Baseline: 10, Amplitude: 5, PeriodMS: 4000},
	}}
	ticks := NewEngine().Generate(rules, 4000, st, st.Entities())
	want := []string{"10.0", "15.0", "10.0", "5.0", "10.0"}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(ticks))
	}
	for i, w := range want {
		if ticks[i].Value != w {
			t.Errorf("tick %d: expected %s, got %s", i, w, ticks[i].Value)
		}
	}
}

func TestCurveMidpoint(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "0"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    500,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseCurve, Points: [][2]float64{{0, 0}, {1, 100}}},
	}}
	ticks := NewEngine().Generate(rules, 1000, st, st.Entities())
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if ticks[1].Value != "50.0" {
		t.Errorf("midpoint: expected 50.0, got %s", ticks[1].Value)
	}
	if ticks[2].Value != "100.0" {
		t.Errorf("endpoint: expected 100.0, got %s", ticks[2].Value)
	}
}

func TestCurveStateValuesClampsLastIndex(t *testing.T) {
	st := newState(map[string]string{"climate.h": "idle"}, "climate.h")
	rules := []scenario.Rule{{
		EntityPattern: "climate.h",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseCurve, StateValues: []string{"idle", "heating", "cooling"}},
	}}
	ticks := NewEngine().Generate(rules, 3000, st, st.Entities())
	want := []string{"idle", "heating", "cooling", "cooling"}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(ticks))
	}
	for i, w := range want {
		if ticks[i].Value != w {
			t.Errorf("tick %d: expected %s, got %s", i, w, ticks[i].Value)
		}
	}
}

func TestStochasticExtremes(t *testing.T) {
	st := newState(map[string]string{"binary_sensor.m": "off"}, "binary_sensor.m")
	for prob, want := range map[float64]string{0: "off", 1: "on"} {
		rules := []scenario.Rule{{
			EntityPattern: "binary_sensor.m",
			IntervalMS:    100,
			Noise:         scenario.NoiseSpec{Type: scenario.NoiseStochastic, OnProbability: prob},
		}}
		ticks := NewEngine().Generate(rules, 2000, st, st.Entities())
		for _, tick := range ticks {
			if tick.Value != want {
				t.Errorf("on_probability=%v: expected all %q, got %q", prob, want, tick.Value)
			}
		}
	}
}

func TestDerivedFormulaAndFallback(t *testing.T) {
	st := newState(map[string]string{
		"sensor.src":    "20",
		"sensor.badsrc": "offline",
		"sensor.out":    "0",
	}, "sensor.src", "sensor.badsrc", "sensor.out")

	cases := []struct {
		name    string
		from    string
		formula string
		want    string
	}{
		{"formula applied", "sensor.src", "value * 2", "40.0"},
		{"eval failure falls back to source", "sensor.src", "value *", "20"},
		{"non-numeric source passes through", "sensor.badsrc", "value * 2", "offline"},
	}
	for _, tc := range cases {
		rules := []scenario.Rule{{
			EntityPattern: "sensor.out",
			IntervalMS:    1000,
			Noise:         scenario.NoiseSpec{Type: scenario.NoiseDerived, From: tc.from, Formula: tc.formula},
		}}
		ticks := NewEngine().Generate(rules, 1000, st, st.Entities())
		if len(ticks) == 0 {
			t.Fatalf("%s: no ticks generated", tc.name)
		}
		if ticks[0].Value != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, ticks[0].Value)
		}
	}
}

func TestDerivedMissingSourceSkipsTicks(t *testing.T) {
	st := newState(map[string]string{"sensor.out": "0"}, "sensor.out")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.out",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseDerived, From: "sensor.gone", Formula: "value"},
	}}
	if ticks := NewEngine().Generate(rules, 2000, st, st.Entities()); len(ticks) != 0 {
		t.Errorf("expected no ticks for missing source, got %d", len(ticks))
	}
}

func TestTickCountInclusiveOfBothEnds(t *testing.T) {
	st := newState(map[string]string{"sensor.t": "10"}, "sensor.t")
	rules := []scenario.Rule{{
		EntityPattern: "sensor\\.t",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseSinusoidal, Baseline: 0, Amplitude: 10, PeriodMS: 4000},
	}}
	ticks := NewEngine().Generate(rules, 2000, st, st.Entities())
	if len(ticks) != 3 {
		t.Fatalf("expected ticks at 0/1000/2000, got %d", len(ticks))
	}
	for i, wantOffset := range []int{0, 1000, 2000} {
		if ticks[i].OffsetMS != wantOffset {
			t.Errorf("tick %d: expected offset %d, got %d", i, wantOffset, ticks[i].OffsetMS)
		}
	}
	for i, want := range []string{"0.0", "10.0", "0.0"} {
		if ticks[i].Value != want {
			t.Errorf("tick %d: expected value %s, got %s", i, want, ticks[i].Value)
		}
	}
}

func TestTieOrderRuleThenEntity(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "1", "sensor.b": "1"}, "sensor.a", "sensor.b")
	rules := []scenario.Rule{
		{EntityPattern: "sensor.b", IntervalMS: 1000,
			Noise: scenario.NoiseSpec{Type: scenario.NoiseSinusoidal, Baseline: 1, PeriodMS: 1000}},
		{EntityPattern: "sensor.*", IntervalMS: 1000,
			Noise: scenario.NoiseSpec{Type: scenario.NoiseSinusoidal, Baseline: 2, PeriodMS: 1000}},
	}
	ticks := NewEngine().Generate(rules, 0, st, st.Entities())
	want := []struct {
		entity string
		value  string
	}{
		{"sensor.b", "1.0"},
		{"sensor.a", "2.0"},
		{"sensor.b", "2.0"},
	}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(ticks))
	}
	for i, w := range want {
		if ticks[i].EntityID != w.entity || ticks[i].Value != w.value {
			t.Errorf("tick %d: expected %s=%s, got %s=%s", i, w.entity, w.value, ticks[i].EntityID, ticks[i].Value)
		}
	}
}

func TestNonPositiveIntervalYieldsSingleTick(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "1"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    0,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseSinusoidal, Baseline: 7, PeriodMS: 1000},
	}}
	ticks := NewEngine().Generate(rules, 60000, st, st.Entities())
	if len(ticks) != 1 {
		t.Fatalf("expected single terminal tick, got %d", len(ticks))
	}
	if ticks[0].OffsetMS != 0 || ticks[0].Value != "7.0" {
		t.Errorf("unexpected tick %+v", ticks[0])
	}
}

func TestWalkContinuesAcrossGenerateCalls(t *testing.T) {
	st := newState(map[string]string{"sensor.a": "5"}, "sensor.a")
	rules := []scenario.Rule{{
		EntityPattern: "sensor.a",
		IntervalMS:    1000,
		Noise:         scenario.NoiseSpec{Type: scenario.NoiseRandomWalk, Min: 0, Max: 100, Step: 1},
	}}
	eng := NewEngineWithSeed(7)
	eng.Generate(rules, 1000, st, st.Entities())
	afterFirst, ok := st.Walk("sensor.a")
	if !ok {
		t.Fatal("expected walk cache entry after first generation")
	}
	if afterFirst < 0 || afterFirst > 100 {
		t.Errorf("walk cache value %v outside rule bounds", afterFirst)
	}
	st.ResetWalks()
	if _, ok := st.Walk("sensor.a"); ok {
		t.Errorf("walk cache should be empty after reset")
	}
}
