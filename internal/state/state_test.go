package state

import (
	"testing"

	"homeops-driver/internal/scenario"
)

func TestStateSeedAndOrder(t *testing.T) {
	st := New([]scenario.EntityState{
		{EntityID: "sensor.a", State: "1"},
		{EntityID: "light.k", State: "off"},
	})
	if v, ok := st.Value("sensor.a"); !ok || v != "1" {
		t.Errorf("expected sensor.a=1, got %q (%v)", v, ok)
	}
	st.SetValue("sensor.a", "2")
	st.SetValue("lock.front", "locked")
	want := []string{"sensor.a", "light.k", "lock.front"}
	got := st.Entities()
	if len(got) != len(want) {
		t.Fatalf("expected %d entities, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entity %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestWalkCache(t *testing.T) {
	st := New(nil)
	if _, ok := st.Walk("sensor.a"); ok {
		t.Error("expected empty walk cache")
	}
	st.SetWalk("sensor.a", 3.5)
	if v, ok := st.Walk("sensor.a"); !ok || v != 3.5 {
		t.Errorf("expected 3.5, got %v (%v)", v, ok)
	}
	st.ResetWalks()
	if _, ok := st.Walk("sensor.a"); ok {
		t.Error("expected walk cache cleared")
	}
}
