package state

import "homeops-driver/internal/scenario"

// State holds the driver's last-known value per entity, plus the continuous
// float cache the random_walk policy carries between ticks. It is touched
// only from the coordinating goroutine, so it carries no lock: suspension
// points interleave access but never run it in parallel.
type State struct {
	values   map[string]string
	entities []string
	walks    map[string]float64
}

// New builds a State seeded from the scenario's initial_state block.
// Entity order is preserved so pattern matching stays deterministic.
func New(initial []scenario.EntityState) *State {
	s := &State{
		values: make(map[string]string, len(initial)),
		walks:  make(map[string]float64),
	}
	for _, e := range initial {
		s.SetValue(e.EntityID, e.State)
	}
	return s
}

// Value returns the last-known value for an entity.
func (s *State) Value(entityID string) (string, bool) {
	v, ok := s.values[entityID]
	return v, ok
}

// SetValue records a new value, registering the entity on first sight.
func (s *State) SetValue(entityID, value string) {
	if _, seen := s.values[entityID]; !seen {
		s.entities = append(s.entities, entityID)
	}
	s.values[entityID] = value
}

// Entities lists known entity ids in first-seen order.
func (s *State) Entities() []string {
	return s.entities
}

// Walk returns the cached random-walk float for an entity.
func (s *State) Walk(entityID string) (float64, bool) {
	v, ok := s.walks[entityID]
	return v, ok
}

// SetWalk updates the random-walk cache.
func (s *State) SetWalk(entityID string, v float64) {
	s.walks[entityID] = v
}

// ResetWalks clears the random-walk cache, making the generator restartable.
func (s *State) ResetWalks() {
	s.walks = make(map[string]float64)
}
