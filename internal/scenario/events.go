package scenario

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the timeline event union.
type EventKind string

const (
	KindAnnotation   EventKind = "annotation"
	KindState        EventKind = "state"
	KindTimeTick     EventKind = "time_tick"
	KindFireEvent    EventKind = "fire_event"
	KindSun          EventKind = "sun"
	KindVerify       EventKind = "verify"
	KindPowerOutage  EventKind = "power_outage"
	KindPowerRestore EventKind = "power_restore"
	KindVerifySystem EventKind = "verify_system"
	KindCollectFinal EventKind = "collect_final_metrics"
)

// AnnotationEvent logs a narration line.
type AnnotationEvent struct {
	Message string `json:"message"`
}

// StateEvent pushes a new entity state to every target.
type StateEvent struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// TimeTickEvent marks virtual time and may force-trigger automations.
type TimeTickEvent struct {
	SimTime            string   `json:"sim_time"`
	TriggerAutomations []string `json:"trigger_automations,omitempty"`
}

// FireEventEvent fires a named custom event on every target.
type FireEventEvent struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
}

// SunEvent marks a sun-position transition ("sunrise", "sunset").
type SunEvent struct {
	Event string `json:"event"`
}

// VerifyEvent polls a target until an expected state subset matches.
type VerifyEvent struct {
	EntityID           string         `json:"entity_id"`
	ExpectedState      *string        `json:"expected_state,omitempty"`
	ExpectedAttributes map[string]any `json:"expected_attributes,omitempty"`
	TimeoutMS          int            `json:"timeout_ms,omitempty"`
}

// VerifySystemEvent measures recovery of a restarted target.
type VerifySystemEvent struct {
	System    string `json:"system"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// Event is one timeline action, discriminated by Kind. Exactly one payload
// pointer is set for kinds that carry one. Synthetic marks events produced by
// the generator engine rather than the scenario file.
type Event struct {
	Kind      EventKind
	OffsetMS  int
	Synthetic bool

	Annotation   *AnnotationEvent
	State        *StateEvent
	TimeTick     *TimeTickEvent
	FireEvent    *FireEventEvent
	Sun          *SunEvent
	Verify       *VerifyEvent
	VerifySystem *VerifySystemEvent
}

// envelope is the raw wire form of an event.
type envelope struct {
	Type     EventKind `json:"type"`
	OffsetMS int       `json:"offset_ms"`
}

// UnmarshalJSON decodes the tagged union and validates required fields, so a
// malformed event fails at load rather than at dispatch.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.OffsetMS < 0 {
		return fmt.Errorf("event %q: negative offset_ms %d", env.Type, env.OffsetMS)
	}
	e.Kind = env.Type
	e.OffsetMS = env.OffsetMS

	switch env.Type {
	case KindAnnotation:
		var p AnnotationEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Message == "" {
			return fmt.Errorf("annotation event: missing message")
		}
		e.Annotation = &p
	case KindState:
		var p StateEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.EntityID == "" {
			return fmt.Errorf("state event: missing entity_id")
		}
		e.State = &p
	case KindTimeTick:
		var p TimeTickEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.SimTime == "" {
			return fmt.Errorf("time_tick event: missing sim_time")
		}
		e.TimeTick = &p
	case KindFireEvent:
		var p FireEventEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.EventType == "" {
			return fmt.Errorf("fire_event event: missing event_type")
		}
		e.FireEvent = &p
	case KindSun:
		var p SunEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Event == "" {
			return fmt.Errorf("sun event: missing event")
		}
		e.Sun = &p
	case KindVerify:
		var p VerifyEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.EntityID == "" {
			return fmt.Errorf("verify event: missing entity_id")
		}
		e.Verify = &p
	case KindVerifySystem:
		var p VerifySystemEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.System == "" {
			return fmt.Errorf("verify_system event: missing system")
		}
		e.VerifySystem = &p
	case KindPowerOutage, KindPowerRestore, KindCollectFinal:
		// no payload
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	return nil
}
