// Chapter player pacing a merged scripted+generated timeline against targets
package player

import (
	"context"
	"sort"
	"sync"
	"time"

	"homeops-driver/internal/logging"
	"homeops-driver/internal/metrics"
	"homeops-driver/internal/noise"
	"homeops-driver/internal/recovery"
	"homeops-driver/internal/scenario"
	"homeops-driver/internal/state"
	"homeops-driver/internal/target"
	"homeops-driver/internal/verify"
)

// Status is the player's lifecycle state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPlaying    Status = "playing"
	StatusComplete   Status = "complete"
)

// Player drives the whole run: it merges scripted and generated events into
// one offset-sorted timeline per chapter, paces dispatch by sim-time divided
// by the speed multiplier, and routes each event to its kind handler.
//
// Dispatch to all targets completes before the next event's wait begins; a
// delivery failure to one target never aborts the others or the chapter.
type Player struct {
	targets  []*target.Target
	st       *state.State
	engine   *noise.Engine
	injector *recovery.Injector

	speed            float64
	sunsetAutomation string
	status           Status

	sleep func(d time.Duration) // swapped by tests
}

// New builds a player. DriverState is passed in explicitly: the generator and
// the dispatch loop share it, and nothing else may touch it.
func New(targets []*target.Target, st *state.State, engine *noise.Engine, injector *recovery.Injector, speed float64, sunsetAutomation string) *Player {
	if speed <= 0 {
		speed = 1
	}
	return &Player{
		targets:          targets,
		st:               st,
		engine:           engine,
		injector:         injector,
		speed:            speed,
		sunsetAutomation: sunsetAutomation,
		status:           StatusNotStarted,
		sleep:            time.Sleep,
	}
}

// Status reports the player's lifecycle state.
func (p *Player) Status() Status {
	return p.status
}

// Seed pushes the scenario's initial_state to every target, fanning out per
// target. Bridge-owned domains land on retained MQTT topics, the rest on the
// REST states API.
func (p *Player) Seed(ctx context.Context, initial []scenario.EntityState) {
	log := logging.FromContext(ctx)
	log.Info("seeding initial state", "entities", len(initial))
	p.fanOut(func(t *target.Target) {
		for _, e := range initial {
			t.SeedState(ctx, e.EntityID, e.State, e.Attributes)
		}
	})
}

// PlayAll plays the canonical chapter sequence, skipping chapters absent from
// the scenario. A non-empty only restricts playback to that single chapter.
func (p *Player) PlayAll(ctx context.Context, s *scenario.Scenario, only string) {
	log := logging.FromContext(ctx)
	p.status = StatusPlaying
	for _, name := range scenario.CanonicalChapters {
		if only != "" && name != only {
			continue
		}
		ch, ok := s.Chapters[name]
		if !ok {
			continue
		}
		log.Info("chapter start", "chapter", name, "description", ch.Description)
		p.playChapter(ctx, name, ch)
		log.Info("chapter complete", "chapter", name)
	}
	p.status = StatusComplete
}

// playChapter builds the chapter timeline and dispatches it in offset order,
// sleeping the speed-scaled gap between consecutive offsets.
func (p *Player) playChapter(ctx context.Context, name string, ch scenario.Chapter) {
	timeline := p.buildTimeline(ch)
	prev := 0
	for _, ev := range timeline {
		if gap := ev.OffsetMS - prev; gap > 0 {
			p.sleep(time.Duration(float64(gap)/p.speed) * time.Millisecond)
		}
		prev = ev.OffsetMS
		p.dispatch(ctx, ev)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// buildTimeline merges scripted events with generator output, stably sorted
// by offset. Scripted events are appended first, so at equal offsets they
// dispatch before generated ones.
func (p *Player) buildTimeline(ch scenario.Chapter) []scenario.Event {
	timeline := make([]scenario.Event, 0, len(ch.Events))
	timeline = append(timeline, ch.Events...)

	if ch.Generator != nil {
		ticks := p.engine.Generate(ch.Generator.Rules, ch.Generator.DurationMS, p.st, p.st.Entities())
		for _, tick := range ticks {
			timeline = append(timeline, scenario.Event{
				Kind:      scenario.KindState,
				OffsetMS:  tick.OffsetMS,
				Synthetic: true,
				State:     &scenario.StateEvent{EntityID: tick.EntityID, State: tick.Value},
			})
		}
	}

	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].OffsetMS < timeline[j].OffsetMS })
	return timeline
}

// dispatch routes one event to its kind handler. A malformed event that
// slipped past load validation is logged and skipped; nothing below the
// chapter loop terminates the run.
func (p *Player) dispatch(ctx context.Context, ev scenario.Event) {
	log := logging.FromContext(ctx)

	switch ev.Kind {
	case scenario.KindAnnotation:
		if ev.Annotation == nil {
			break
		}
		log.Info("annotation", "offset_ms", ev.OffsetMS, "message", ev.Annotation.Message)
		return

	case scenario.KindState:
		if ev.State == nil {
			break
		}
		st := ev.State
		p.st.SetValue(st.EntityID, st.State)
		log.Debug("state", "offset_ms", ev.OffsetMS, "entity_id", st.EntityID, "state", st.State, "synthetic", ev.Synthetic)
		p.fanOut(func(t *target.Target) {
			t.PushState(ctx, st.EntityID, st.State, st.Attributes)
		})
		return

	case scenario.KindTimeTick:
		if ev.TimeTick == nil {
			break
		}
		tick := ev.TimeTick
		log.Info("sim time", "offset_ms", ev.OffsetMS, "sim_time", tick.SimTime)
		for _, automation := range tick.TriggerAutomations {
			automation := automation
			p.fanOut(func(t *target.Target) {
				t.TriggerAutomation(ctx, automation)
			})
		}
		return

	case scenario.KindFireEvent:
		if ev.FireEvent == nil {
			break
		}
		fe := ev.FireEvent
		log.Info("fire event", "offset_ms", ev.OffsetMS, "event_type", fe.EventType)
		p.fanOut(func(t *target.Target) {
			t.FireEvent(ctx, fe.EventType, fe.Data)
		})
		return

	case scenario.KindSun:
		if ev.Sun == nil {
			break
		}
		log.Info("sun transition", "offset_ms", ev.OffsetMS, "event", ev.Sun.Event)
		if ev.Sun.Event == "sunset" && p.sunsetAutomation != "" {
			p.fanOut(func(t *target.Target) {
				t.TriggerAutomation(ctx, p.sunsetAutomation)
			})
		}
		return

	case scenario.KindVerify:
		if ev.Verify == nil {
			break
		}
		v := ev.Verify
		timeout := time.Duration(v.TimeoutMS) * time.Millisecond
		p.fanOut(func(t *target.Target) {
			verify.Verify(ctx, t, v.EntityID, v.ExpectedState, v.ExpectedAttributes, timeout)
		})
		return

	case scenario.KindPowerOutage:
		p.injector.PowerOutage(ctx)
		return

	case scenario.KindPowerRestore:
		p.injector.PowerRestore(ctx)
		return

	case scenario.KindVerifySystem:
		if ev.VerifySystem == nil {
			break
		}
		vs := ev.VerifySystem
		p.injector.VerifySystem(ctx, vs.System, time.Duration(vs.TimeoutMS)*time.Millisecond)
		return

	case scenario.KindCollectFinal:
		metrics.Collect(ctx, p.targets, p.injector)
		return
	}

	log.Warn("skipping malformed event", "kind", ev.Kind, "offset_ms", ev.OffsetMS)
}

// fanOut runs fn against every target concurrently and waits for all of them,
// the per-event barrier: operations belonging to different events never
// overlap.
func (p *Player) fanOut(fn func(t *target.Target)) {
	var wg sync.WaitGroup
	for _, t := range p.targets {
		wg.Add(1)
		go func(t *target.Target) {
			defer wg.Done()
			fn(t)
		}(t)
	}
	wg.Wait()
}
