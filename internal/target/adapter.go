// Target adapter routing state pushes to REST or MQTT per entity domain
package target

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"homeops-driver/internal/config"
)

const (
	stateTimeout   = 5 * time.Second
	serviceTimeout = 10 * time.Second
)

// seedMQTTDomains are the domains seeded over retained MQTT when a session
// exists. Everything else seeds over REST.
var seedMQTTDomains = map[string]bool{
	"sensor":              true,
	"binary_sensor":       true,
	"light":               true,
	"switch":              true,
	"lock":                true,
	"climate":             true,
	"alarm_control_panel": true,
}

// playbackRESTDomains force REST during chapter playback regardless of MQTT
// availability; their state is owned by the backend, not by a device bridge.
var playbackRESTDomains = map[string]bool{
	"sun":            true,
	"weather":        true,
	"device_tracker": true,
	"person":         true,
	"button":         true,
	"media_player":   true,
}

// LiveState is the live state payload returned by a target's state endpoint.
type LiveState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Target is one SUT's live session: a REST client plus an optional MQTT
// session. PushState, SeedState, CallService, FireEvent and TriggerAutomation
// are fire-and-forget: transport errors are logged with target and entity
// context and never propagate.
type Target struct {
	Name      string
	rest      *resty.Client
	mqtt      Publisher
	healthURL string
	log       *slog.Logger
}

// New assembles a target from its parts. Tests use it directly with httptest
// servers and fake publishers.
func New(name string, rest *resty.Client, mqtt Publisher, healthURL string, log *slog.Logger) *Target {
	return &Target{Name: name, rest: rest, mqtt: mqtt, healthURL: healthURL, log: log.With("target", name)}
}

// Open builds a target from config, dialing MQTT when a broker is configured.
// A failed MQTT dial degrades to REST-only and is logged, not fatal.
func Open(cfg config.TargetConfig, log *slog.Logger) (*Target, error) {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		rest.SetHeader("Authorization", "Bearer "+cfg.Token)
	}

	var mqtt Publisher
	if cfg.MQTTBroker != "" {
		session, err := Dial(cfg.MQTTBroker, cfg.Name)
		if err != nil {
			log.Warn("mqtt unavailable, using REST only", "target", cfg.Name, "err", err)
		} else {
			mqtt = session
		}
	}

	healthURL := cfg.HealthURL
	if healthURL == "" {
		healthURL = strings.TrimRight(cfg.BaseURL, "/") + "/api/health"
	}
	return New(cfg.Name, rest, mqtt, healthURL, log), nil
}

// Close shuts down the target's transports.
func (t *Target) Close() {
	if t.mqtt != nil {
		t.mqtt.Disconnect()
	}
}

// HasMQTT reports whether a live MQTT session exists.
func (t *Target) HasMQTT() bool {
	return t.mqtt != nil && t.mqtt.Connected()
}

// DisconnectMQTT cleanly drops the MQTT session, if any. Used before a
// simulated power outage so stale publishes cannot race the restart.
func (t *Target) DisconnectMQTT() {
	if t.mqtt != nil {
		t.mqtt.Disconnect()
	}
}

// ReconnectMQTT re-establishes the MQTT session after a restore.
func (t *Target) ReconnectMQTT() {
	if t.mqtt == nil {
		return
	}
	if err := t.mqtt.Reconnect(); err != nil {
		t.log.Warn("mqtt reconnect failed", "err", err)
	}
}

// SeedState pushes one initial_state entry. Bridge-owned domains publish
// retained MQTT so the backend discovers them as device state; the rest go
// through the REST states API.
func (t *Target) SeedState(ctx context.Context, entityID, state string, attributes map[string]any) {
	domain, objectID := splitEntityID(entityID)
	if seedMQTTDomains[domain] && t.HasMQTT() {
		t.publishState(domain, objectID, state)
		return
	}
	t.postState(ctx, entityID, state, attributes)
}

// PushState routes one live state update. Backend-owned domains always use
// REST; everything else prefers MQTT and falls back to REST when no session
// exists.
func (t *Target) PushState(ctx context.Context, entityID, state string, attributes map[string]any) {
	domain, objectID := splitEntityID(entityID)
	if !playbackRESTDomains[domain] && t.HasMQTT() {
		t.publishState(domain, objectID, state)
		return
	}
	t.postState(ctx, entityID, state, attributes)
}

// CallService invokes POST /api/services/{domain}/{service}.
func (t *Target) CallService(ctx context.Context, domain, service string, data map[string]any) {
	callCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()
	if data == nil {
		data = map[string]any{}
	}
	resp, err := t.rest.R().
		SetContext(callCtx).
		SetBody(data).
		Post(fmt.Sprintf("/api/services/%s/%s", domain, service))
	if err != nil {
		t.log.Warn("service call failed", "domain", domain, "service", service, "err", err)
		return
	}
	if resp.IsError() {
		t.log.Warn("service call rejected", "domain", domain, "service", service, "status", resp.StatusCode())
	}
}

// FireEvent invokes POST /api/events/{type}.
func (t *Target) FireEvent(ctx context.Context, eventType string, data map[string]any) {
	callCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	if data == nil {
		data = map[string]any{}
	}
	resp, err := t.rest.R().
		SetContext(callCtx).
		SetBody(data).
		Post("/api/events/" + eventType)
	if err != nil {
		t.log.Warn("event fire failed", "event_type", eventType, "err", err)
		return
	}
	if resp.IsError() {
		t.log.Warn("event fire rejected", "event_type", eventType, "status", resp.StatusCode())
	}
}

// TriggerAutomation force-triggers a named automation.
func (t *Target) TriggerAutomation(ctx context.Context, automationID string) {
	t.CallService(ctx, "automation", "trigger", map[string]any{"entity_id": automationID})
}

// GetState reads an entity's live state. Unlike the push paths this returns
// errors: the verification engine needs to distinguish a non-match from a
// transport failure it should retry.
func (t *Target) GetState(ctx context.Context, entityID string) (*LiveState, error) {
	callCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	var live LiveState
	resp, err := t.rest.R().
		SetContext(callCtx).
		SetResult(&live).
		Get("/api/states/" + entityID)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", entityID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get state %s: HTTP %d", entityID, resp.StatusCode())
	}
	return &live, nil
}

// Health performs one health probe and returns the backend-shaped payload.
func (t *Target) Health(ctx context.Context) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	var body map[string]any
	resp, err := t.rest.R().
		SetContext(callCtx).
		SetResult(&body).
		Get(t.healthURL)
	if err != nil {
		return nil, fmt.Errorf("health %s: %w", t.Name, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("health %s: HTTP %d", t.Name, resp.StatusCode())
	}
	return body, nil
}

// publishState publishes a retained state message on the device state topic.
func (t *Target) publishState(domain, objectID, state string) {
	topic := fmt.Sprintf("home/%s/%s/state", domain, objectID)
	if err := t.mqtt.PublishRetained(topic, []byte(state)); err != nil {
		t.log.Warn("mqtt publish failed", "topic", topic, "err", err)
	}
}

// postState pushes a state via POST /api/states/{entity_id}.
func (t *Target) postState(ctx context.Context, entityID, state string, attributes map[string]any) {
	callCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	body := map[string]any{"state": state}
	if len(attributes) > 0 {
		body["attributes"] = attributes
	}
	resp, err := t.rest.R().
		SetContext(callCtx).
		SetBody(body).
		Post("/api/states/" + entityID)
	if err != nil {
		t.log.Warn("state push failed", "entity_id", entityID, "err", err)
		return
	}
	if resp.IsError() {
		t.log.Warn("state push rejected", "entity_id", entityID, "status", resp.StatusCode())
	}
}

// splitEntityID splits "sensor.kitchen_temp" into domain and object id.
func splitEntityID(entityID string) (domain, objectID string) {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i], entityID[i+1:]
	}
	return entityID, ""
}
