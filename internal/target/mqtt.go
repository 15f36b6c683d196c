// MQTT session wrapper around paho.mqtt.golang
package target

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttDisconnectMS   = 250
)

// Publisher is the MQTT surface the adapter and recovery monitor need.
// *Session implements it; tests substitute fakes.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	Connected() bool
	Disconnect()
	Reconnect() error
}

// Session holds one target's live MQTT connection. Paho runs its own network
// goroutine; publishes from the coordinator are best-effort.
type Session struct {
	client pahomqtt.Client
}

// Dial connects to the broker. The client id carries the target name plus a
// random suffix so two driver runs never kick each other off the broker.
func Dial(broker, targetName string) (*Session, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("homeops-driver-%s-%s", targetName, uuid.New().String()[:8])).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %v", broker, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return &Session{client: client}, nil
}

// PublishRetained publishes a retained message at QoS 0 with a bounded wait.
func (s *Session) PublishRetained(topic string, payload []byte) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt publish %s: not connected", topic)
	}
	token := s.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout after %v", topic, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Connected reports the live connection state.
func (s *Session) Connected() bool {
	return s.client.IsConnected()
}

// Disconnect closes the connection cleanly, flushing in-flight messages.
func (s *Session) Disconnect() {
	if s.client.IsConnected() {
		s.client.Disconnect(mqttDisconnectMS)
	}
}

// Reconnect re-establishes a connection after Disconnect.
func (s *Session) Reconnect() error {
	if s.client.IsConnected() {
		return nil
	}
	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt reconnect: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt reconnect: %w", err)
	}
	return nil
}
