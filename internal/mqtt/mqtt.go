// Package mqtt exposes the solenoid switches over MQTT: a command topic per
// switch, a retained state topic per switch, and a system topic for daemon
// lifecycle events. The real implementation uses paho; a fake allows testing
// without a broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
)

// Command is an inbound switch request received from the broker.
type Command struct {
	Switch string
	On     bool
}

// Conn is the broker connection the daemon talks to.
type Conn interface {
	// PublishState sends a retained state update for one switch.
	PublishState(event solenoid.Event) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Commands delivers inbound switch commands. The channel is never
	// closed; the daemon's tick loop drains it.
	Commands() <-chan Command

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a daemon lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g. "STARTUP", "SHUTDOWN"
	Reason    string // e.g. "SIGTERM" (shutdown only)
	Retained  bool
}

// StateTopic returns the retained state topic for a switch.
func StateTopic(prefix, name string) string {
	return prefix + "/" + name + "/state"
}

// CommandTopic returns the command topic for a switch.
func CommandTopic(prefix, name string) string {
	return prefix + "/" + name + "/command"
}

// SystemTopic returns the daemon lifecycle topic.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// CommandFilter returns the subscription filter matching every switch's
// command topic under the prefix.
func CommandFilter(prefix string) string {
	return prefix + "/+/command"
}

// FormatState produces the state topic payload: the plain state name, the
// convention remote switch platforms expect.
func FormatState(event solenoid.Event) []byte {
	return []byte(event.State)
}

// ParseCommand extracts a Command from an inbound message on the command
// filter. Payloads are ON/OFF, case-insensitive.
func ParseCommand(prefix, topic string, payload []byte) (Command, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return Command{}, fmt.Errorf("topic %q outside prefix %q", topic, prefix)
	}
	name, ok := strings.CutSuffix(rest, "/command")
	if !ok || name == "" || strings.Contains(name, "/") {
		return Command{}, fmt.Errorf("topic %q is not a command topic", topic)
	}

	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "1", "TRUE":
		return Command{Switch: name, On: true}, nil
	case "OFF", "0", "FALSE":
		return Command{Switch: name, On: false}, nil
	}
	return Command{}, fmt.Errorf("command for %q: unknown payload %q", name, payload)
}

// SystemPayload is the JSON envelope for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
