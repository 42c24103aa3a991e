// Package mqtt publishes bench events and receives remote commands over MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/injector-bench/internal/logic"
)

// Topic is the MQTT topic for session events.
const Topic = "bench/injector/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "bench/injector/system"

// TopicCommand is the MQTT topic the daemon subscribes to for remote control.
const TopicCommand = "bench/injector/command"

// ErrBadCommand is wrapped by every command payload rejection.
var ErrBadCommand = errors.New("bad command")

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a session event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event SessionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SessionEvent is a session event stamped with wall-clock time.
type SessionEvent struct {
	Timestamp time.Time
	Event     logic.Event
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Publishable reports whether a session event type goes to the broker.
// Channel toggles and countdown ticks stay local.
func Publishable(t logic.EventType) bool {
	switch t {
	case logic.EventStarted, logic.EventStopped, logic.EventSweep:
		return true
	}
	return false
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Bench BenchPayload `json:"bench"`
}

// BenchPayload contains the session event details.
type BenchPayload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	Profile   string       `json:"profile,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Sweep     *int         `json:"sweep,omitempty"`
	Plan      *PlanPayload `json:"plan,omitempty"`
}

// PlanPayload is the timing plan in microseconds.
type PlanPayload struct {
	CycleUs int64 `json:"cycle_us"`
	OpenUs  int64 `json:"open_us"`
	CloseUs int64 `json:"close_us"`
}

// FormatPayload creates the JSON payload for a session event.
func FormatPayload(se SessionEvent) ([]byte, error) {
	e := se.Event
	inner := BenchPayload{
		Timestamp: se.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(e.Type),
		Profile:   string(e.Profile),
		Reason:    e.Reason,
	}
	switch e.Type {
	case logic.EventSweep:
		sweep := e.Sweep
		inner.Sweep = &sweep
		inner.Plan = planPayload(e.Plan)
	case logic.EventStarted:
		inner.Plan = planPayload(e.Plan)
	}
	return json.Marshal(Payload{Bench: inner})
}

func planPayload(p logic.TimingPlan) *PlanPayload {
	return &PlanPayload{
		CycleUs: p.Cycle.Microseconds(),
		OpenUs:  p.Open.Microseconds(),
		CloseUs: p.Close.Microseconds(),
	}
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// commandPayload is the JSON accepted on TopicCommand.
type commandPayload struct {
	Command string `json:"command"`
	Profile string `json:"profile"`
}

// ParseCommand decodes a remote command.
//
//	{"command":"start","profile":"leak"}
//	{"command":"stop"}
func ParseCommand(payload []byte) (logic.Command, error) {
	var p commandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return logic.Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	switch p.Command {
	case "stop":
		return logic.Command{Stop: true, Source: "mqtt"}, nil
	case "start":
		kind, err := logic.ParseProfileKind(p.Profile)
		if err != nil {
			return logic.Command{}, fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
		return logic.Command{Profile: kind, Source: "mqtt"}, nil
	}
	return logic.Command{}, fmt.Errorf("%w: unknown command %q", ErrBadCommand, p.Command)
}
