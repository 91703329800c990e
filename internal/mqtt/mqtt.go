// Package mqtt wraps the broker connection and publishes cycle and system events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// EventsTopic returns the topic cycle transitions are published on.
func EventsTopic(base string) string { return base + "/events" }

// SystemTopic returns the topic lifecycle events are published on.
func SystemTopic(base string) string { return base + "/system" }

// Publisher sends cycle transitions and lifecycle events. Callers log
// errors and carry on.
type Publisher interface {
	Publish(t logic.Transition) error
	PublishSystem(event SystemEvent) error
	Close() error
}

type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle message: STARTUP, HEARTBEAT, SHUTDOWN,
// RECONNECTED or the OFFLINE last will.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // SHUTDOWN and OFFLINE only
	// RawPayload replaces the default body, normally with a status snapshot.
	RawPayload []byte
	Retained   bool
}

// Payload is the body published on the events topic.
type Payload struct {
	Cycle CyclePayload `json:"cycle"`
}

type CyclePayload struct {
	Timestamp      string `json:"timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Reason         string `json:"reason"`
	ScheduledStart string `json:"scheduled_start,omitempty"`
	Basis          string `json:"basis,omitempty"`
}

// FormatPayload encodes t with UTC RFC 3339 timestamps. The schedule fields
// are only present on transitions into WAITING.
func FormatPayload(t logic.Transition) ([]byte, error) {
	inner := CyclePayload{
		Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
		From:      t.From.String(),
		To:        t.To.String(),
		Reason:    string(t.Reason),
		Basis:     string(t.Basis),
	}
	if !t.ScheduledStart.IsZero() {
		inner.ScheduledStart = t.ScheduledStart.UTC().Format(time.RFC3339)
	}
	return json.Marshal(Payload{Cycle: inner})
}

// SystemPayload is the minimal system body used when no snapshot is attached.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload returns event.RawPayload when set, else a SystemPayload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
