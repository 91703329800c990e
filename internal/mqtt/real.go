package mqtt

import (
	"fmt"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// RealPublisher publishes cycle and system events over a shared Conn.
// Events published while offline are buffered and replayed on reconnect.
type RealPublisher struct {
	conn   *Conn
	events string
	system string
}

// NewRealPublisher creates a publisher rooted at the base topic.
func NewRealPublisher(conn *Conn, base string) *RealPublisher {
	return &RealPublisher{
		conn:   conn,
		events: EventsTopic(base),
		system: SystemTopic(base),
	}
}

// Publish sends a cycle transition to the MQTT broker.
func (p *RealPublisher) Publish(t logic.Transition) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 so a transition survives a broker hiccup; not retained
	if err := p.conn.PublishBuffered(p.events, 1, false, payload); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	if err := p.conn.PublishBuffered(p.system, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	return p.conn.Close()
}
