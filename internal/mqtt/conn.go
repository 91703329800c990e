package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/dishwasher-scheduler/internal/config"
	"github.com/sweeney/dishwasher-scheduler/internal/logger"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type subscription struct {
	qos     byte
	handler func(topic string, payload []byte)
}

// Conn is a shared broker connection. Subscriptions survive reconnects and
// buffered publishes are replayed once the link is back.
type Conn struct {
	client pahoClient
	log    logger.Logger
	system string

	mu      sync.Mutex
	subs    map[string]subscription
	pending *backlog
	dropped int
	lost    bool
}

// Dial connects to the broker described by cfg. A retained OFFLINE event is
// registered as the last will on the system topic.
func Dial(cfg config.MQTTConfig, log logger.Logger) (*Conn, error) {
	c := newConn(cfg, log)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(c.system, string(will), 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { c.onConnect() }
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.mu.Lock()
		c.lost = true
		c.mu.Unlock()
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c.client = newPahoClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func newConn(cfg config.MQTTConfig, log logger.Logger) *Conn {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Conn{
		log:     log,
		system:  SystemTopic(cfg.Topic),
		subs:    make(map[string]subscription),
		pending: newBacklog(cfg.BufferSize),
	}
}

// onConnect re-subscribes and replays the backlog. It runs on paho's
// goroutine, so the replay is handed off to avoid blocking the client.
func (c *Conn) onConnect() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	reconnected := c.lost
	c.lost = false
	c.mu.Unlock()

	c.log.Infof("MQTT connected")
	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			c.log.Errorf("resubscribe %s: %v", topic, err)
		}
	}

	go c.replay(reconnected)
}

func (c *Conn) replay(reconnected bool) {
	if reconnected {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			_ = c.PublishBuffered(c.system, 1, false, payload)
		}
	}

	c.mu.Lock()
	msgs := c.pending.flush()
	dropped := c.dropped
	c.dropped = 0
	c.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	if dropped > 0 {
		c.log.Warnf("dropped %d buffered messages while offline", dropped)
	}
	c.log.Infof("replaying %d buffered messages", len(msgs))
	for i, m := range msgs {
		if err := c.Publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			c.log.Warnf("replay interrupted: %v", err)
			c.mu.Lock()
			for _, rest := range msgs[i:] {
				c.pending.add(rest)
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Conn) subscribe(topic string, s subscription) error {
	h := s.handler
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	return token.Error()
}

// Subscribe registers handler for topic. The subscription is restored after
// every reconnect.
func (c *Conn) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	s := subscription{qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(topic, s)
}

// Publish sends payload immediately and fails when the broker is unreachable.
func (c *Conn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishBuffered sends payload, or queues it for replay when offline or
// when the send fails.
func (c *Conn) PublishBuffered(topic string, qos byte, retained bool, payload []byte) error {
	err := c.Publish(topic, qos, retained, payload)
	if err == nil {
		return nil
	}
	c.mu.Lock()
	if c.pending.add(outgoing{topic: topic, payload: payload, qos: qos, retained: retained}) {
		c.log.Warnf("offline buffer full (%d messages), dropping oldest", len(c.pending.ring))
	}
	if c.pending.lossy {
		c.dropped++
	}
	c.mu.Unlock()
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Buffered returns how many messages are waiting for replay.
func (c *Conn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// SystemTopic returns the topic lifecycle events and the last will use.
func (c *Conn) SystemTopic() string { return c.system }

// IsConnected reports whether the broker link is up.
func (c *Conn) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Close disconnects, allowing one second for in-flight messages.
func (c *Conn) Close() error {
	if c.client != nil {
		c.client.Disconnect(1000)
	}
	return nil
}
