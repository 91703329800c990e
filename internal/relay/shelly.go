package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/dishwasher-scheduler/internal/config"
	"github.com/sweeney/dishwasher-scheduler/internal/logger"
	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// Broker is the subset of an MQTT connection the Shelly binding needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Src    string `json:"src"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Src    string          `json:"src"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type switchParams struct {
	ID int   `json:"id"`
	On *bool `json:"on,omitempty"`
}

type switchStatus struct {
	ID     int      `json:"id"`
	Source string   `json:"source"`
	Output *bool    `json:"output"`
	APower *float64 `json:"apower"`
}

// sendError means the request never left, so the device cannot have acted.
type sendError struct {
	method string
	err    error
}

func (e *sendError) Error() string { return "send " + e.method + ": " + e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

type notification struct {
	Method string                     `json:"method"`
	Params map[string]json.RawMessage `json:"params"`
}

// Shelly drives one switch channel of a Shelly Gen2 device through its MQTT
// RPC channel and watches NotifyStatus events for output changes.
type Shelly struct {
	broker   Broker
	log      logger.Logger
	prefix   string
	src      string
	switchID int
	key      string
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	nextID  int64
	waiting map[int64]chan rpcResponse
	origins *originTracker
	changes chan logic.RelayChange
	closed  bool
}

// NewShelly subscribes to the device's event stream and to our private reply
// topic. clientID seeds the RPC source name.
func NewShelly(b Broker, cfg config.ShellyConfig, clientID string, log logger.Logger) (*Shelly, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Shelly{
		broker:   b,
		log:      log,
		prefix:   cfg.Prefix,
		src:      clientID + "-" + uuid.NewString()[:8],
		switchID: cfg.SwitchID,
		key:      "switch:" + strconv.Itoa(cfg.SwitchID),
		timeout:  cfg.RPCTimeout,
		now:      time.Now,
		waiting:  make(map[int64]chan rpcResponse),
		origins:  newOriginTracker(cfg.SelfWindow, cfg.SelfSources),
		changes:  make(chan logic.RelayChange, 16),
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}

	if err := b.Subscribe(s.src+"/rpc", 1, s.onResponse); err != nil {
		return nil, fmt.Errorf("subscribe rpc replies: %w", err)
	}
	if err := b.Subscribe(s.prefix+"/events/rpc", 1, s.onNotify); err != nil {
		return nil, fmt.Errorf("subscribe device events: %w", err)
	}
	return s, nil
}

// Source is the RPC "src" this binding sends with each request.
func (s *Shelly) Source() string { return s.src }

func (s *Shelly) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	ch := make(chan rpcResponse, 1)
	s.waiting[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiting, id)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(rpcRequest{ID: id, Src: s.src, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	if err := s.broker.Publish(s.prefix+"/rpc", 1, false, payload); err != nil {
		return nil, &sendError{method: method, err: err}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: device error %d: %s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Shelly) onResponse(_ string, payload []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.log.Warnf("bad rpc reply: %v", err)
		return
	}
	s.mu.Lock()
	ch, ok := s.waiting[resp.ID]
	s.mu.Unlock()
	if !ok {
		s.log.Debugf("unsolicited rpc reply id=%d", resp.ID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (s *Shelly) onNotify(_ string, payload []byte) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		s.log.Warnf("bad device event: %v", err)
		return
	}
	if n.Method != "NotifyStatus" && n.Method != "NotifyFullStatus" {
		return
	}
	raw, ok := n.Params[s.key]
	if !ok {
		return
	}
	var st switchStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		s.log.Warnf("bad %s status: %v", s.key, err)
		return
	}
	if st.Output == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.now()
	change := logic.RelayChange{
		On:     *st.Output,
		Origin: s.origins.classify(*st.Output, st.Source, now),
		Time:   now,
	}
	select {
	case s.changes <- change:
	default:
		s.log.Warnf("relay change dropped, consumer is behind")
	}
}

func (s *Shelly) status(ctx context.Context) (switchStatus, error) {
	var st switchStatus
	raw, err := s.call(ctx, "Switch.GetStatus", switchParams{ID: s.switchID})
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("decode switch status: %w", err)
	}
	return st, nil
}

// Output reads the current relay state.
func (s *Shelly) Output(ctx context.Context) (bool, error) {
	st, err := s.status(ctx)
	if err != nil {
		return false, err
	}
	if st.Output == nil {
		return false, fmt.Errorf("%s status has no output field", s.key)
	}
	return *st.Output, nil
}

// Power reads the active power in watts.
func (s *Shelly) Power(ctx context.Context) (float64, error) {
	st, err := s.status(ctx)
	if err != nil {
		return 0, err
	}
	if st.APower == nil {
		return 0, fmt.Errorf("%s status has no apower field", s.key)
	}
	return *st.APower, nil
}

// Set switches the relay. The resulting change notification is tagged as
// self-originated.
func (s *Shelly) Set(ctx context.Context, on bool) error {
	s.mu.Lock()
	at := s.now()
	s.origins.issue(on, at)
	s.mu.Unlock()

	_, err := s.call(ctx, "Switch.Set", switchParams{ID: s.switchID, On: &on})
	var se *sendError
	if errors.As(err, &se) {
		s.mu.Lock()
		s.origins.withdraw(on, at)
		s.mu.Unlock()
	}
	return err
}

func (s *Shelly) Changes() <-chan logic.RelayChange { return s.changes }

// Close stops delivering changes and fails further calls.
func (s *Shelly) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.changes)
	}
	return nil
}
