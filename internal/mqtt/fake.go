package mqtt

import (
	"sync"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// FakePublisher keeps everything it is asked to publish in memory. The
// exported fields may be read directly once the engine has stopped; use the
// accessor methods while it is running.
type FakePublisher struct {
	mu sync.Mutex

	Transitions    []logic.Transition
	Payloads       [][]byte // formatted transitions, same order as Transitions
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	PublishError       error // returned by Publish when set
	PublishSystemError error // returned by PublishSystem when set

	Closed    bool
	Connected bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(t logic.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(t)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, t)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	f.Connected = connected
	f.mu.Unlock()
}

func (f *FakePublisher) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}

// Published returns a copy of the recorded transitions.
func (f *FakePublisher) Published() []logic.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Transition(nil), f.Transitions...)
}

// System returns a copy of the recorded system events.
func (f *FakePublisher) System() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset returns the fake to its initial state.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions, f.Payloads = nil, nil
	f.SystemEvents, f.SystemPayloads = nil, nil
	f.PublishError, f.PublishSystemError = nil, nil
	f.Closed, f.Connected = false, false
}
