// Package relay talks to the switched outlet feeding the load: its output
// state, its change notifications and its power meter.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// ErrTimeout is returned when the device does not answer an RPC in time.
var ErrTimeout = errors.New("relay: rpc timeout")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("relay: closed")

// Switch is a relay whose output can be read, set and observed.
type Switch interface {
	Output(ctx context.Context) (bool, error)
	Set(ctx context.Context, on bool) error
	// Changes delivers every observed output change, tagged with its origin.
	Changes() <-chan logic.RelayChange
	Close() error
}

// Meter reports the instantaneous active power drawn through the relay.
type Meter interface {
	Power(ctx context.Context) (float64, error)
}

// Fake is an in-memory relay and meter for tests.
type Fake struct {
	mu       sync.Mutex
	on       bool
	power    float64
	sets     []bool
	setErr   error
	powerErr error
	changes  chan logic.RelayChange
	closed   bool
}

// NewFake returns a fake relay with the given initial output.
func NewFake(on bool) *Fake {
	return &Fake{on: on, changes: make(chan logic.RelayChange, 16)}
}

func (f *Fake) Output(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on, nil
}

// Set records the command and, on success, emits a self-originated change.
func (f *Fake) Set(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.sets = append(f.sets, on)
	if f.setErr != nil {
		return f.setErr
	}
	changed := f.on != on
	f.on = on
	if changed {
		f.emit(logic.RelayChange{On: on, Origin: logic.OriginSelf, Time: time.Now()})
	}
	return nil
}

// Flip simulates someone toggling the relay by hand.
func (f *Fake) Flip(on bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
	f.emit(logic.RelayChange{On: on, Origin: logic.OriginExternal, Time: at})
}

func (f *Fake) emit(c logic.RelayChange) {
	if f.closed {
		return
	}
	select {
	case f.changes <- c:
	default:
	}
}

func (f *Fake) Changes() <-chan logic.RelayChange { return f.changes }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.changes)
	}
	return nil
}

func (f *Fake) Power(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.power, f.powerErr
}

// SetPower sets the value returned by Power.
func (f *Fake) SetPower(w float64) {
	f.mu.Lock()
	f.power = w
	f.mu.Unlock()
}

// FailSet makes subsequent Set calls fail with err (nil clears it).
func (f *Fake) FailSet(err error) {
	f.mu.Lock()
	f.setErr = err
	f.mu.Unlock()
}

// FailPower makes subsequent Power calls fail with err (nil clears it).
func (f *Fake) FailPower(err error) {
	f.mu.Lock()
	f.powerErr = err
	f.mu.Unlock()
}

// Sets returns every value passed to Set, in order.
func (f *Fake) Sets() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.sets...)
}

// IsOn returns the current simulated output.
func (f *Fake) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}
