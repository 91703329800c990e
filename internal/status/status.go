// Package status provides a thread-safe status tracker for the dishwasher-scheduler daemon.
// The engine writes it; HTTP handlers and MQTT system events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs        int64
	HeartbeatMs   int64
	IdleTimeoutMs int64
	StartOffsetMs int64
	MinPower      float64
	FallbackHour  int
	Broker        string
	HTTPAddr      string
	PriceSource   string // "tibber" or "fallback"
}

// Cycle is the machine-owned part of the status.
type Cycle struct {
	State          logic.State
	Pending        bool
	ScheduledStart time.Time // zero unless State is StateWaiting
	Basis          logic.Basis
	LastHigh       time.Time
	Counts         logic.CycleCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a copy and stays valid after the lock is released.
type Snapshot struct {
	Cycle
	RelayKnown    bool
	RelayOn       bool
	PowerKnown    bool
	Power         float64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Idle returns how long power has been at or below the threshold.
func (s Snapshot) Idle() time.Duration {
	if s.LastHigh.IsZero() {
		return 0
	}
	return s.Now.Sub(s.LastHigh)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the cycle state. Called from the engine loop after every input.
func (t *Tracker) Update(c Cycle) {
	t.mu.Lock()
	t.snap.Cycle = c
	t.mu.Unlock()
}

// SetPower records the latest power reading.
func (t *Tracker) SetPower(watts float64) {
	t.mu.Lock()
	t.snap.Power = watts
	t.snap.PowerKnown = true
	t.mu.Unlock()
}

// SetRelay records the latest known relay output.
func (t *Tracker) SetRelay(on bool) {
	t.mu.Lock()
	t.snap.RelayOn = on
	t.snap.RelayKnown = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
