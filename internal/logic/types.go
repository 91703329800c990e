// Package logic contains the pure scheduling and cycle-tracking logic for the
// dishwasher scheduler.
// This package has NO external dependencies (no relay, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the load.
type State int

const (
	// StateStartup is entered once at process start and resolved on the first tick.
	StateStartup State = iota
	// StateArmed means the load is idle and we watch for it to draw power.
	StateArmed
	// StateWaiting means the relay is held off until the scheduled start.
	StateWaiting
	// StateRunning means a cycle is in progress.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateArmed:
		return "ARMED"
	case StateWaiting:
		return "WAITING"
	case StateRunning:
		return "RUNNING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Origin tags who caused a relay change.
type Origin string

const (
	// OriginSelf marks changes caused by our own relay commands.
	OriginSelf Origin = "self"
	// OriginExternal marks changes made by a person or another controller.
	OriginExternal Origin = "external"
)

// Command is an instruction for the surrounding I/O code.
type Command string

const (
	CommandRelayOn  Command = "RELAY_ON"
	CommandRelayOff Command = "RELAY_OFF"
	// CommandSchedule asks for a start time to be computed and delivered back
	// through Machine.OnScheduled.
	CommandSchedule Command = "SCHEDULE"
)

// Reason explains why a transition happened.
type Reason string

const (
	ReasonPowerHigh     Reason = "POWER_HIGH"
	ReasonPowerLow      Reason = "POWER_LOW"
	ReasonRelayOff      Reason = "RELAY_OFF_AT_STARTUP"
	ReasonStaleSchedule Reason = "STALE_SCHEDULE"
	ReasonWindowReached Reason = "WINDOW_REACHED"
	ReasonManualStart   Reason = "MANUAL_START"
	ReasonManualStop    Reason = "MANUAL_STOP"
	ReasonCycleFinished Reason = "CYCLE_FINISHED"
)

// Basis records what a scheduled start was derived from.
type Basis string

const (
	BasisPrices   Basis = "PRICES"
	BasisFallback Basis = "FALLBACK"
)

// Config holds the static cycle parameters.
type Config struct {
	// IdleTimeout is how long power must stay at or below MinPower before a
	// running cycle counts as finished.
	IdleTimeout time.Duration
	// StartOffset shifts every computed start; negative starts early.
	StartOffset time.Duration
	// MinPower is the wattage above which the load is considered running.
	MinPower float64
	// FallbackHour is the hour of day (0-23) used when no prices are available.
	FallbackHour int
}

// PriceSeries holds hourly prices. Index 0 is hour 0 of today in local time;
// index 24 is hour 0 of tomorrow.
type PriceSeries []float64

// Sample is a single power reading.
type Sample struct {
	Power float64
	Time  time.Time
}

// RelayChange is a relay output change notification.
type RelayChange struct {
	On     bool
	Origin Origin
	Time   time.Time
}

// Schedule is a computed start instant delivered to the machine.
type Schedule struct {
	Start time.Time
	Basis Basis
}

// Transition describes a state change to be published.
type Transition struct {
	Timestamp      time.Time
	From           State
	To             State
	Reason         Reason
	ScheduledStart time.Time // zero unless To is StateWaiting
	Basis          Basis     // empty unless To is StateWaiting
}

// Step is the result of feeding one input to the machine.
type Step struct {
	Transition *Transition
	Commands   []Command
}

// CycleCounts tracks notable events since startup.
type CycleCounts struct {
	Completed       int
	ScheduledStarts int
	ManualStarts    int
	Fallbacks       int
	StaleSchedules  int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     State
	Counts    CycleCounts
}
