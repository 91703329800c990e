package logic

import "time"

// Machine is the cycle controller. It is not safe for concurrent use; all
// inputs must be delivered from a single goroutine.
type Machine struct {
	cfg     Config
	state   State
	monitor *PowerMonitor

	scheduled time.Time
	basis     Basis

	// pending is set while a CommandSchedule is outstanding.
	pending       bool
	pendingReason Reason

	startTime     time.Time
	counts        CycleCounts
	lastHeartbeat time.Time
}

// NewMachine creates a machine in StateStartup.
// The startTime seeds the idle clock and is used for heartbeat uptime.
func NewMachine(cfg Config, startTime time.Time) *Machine {
	return &Machine{
		cfg:           cfg,
		state:         StateStartup,
		monitor:       NewPowerMonitor(cfg.MinPower, startTime),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Start applies the relay output read once at process start. With the relay
// on, the machine stays in StateStartup until the first tick. With the relay
// off, it arms and asks for a schedule straight away.
func (m *Machine) Start(relayOn bool, now time.Time) Step {
	if relayOn || m.state != StateStartup {
		return Step{}
	}
	t := m.transition(now, StateArmed, ReasonRelayOff)
	return Step{Transition: t, Commands: m.requestSchedule(ReasonRelayOff)}
}

// Monitor returns the power monitor fed by the tick handler.
func (m *Machine) Monitor() *PowerMonitor {
	return m.monitor
}

// OnTick evaluates the current state against a fresh power reading. The
// reading should already have been passed to Monitor().Observe.
func (m *Machine) OnTick(power float64, now time.Time) Step {
	switch m.state {
	case StateStartup:
		if m.monitor.IsHigh(power) {
			m.monitor.ResetTo(now)
			return Step{Transition: m.transition(now, StateRunning, ReasonPowerHigh)}
		}
		return Step{Transition: m.transition(now, StateArmed, ReasonPowerLow)}

	case StateArmed:
		if m.pending || !m.monitor.IsHigh(power) {
			return Step{}
		}
		return Step{Commands: m.requestSchedule(ReasonPowerHigh)}

	case StateWaiting:
		if now.Before(m.scheduled) {
			return Step{}
		}
		m.monitor.ResetTo(now)
		m.counts.ScheduledStarts++
		t := m.transition(now, StateRunning, ReasonWindowReached)
		return Step{Transition: t, Commands: []Command{CommandRelayOn}}

	case StateRunning:
		if m.monitor.Idle(now) < m.cfg.IdleTimeout {
			return Step{}
		}
		m.counts.Completed++
		return Step{Transition: m.transition(now, StateArmed, ReasonCycleFinished)}
	}
	return Step{}
}

// OnRelayChanged handles a relay notification. Self-initiated changes are
// echoes of our own commands and never change state.
func (m *Machine) OnRelayChanged(c RelayChange) Step {
	if c.Origin == OriginSelf {
		return Step{}
	}

	if c.On {
		if m.state != StateWaiting {
			return Step{}
		}
		m.monitor.ResetTo(c.Time)
		m.counts.ManualStarts++
		return Step{Transition: m.transition(c.Time, StateRunning, ReasonManualStart)}
	}

	if m.state == StateWaiting || m.pending {
		return Step{}
	}
	return Step{Commands: m.requestSchedule(ReasonManualStop)}
}

// OnScheduled completes an outstanding CommandSchedule and enters
// StateWaiting. When the start is already in the past the relay is left
// alone and the next tick starts the cycle. Results that arrive without an
// outstanding request are ignored.
func (m *Machine) OnScheduled(s Schedule, now time.Time) Step {
	if !m.pending {
		return Step{}
	}
	m.pending = false
	m.scheduled = s.Start
	m.basis = s.Basis
	if s.Basis == BasisFallback {
		m.counts.Fallbacks++
	}

	if s.Start.Before(now) {
		m.counts.StaleSchedules++
		return Step{Transition: m.transition(now, StateWaiting, ReasonStaleSchedule)}
	}
	t := m.transition(now, StateWaiting, m.pendingReason)
	return Step{Transition: t, Commands: []Command{CommandRelayOff}}
}

func (m *Machine) requestSchedule(reason Reason) []Command {
	m.pending = true
	m.pendingReason = reason
	return []Command{CommandSchedule}
}

func (m *Machine) transition(now time.Time, to State, reason Reason) *Transition {
	t := &Transition{
		Timestamp: now,
		From:      m.state,
		To:        to,
		Reason:    reason,
	}
	if to == StateWaiting {
		t.ScheduledStart = m.scheduled
		t.Basis = m.basis
	}
	m.state = to
	return t
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// ScheduledStart returns the start instant and its basis. ok is false
// outside StateWaiting.
func (m *Machine) ScheduledStart() (start time.Time, basis Basis, ok bool) {
	if m.state != StateWaiting {
		return time.Time{}, "", false
	}
	return m.scheduled, m.basis, true
}

// Pending reports whether a schedule request is outstanding.
func (m *Machine) Pending() bool {
	return m.pending
}

// Counts returns a copy of the cycle counters.
func (m *Machine) Counts() CycleCounts {
	return m.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		State:     m.state,
		Counts:    m.counts,
	}
}
