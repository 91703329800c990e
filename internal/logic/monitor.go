package logic

import "time"

// PowerMonitor remembers the last instant power exceeded the threshold.
type PowerMonitor struct {
	minPower float64
	lastHigh time.Time
}

// NewPowerMonitor creates a monitor whose idle clock starts at start.
func NewPowerMonitor(minPower float64, start time.Time) *PowerMonitor {
	return &PowerMonitor{minPower: minPower, lastHigh: start}
}

// Observe records a sample. Only samples strictly above the threshold move
// the last-high instant, and it never moves backwards.
func (p *PowerMonitor) Observe(s Sample) {
	if s.Power > p.minPower && s.Time.After(p.lastHigh) {
		p.lastHigh = s.Time
	}
}

// Idle returns how long power has stayed at or below the threshold.
func (p *PowerMonitor) Idle(now time.Time) time.Duration {
	return now.Sub(p.lastHigh)
}

// ResetTo restarts the idle clock at t, even if t is earlier than the
// current last-high instant.
func (p *PowerMonitor) ResetTo(t time.Time) {
	p.lastHigh = t
}

// LastHigh returns the last instant power exceeded the threshold.
func (p *PowerMonitor) LastHigh() time.Time {
	return p.lastHigh
}

// IsHigh reports whether a reading counts as the load drawing power.
func (p *PowerMonitor) IsHigh(power float64) bool {
	return power > p.minPower
}
