package logic

import (
	"testing"
	"time"
)

func TestPowerMonitorObserve(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPowerMonitor(6, start)

	p.Observe(Sample{Power: 6, Time: start.Add(10 * time.Second)})
	if !p.LastHigh().Equal(start) {
		t.Errorf("power equal to threshold should not count, lastHigh=%v", p.LastHigh())
	}

	p.Observe(Sample{Power: 6.5, Time: start.Add(20 * time.Second)})
	if !p.LastHigh().Equal(start.Add(20 * time.Second)) {
		t.Errorf("expected lastHigh at +20s, got %v", p.LastHigh())
	}

	if got := p.Idle(start.Add(80 * time.Second)); got != time.Minute {
		t.Errorf("Idle: got %v, want 1m", got)
	}
}

func TestPowerMonitorMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPowerMonitor(6, start)

	p.Observe(Sample{Power: 100, Time: start.Add(time.Minute)})
	p.Observe(Sample{Power: 100, Time: start.Add(30 * time.Second)})
	if !p.LastHigh().Equal(start.Add(time.Minute)) {
		t.Errorf("lastHigh moved backwards to %v", p.LastHigh())
	}
}

func TestPowerMonitorResetTo(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPowerMonitor(6, start)
	p.Observe(Sample{Power: 100, Time: start.Add(time.Hour)})

	p.ResetTo(start.Add(10 * time.Minute))
	if !p.LastHigh().Equal(start.Add(10 * time.Minute)) {
		t.Errorf("ResetTo should move lastHigh unconditionally, got %v", p.LastHigh())
	}
	if got := p.Idle(start.Add(10 * time.Minute)); got != 0 {
		t.Errorf("Idle right after reset: got %v, want 0", got)
	}
}

func TestPowerMonitorIsHigh(t *testing.T) {
	p := NewPowerMonitor(6, time.Time{})
	if p.IsHigh(6) {
		t.Error("6W should not be high with a 6W threshold")
	}
	if !p.IsHigh(6.1) {
		t.Error("6.1W should be high with a 6W threshold")
	}
}
