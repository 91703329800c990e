package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

func fixedTracker(start, now time.Time, cfg Config) *Tracker {
	tr := NewTracker(start, cfg)
	tr.now = func() time.Time { return now }
	return tr
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 1000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 1000 {
		t.Errorf("Config.TickMs: got %d, want 1000", snap.Config.TickMs)
	}
	if snap.State != logic.StateStartup {
		t.Errorf("expected STARTUP initially, got %s", snap.State)
	}
	if snap.MQTTConnected || snap.RelayKnown || snap.PowerKnown {
		t.Error("expected nothing known initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	start := time.Date(2026, 1, 11, 2, 35, 0, 0, time.UTC)

	tr.Update(Cycle{
		State:          logic.StateWaiting,
		ScheduledStart: start,
		Basis:          logic.BasisPrices,
		Counts:         logic.CycleCounts{Completed: 3, Fallbacks: 1},
	})
	tr.SetPower(2.5)
	tr.SetRelay(false)

	snap := tr.Snapshot()
	if snap.State != logic.StateWaiting {
		t.Errorf("State: got %s, want WAITING", snap.State)
	}
	if !snap.ScheduledStart.Equal(start) || snap.Basis != logic.BasisPrices {
		t.Errorf("schedule: got %v %s", snap.ScheduledStart, snap.Basis)
	}
	if snap.Counts.Completed != 3 || snap.Counts.Fallbacks != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if !snap.PowerKnown || snap.Power != 2.5 {
		t.Errorf("Power: got %v (known=%v)", snap.Power, snap.PowerKnown)
	}
	if !snap.RelayKnown || snap.RelayOn {
		t.Errorf("Relay: got on=%v known=%v", snap.RelayOn, snap.RelayKnown)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptimeAndIdle(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)
	tr := fixedTracker(start, now, Config{})

	snap := tr.Snapshot()
	if snap.Uptime() != 2*time.Hour {
		t.Errorf("Uptime: got %v, want 2h", snap.Uptime())
	}
	if snap.Idle() != 0 {
		t.Errorf("Idle without a high sample: got %v, want 0", snap.Idle())
	}

	tr.Update(Cycle{State: logic.StateRunning, LastHigh: now.Add(-7 * time.Minute)})
	if got := tr.Snapshot().Idle(); got != 7*time.Minute {
		t.Errorf("Idle: got %v, want 7m", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(Cycle{State: logic.StateArmed})

	snap := tr.Snapshot()
	tr.Update(Cycle{State: logic.StateRunning})

	if snap.State != logic.StateArmed {
		t.Error("snapshot was mutated by later update")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 14, 0, 30, 0, time.UTC)
	tr := fixedTracker(start, now, Config{
		TickMs:        1000,
		HeartbeatMs:   900000,
		IdleTimeoutMs: 1800000,
		StartOffsetMs: -1500000,
		MinPower:      6,
		FallbackHour:  3,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":8080",
		PriceSource:   "tibber",
	})
	tr.Update(Cycle{
		State:          logic.StateWaiting,
		ScheduledStart: time.Date(2026, 1, 11, 2, 35, 0, 0, time.UTC),
		Basis:          logic.BasisPrices,
		LastHigh:       now.Add(-30 * time.Second),
		Counts:         logic.CycleCounts{Completed: 2, ScheduledStarts: 1},
	})
	tr.SetRelay(false)
	tr.SetPower(0.4)
	tr.SetMQTTConnected(true)

	data := FormatJSON(tr.Snapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.State != "WAITING" || !s.Ready {
		t.Errorf("state: got %s ready=%v", s.State, s.Ready)
	}
	if s.ScheduledStart != "2026-01-11T02:35:00Z" || s.Basis != "PRICES" {
		t.Errorf("schedule: got %s %s", s.ScheduledStart, s.Basis)
	}
	if s.Relay != "OFF" {
		t.Errorf("relay: got %s, want OFF", s.Relay)
	}
	if s.PowerW == nil || *s.PowerW != 0.4 {
		t.Errorf("power_w: got %v", s.PowerW)
	}
	if s.IdleSeconds != 30 {
		t.Errorf("idle_seconds: got %d, want 30", s.IdleSeconds)
	}
	if s.UptimeSeconds != 7230 {
		t.Errorf("uptime_seconds: got %d, want 7230", s.UptimeSeconds)
	}
	if s.Counts.Completed != 2 || s.Counts.ScheduledStarts != 1 {
		t.Errorf("counts: got %+v", s.Counts)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.Config.StartOffsetMs != -1500000 || s.Config.PriceSource != "tibber" {
		t.Errorf("config: got %+v", s.Config)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON must not carry event or reason")
	}
}

func TestFormatJSONBeforeFirstReading(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	data := string(FormatJSON(tr.Snapshot()))

	for _, want := range []string{`"state": "STARTUP"`, `"ready": false`, `"relay": "UNKNOWN"`, `"power_w": null`} {
		if !strings.Contains(data, want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
	var raw struct {
		Status map[string]json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"scheduled_start", "basis"} {
		if _, ok := raw.Status[key]; ok {
			t.Errorf("%s must be omitted outside WAITING", key)
		}
	}
	if _, ok := raw.Status["cycle_counts"]; !ok {
		t.Error("cycle_counts missing")
	}
}

func TestFormatJSONScheduledStartWhileWaiting(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(Cycle{
		State:          logic.StateWaiting,
		ScheduledStart: time.Date(2026, 1, 11, 2, 35, 0, 0, time.UTC),
		Basis:          logic.BasisFallback,
	})
	data := string(FormatJSON(tr.Snapshot()))
	if !strings.Contains(data, `"scheduled_start": "2026-01-11T02:35:00Z"`) {
		t.Errorf("scheduled_start missing in %s", data)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	tr := fixedTracker(start, start.Add(time.Minute), Config{Broker: "tcp://b:1883"})
	tr.Update(Cycle{State: logic.StateArmed})

	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")
	if strings.Contains(string(data), "\n") {
		t.Error("MQTT payload should be compact")
	}

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %s/%s", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.State != "ARMED" {
		t.Errorf("state: got %s", parsed.Status.State)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	data := string(FormatStatusEvent(tr.Snapshot(), "HEARTBEAT", ""))
	if !strings.Contains(data, `"event":"HEARTBEAT"`) {
		t.Errorf("missing event: %s", data)
	}
	if strings.Contains(data, `"reason"`) {
		t.Errorf("reason should be omitted: %s", data)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(Cycle{State: logic.StateRunning, Counts: logic.CycleCounts{Completed: i}})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetPower(float64(i))
			tr.SetRelay(i%3 == 0)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
