package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string     `json:"event,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	State           string     `json:"state"`
	Ready           bool       `json:"ready"`
	SchedulePending bool       `json:"schedule_pending"`
	ScheduledStart  string     `json:"scheduled_start,omitempty"`
	Basis           string     `json:"basis,omitempty"`
	Relay           string     `json:"relay"`
	PowerW          *float64   `json:"power_w"`
	IdleSeconds     int64      `json:"idle_seconds"`
	UptimeSeconds   int64      `json:"uptime_seconds"`
	StartTime       string     `json:"start_time"`
	Timestamp       string     `json:"timestamp"`
	MQTT            MQTTStatus `json:"mqtt"`
	Counts          CountsJSON `json:"cycle_counts"`
	Config          ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle counts.
type CountsJSON struct {
	Completed       int `json:"completed"`
	ScheduledStarts int `json:"scheduled_starts"`
	ManualStarts    int `json:"manual_starts"`
	Fallbacks       int `json:"fallbacks"`
	StaleSchedules  int `json:"stale_schedules"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs        int64   `json:"tick_ms"`
	HeartbeatMs   int64   `json:"heartbeat_ms"`
	IdleTimeoutMs int64   `json:"idle_timeout_ms"`
	StartOffsetMs int64   `json:"start_offset_ms"`
	MinPower      float64 `json:"min_power"`
	FallbackHour  int     `json:"fallback_hour"`
	Broker        string  `json:"broker"`
	HTTPAddr      string  `json:"http_addr"`
	PriceSource   string  `json:"price_source"`
}

func buildInner(snap Snapshot) StatusInner {
	relay := "UNKNOWN"
	if snap.RelayKnown {
		relay = "OFF"
		if snap.RelayOn {
			relay = "ON"
		}
	}

	inner := StatusInner{
		State:           snap.State.String(),
		Ready:           snap.State != logic.StateStartup,
		SchedulePending: snap.Pending,
		Basis:           string(snap.Basis),
		Relay:           relay,
		IdleSeconds:     int64(snap.Idle().Truncate(time.Second).Seconds()),
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:       snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:       snap.Now.UTC().Format(time.RFC3339),
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Completed:       snap.Counts.Completed,
			ScheduledStarts: snap.Counts.ScheduledStarts,
			ManualStarts:    snap.Counts.ManualStarts,
			Fallbacks:       snap.Counts.Fallbacks,
			StaleSchedules:  snap.Counts.StaleSchedules,
		},
		Config: ConfigJSON{
			TickMs:        snap.Config.TickMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			IdleTimeoutMs: snap.Config.IdleTimeoutMs,
			StartOffsetMs: snap.Config.StartOffsetMs,
			MinPower:      snap.Config.MinPower,
			FallbackHour:  snap.Config.FallbackHour,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			PriceSource:   snap.Config.PriceSource,
		},
	}
	if !snap.ScheduledStart.IsZero() {
		inner.ScheduledStart = snap.ScheduledStart.UTC().Format(time.RFC3339)
	}
	if snap.PowerKnown {
		p := snap.Power
		inner.PowerW = &p
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
