package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": humanDuration,
	"local": func(t time.Time) string {
		return t.Local().Format("Mon 15:04")
	},
}).Parse(indexHTML))

// humanDuration renders d to the second, dropping leading zero units:
// "2d 0h 5m 1s", "5m 1s", "9s".
func humanDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{int64(d / (24 * time.Hour)), "d"},
		{int64(d/time.Hour) % 24, "h"},
		{int64(d/time.Minute) % 60, "m"},
		{int64(d/time.Second) % 60, "s"},
	}
	var b strings.Builder
	for i, p := range parts {
		if b.Len() == 0 && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d%s", p.n, p.unit)
	}
	return b.String()
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Dishwasher Scheduler</title>
<style>
body { font: 14px/1.4 sans-serif; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; color: #666; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 3px 6px; border-bottom: 1px solid #eee; }
th { width: 45%; font-weight: normal; color: #555; }
.running { color: green; font-weight: bold; }
.waiting { color: #06c; font-weight: bold; }
.armed { color: #888; }
.startup { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Dishwasher Scheduler</h1>

<h2>Cycle</h2>
<table>
<tr><th>State</th><td id="state" class="{{.StateClass}}">{{.State}}</td></tr>
{{if not .ScheduledStart.IsZero}}<tr><th>Scheduled start</th><td id="scheduled">{{local .ScheduledStart}} ({{.Basis}})</td></tr>{{end}}
{{if .Pending}}<tr><th>Schedule</th><td>computing…</td></tr>{{end}}
<tr><th>Relay</th><td>{{if .RelayKnown}}{{if .RelayOn}}on{{else}}off{{end}}{{else}}unknown{{end}}</td></tr>
<tr><th>Power</th><td>{{if .PowerKnown}}{{printf "%.1f" .Power}} W{{else}}unknown{{end}}</td></tr>
{{if eq .StateClass "running"}}<tr><th>Idle for</th><td>{{duration .IdleFor}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Prices</th><td>{{.Config.PriceSource}}</td></tr>
</table>

<h2>Cycle Counts</h2>
<table>
<tr><th>Completed</th><td>{{.Counts.Completed}}</td></tr>
<tr><th>Scheduled starts</th><td>{{.Counts.ScheduledStarts}}</td></tr>
<tr><th>Manual starts</th><td>{{.Counts.ManualStarts}}</td></tr>
<tr><th>Fallback schedules</th><td>{{.Counts.Fallbacks}}</td></tr>
<tr><th>Stale schedules</th><td>{{.Counts.StaleSchedules}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .UptimeFor}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Idle timeout</th><td>{{.Config.IdleTimeoutMs}}ms</td></tr>
<tr><th>Min power</th><td>{{.Config.MinPower}} W</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		UptimeFor  time.Duration
		IdleFor    time.Duration
		StateClass string
	}{
		Snapshot:   snap,
		UptimeFor:  snap.Uptime(),
		IdleFor:    snap.Idle(),
		StateClass: strings.ToLower(snap.State.String()),
	}
	indexTmpl.Execute(w, data)
}
