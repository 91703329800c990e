package relay

import (
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

type issued struct {
	on bool
	at time.Time
}

// originTracker decides whether an observed output change was caused by a
// command we sent. Not safe for concurrent use.
type originTracker struct {
	window  time.Duration
	sources map[string]bool
	recent  []issued
}

func newOriginTracker(window time.Duration, selfSources []string) *originTracker {
	t := &originTracker{window: window, sources: make(map[string]bool, len(selfSources))}
	for _, s := range selfSources {
		t.sources[s] = true
	}
	return t
}

// issue records a command sent at now.
func (t *originTracker) issue(on bool, now time.Time) {
	t.expire(now)
	t.recent = append(t.recent, issued{on: on, at: now})
}

// withdraw removes the command issued at the given instant, for a command
// that never reached the device.
func (t *originTracker) withdraw(on bool, at time.Time) {
	for i, c := range t.recent {
		if c.on == on && c.at.Equal(at) {
			t.recent = append(t.recent[:i], t.recent[i+1:]...)
			return
		}
	}
}

// classify tags a change to output on, reported with the device's source
// string. A matching recent command is consumed.
func (t *originTracker) classify(on bool, source string, now time.Time) logic.Origin {
	t.expire(now)
	if t.sources[source] {
		return logic.OriginSelf
	}
	for i, c := range t.recent {
		if c.on == on {
			t.recent = append(t.recent[:i], t.recent[i+1:]...)
			return logic.OriginSelf
		}
	}
	return logic.OriginExternal
}

func (t *originTracker) expire(now time.Time) {
	keep := t.recent[:0]
	for _, c := range t.recent {
		if now.Sub(c.at) <= t.window {
			keep = append(keep, c)
		}
	}
	t.recent = keep
}
