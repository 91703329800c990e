// Package engine runs the cycle controller: it feeds relay, power, button and
// price inputs to logic.Machine from a single goroutine and carries out the
// commands the machine returns.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/gpio"
	"github.com/sweeney/dishwasher-scheduler/internal/logger"
	"github.com/sweeney/dishwasher-scheduler/internal/logic"
	"github.com/sweeney/dishwasher-scheduler/internal/metrics"
	"github.com/sweeney/dishwasher-scheduler/internal/mqtt"
	"github.com/sweeney/dishwasher-scheduler/internal/price"
	"github.com/sweeney/dishwasher-scheduler/internal/relay"
	"github.com/sweeney/dishwasher-scheduler/internal/status"
)

// StopError is used as a context cancel cause to name the reason reported in
// the SHUTDOWN event (e.g. "SIGTERM").
type StopError struct {
	Reason string
}

func (e StopError) Error() string { return "stopped: " + e.Reason }

// Deps are the collaborators the engine drives. Prices, Button, Conn,
// Tracker and Metrics are optional.
type Deps struct {
	Switch    relay.Switch
	Meter     relay.Meter
	Prices    price.Source
	Button    gpio.Reader
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus
	Tracker   *status.Tracker
	Metrics   metrics.Recorder
	Log       logger.Logger
}

// Options are the engine's static parameters.
type Options struct {
	Cycle        logic.Config
	Heartbeat    time.Duration
	FetchTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type fetchResult struct {
	series logic.PriceSeries
	err    error
}

// Engine owns the machine. All fields are confined to the Run goroutine
// except results, which the fetch goroutine writes.
type Engine struct {
	d       Deps
	opt     Options
	machine *logic.Machine
	results chan fetchResult

	fetching bool
	edge     gpio.Edge

	// tickDone, if set, runs after each tick is fully handled.
	tickDone func()
}

// New creates an engine. The machine's clock starts at opt.Now().
func New(d Deps, opt Options) *Engine {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	return &Engine{
		d:       d,
		opt:     opt,
		machine: logic.NewMachine(opt.Cycle, opt.Now()),
		results: make(chan fetchResult, 1),
	}
}

// Run reads the relay once, then handles ticks, relay changes and price
// results until ctx is done. It only returns ctx-related errors.
func (e *Engine) Run(ctx context.Context, tick <-chan time.Time) error {
	log := e.d.Log
	if e.d.Prices == nil {
		log.Warnf("no price source configured, every schedule uses fallback hour %d", e.opt.Cycle.FallbackHour)
	}

	e.start(ctx)
	e.publishSystem("STARTUP", "", true)

	changes := e.d.Switch.Changes()
	for {
		select {
		case <-ctx.Done():
			reason := "CANCELED"
			var se StopError
			if errors.As(context.Cause(ctx), &se) {
				reason = se.Reason
			}
			log.Infof("shutting down: %s", reason)
			e.publishSystem("SHUTDOWN", reason, true)
			return nil

		case <-tick:
			e.onTick(ctx, e.opt.Now())
			if e.tickDone != nil {
				e.tickDone()
			}

		case c, ok := <-changes:
			if !ok {
				log.Warnf("relay change stream closed")
				changes = nil
				continue
			}
			log.Debugf("relay %s (%s)", onOff(c.On), c.Origin)
			if c.Origin == logic.OriginExternal {
				e.track(func(t *status.Tracker) { t.SetRelay(c.On) })
			}
			e.apply(ctx, e.machine.OnRelayChanged(c))

		case r := <-e.results:
			e.fetching = false
			e.onFetched(ctx, r, e.opt.Now())
		}
	}
}

func (e *Engine) start(ctx context.Context) {
	now := e.opt.Now()
	on, err := e.d.Switch.Output(ctx)
	if err != nil {
		// Treat as on: the first tick then decides from power alone and the
		// relay is left untouched.
		e.d.Log.Errorf("read relay at startup: %v", err)
		on = true
	} else {
		e.track(func(t *status.Tracker) { t.SetRelay(on) })
	}
	e.d.Log.Infof("started: relay=%s idle_timeout=%v start_offset=%v min_power=%.1fW fallback_hour=%d",
		onOff(on), e.opt.Cycle.IdleTimeout, e.opt.Cycle.StartOffset, e.opt.Cycle.MinPower, e.opt.Cycle.FallbackHour)
	e.apply(ctx, e.machine.Start(on, now))
}

func (e *Engine) onTick(ctx context.Context, now time.Time) {
	power, err := e.d.Meter.Power(ctx)
	if err != nil {
		e.d.Log.Warnf("power read error: %v", err)
	} else {
		e.machine.Monitor().Observe(logic.Sample{Power: power, Time: now})
		e.d.Metrics.ObservePower(power)
		e.track(func(t *status.Tracker) { t.SetPower(power) })
		e.apply(ctx, e.machine.OnTick(power, now))
	}

	e.pollButton(ctx, now)

	if hb := e.machine.CheckHeartbeat(now, e.opt.Heartbeat); hb != nil {
		e.d.Log.Infof("heartbeat: uptime=%v state=%s completed=%d scheduled=%d manual=%d fallbacks=%d",
			hb.Uptime.Truncate(time.Second), hb.State, hb.Counts.Completed, hb.Counts.ScheduledStarts,
			hb.Counts.ManualStarts, hb.Counts.Fallbacks)
		e.publishSystem("HEARTBEAT", "", false)
	}
	e.sync()
}

// pollButton turns a button press into a manual start: the machine sees an
// external relay-on and the relay is switched on.
func (e *Engine) pollButton(ctx context.Context, now time.Time) {
	if e.d.Button == nil {
		return
	}
	held, err := e.d.Button.Read()
	if err != nil {
		e.d.Log.Warnf("button read error: %v", err)
		return
	}
	if !e.edge.Update(held) {
		return
	}
	e.d.Log.Infof("button pressed")
	e.apply(ctx, e.machine.OnRelayChanged(logic.RelayChange{On: true, Origin: logic.OriginExternal, Time: now}))
	e.setRelay(ctx, true)
}

func (e *Engine) onFetched(ctx context.Context, r fetchResult, now time.Time) {
	if e.d.Prices != nil {
		e.d.Metrics.ObservePriceFetch(r.err)
	}
	series := r.series
	if r.err != nil {
		e.d.Log.Warnf("price fetch failed, using fallback: %v", r.err)
		series = nil
	}
	s := logic.ChooseStart(series, now, e.opt.Cycle)
	if s.Basis == logic.BasisFallback && r.err == nil && e.d.Prices != nil {
		e.d.Log.Warnf("price series has %d hours, not enough for hour %d; using fallback", len(series), now.Hour())
	}
	e.d.Log.Infof("schedule computed: start=%s basis=%s", s.Start.Format(time.RFC3339), s.Basis)
	e.apply(ctx, e.machine.OnScheduled(s, now))
}

func (e *Engine) apply(ctx context.Context, step logic.Step) {
	if t := step.Transition; t != nil {
		e.publishTransition(*t)
	}
	for _, cmd := range step.Commands {
		switch cmd {
		case logic.CommandRelayOn:
			e.setRelay(ctx, true)
		case logic.CommandRelayOff:
			e.setRelay(ctx, false)
		case logic.CommandSchedule:
			e.requestSchedule(ctx)
		default:
			e.d.Log.Errorf("unknown command %q", cmd)
		}
	}
	e.sync()
}

func (e *Engine) setRelay(ctx context.Context, on bool) {
	if err := e.d.Switch.Set(ctx, on); err != nil {
		e.d.Log.Errorf("switch relay %s: %v", onOff(on), err)
		return
	}
	e.track(func(t *status.Tracker) { t.SetRelay(on) })
}

// requestSchedule starts the price fetch. At most one fetch runs at a time;
// its result is handled on the Run goroutine.
func (e *Engine) requestSchedule(ctx context.Context) {
	if e.fetching {
		return
	}
	e.fetching = true
	src := e.d.Prices
	timeout := e.opt.FetchTimeout
	go func() {
		var r fetchResult
		if src != nil {
			fctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			r.series, r.err = src.Fetch(fctx)
		}
		select {
		case e.results <- r:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) publishTransition(t logic.Transition) {
	if t.To == logic.StateWaiting {
		e.d.Log.Infof("transition: %s -> %s (%s) start=%s basis=%s",
			t.From, t.To, t.Reason, t.ScheduledStart.Format(time.RFC3339), t.Basis)
		e.d.Metrics.ObserveSchedule(logic.Schedule{Start: t.ScheduledStart, Basis: t.Basis})
	} else {
		e.d.Log.Infof("transition: %s -> %s (%s)", t.From, t.To, t.Reason)
	}
	e.d.Metrics.ObserveTransition(t)
	if err := e.d.Publisher.Publish(t); err != nil {
		// Don't crash on publish failure
		e.d.Log.Errorf("publish error: %v", err)
	}
}

func (e *Engine) publishSystem(event, reason string, retained bool) {
	e.sync()
	ev := mqtt.SystemEvent{
		Timestamp: e.opt.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if e.d.Tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(e.d.Tracker.Snapshot(), event, reason)
	}
	if err := e.d.Publisher.PublishSystem(ev); err != nil {
		e.d.Log.Errorf("failed to publish %s event: %v", event, err)
	}
}

// sync copies the machine state to the tracker and metrics.
func (e *Engine) sync() {
	m := e.machine
	e.d.Metrics.ObserveState(m.State())
	e.track(func(t *status.Tracker) {
		start, basis, _ := m.ScheduledStart()
		t.Update(status.Cycle{
			State:          m.State(),
			Pending:        m.Pending(),
			ScheduledStart: start,
			Basis:          basis,
			LastHigh:       m.Monitor().LastHigh(),
			Counts:         m.Counts(),
		})
		if e.d.Conn != nil {
			t.SetMQTTConnected(e.d.Conn.IsConnected())
		}
	})
}

func (e *Engine) track(f func(*status.Tracker)) {
	if e.d.Tracker != nil {
		f(e.d.Tracker)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
