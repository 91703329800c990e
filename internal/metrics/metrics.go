// Package metrics exposes cycle controller state as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// Recorder records controller activity. Implementations must be safe to call
// from the event loop.
type Recorder interface {
	ObserveState(s logic.State)
	ObserveTransition(t logic.Transition)
	ObserveSchedule(s logic.Schedule)
	ObservePower(watts float64)
	ObservePriceFetch(err error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveState(logic.State)           {}
func (Nop) ObserveTransition(logic.Transition) {}
func (Nop) ObserveSchedule(logic.Schedule)     {}
func (Nop) ObservePower(float64)               {}
func (Nop) ObservePriceFetch(error)            {}

var allStates = []logic.State{logic.StateStartup, logic.StateArmed, logic.StateWaiting, logic.StateRunning}

// Prom records controller activity in Prometheus metrics.
type Prom struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	schedules   *prometheus.CounterVec
	nextStart   prometheus.Gauge
	power       prometheus.Gauge
	fetches     *prometheus.CounterVec
}

// NewProm registers the collectors on reg. A nil registerer defaults to the
// global Prometheus registerer.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dishwasher_state",
			Help: "1 for the current cycle state, 0 otherwise",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dishwasher_transitions_total",
			Help: "State transitions by origin state, target state and reason",
		}, []string{"from", "to", "reason"}),
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dishwasher_schedules_total",
			Help: "Computed start times by basis",
		}, []string{"basis"}),
		nextStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dishwasher_scheduled_start_timestamp_seconds",
			Help: "Unix time of the most recently computed start",
		}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dishwasher_power_watts",
			Help: "Last instantaneous power reading",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dishwasher_price_fetches_total",
			Help: "Price fetch attempts by result",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{p.state, p.transitions, p.schedules, p.nextStart, p.power, p.fetches}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}
	p.state = collectors[0].(*prometheus.GaugeVec)
	p.transitions = collectors[1].(*prometheus.CounterVec)
	p.schedules = collectors[2].(*prometheus.CounterVec)
	p.nextStart = collectors[3].(prometheus.Gauge)
	p.power = collectors[4].(prometheus.Gauge)
	p.fetches = collectors[5].(*prometheus.CounterVec)
	return p, nil
}

// ObserveState sets the state gauge so exactly one label is 1.
func (p *Prom) ObserveState(s logic.State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		p.state.WithLabelValues(st.String()).Set(v)
	}
}

func (p *Prom) ObserveTransition(t logic.Transition) {
	p.transitions.WithLabelValues(t.From.String(), t.To.String(), string(t.Reason)).Inc()
	p.ObserveState(t.To)
}

func (p *Prom) ObserveSchedule(s logic.Schedule) {
	p.schedules.WithLabelValues(string(s.Basis)).Inc()
	p.nextStart.Set(float64(s.Start.Unix()))
}

func (p *Prom) ObservePower(watts float64) {
	p.power.Set(watts)
}

func (p *Prom) ObservePriceFetch(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.fetches.WithLabelValues(result).Inc()
}
