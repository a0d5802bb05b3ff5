package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/session"
)

// Metrics holds the Prometheus collectors for send runs.
type Metrics struct {
	OutcomesTotal *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	RunActive     prometheus.Gauge
	RunState      *prometheus.GaugeVec
	CursorIndex   prometheus.Gauge

	registry *prometheus.Registry
}

var states = []session.State{
	session.Idle,
	session.Running,
	session.PausedHours,
	session.PausedCooldown,
	session.Finished,
	session.Stopped,
	session.Aborted,
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacedsend_outcomes_total",
				Help: "Recipient outcomes by status",
			},
			[]string{"status"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacedsend_runs_total",
				Help: "Completed runs by terminal state and reason",
			},
			[]string{"state", "reason"},
		),
		RunActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacedsend_run_active",
				Help: "1 while a run is in progress",
			},
		),
		RunState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacedsend_run_state",
				Help: "Current send loop state (1 for the active state)",
			},
			[]string{"state"},
		),
		CursorIndex: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacedsend_cursor_index",
				Help: "Index of the next unprocessed recipient",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.OutcomesTotal,
		m.RunsTotal,
		m.RunActive,
		m.RunState,
		m.CursorIndex,
		collectors.NewGoCollector(),
	)
	m.ObserveState(session.Idle)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOutcome(o model.Outcome) {
	m.OutcomesTotal.WithLabelValues(string(o.Status)).Inc()
	if o.Index >= 0 {
		m.CursorIndex.Set(float64(o.Index + 1))
	}
}

func (m *Metrics) ObserveState(s session.State) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.RunState.WithLabelValues(string(st)).Set(v)
	}
	if s == session.Idle || s.Terminal() {
		m.RunActive.Set(0)
	} else {
		m.RunActive.Set(1)
	}
}

func (m *Metrics) ObserveResult(res session.Result) {
	m.RunsTotal.WithLabelValues(string(res.State), string(res.Reason)).Inc()
	m.CursorIndex.Set(float64(res.Cursor.LastIndex))
}
