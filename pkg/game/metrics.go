package game

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberfall-mud/emberfall/pkg/event"
)

// Metrics exposes engine counters on a private prometheus registry so tests
// can build games side by side without collector collisions.
type Metrics struct {
	reg *prometheus.Registry

	hooksRun     *prometheus.CounterVec
	cancels      prometheus.Counter
	scriptErrors prometheus.Counter
	pulses       prometheus.Counter
	tickRuns     prometheus.Counter
	calendarRuns prometheus.Counter
	currentTick  prometheus.Gauge
	online       prometheus.GaugeFunc
}

func NewMetrics(msg *SessionMessenger) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		hooksRun: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emberfall_event_hooks_total",
			Help: "Event hooks executed, by event name and phase.",
		}, []string{"event", "phase"}),
		cancels: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_action_cancels_total",
			Help: "Actions canceled by a before-phase hook.",
		}),
		scriptErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_script_errors_total",
			Help: "Script executions that returned an error.",
		}),
		pulses: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_scheduler_pulses_total",
			Help: "Global tick pulses.",
		}),
		tickRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_tick_scripts_total",
			Help: "Interval scripts executed.",
		}),
		calendarRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_calendar_scripts_total",
			Help: "Calendar scripts executed.",
		}),
		currentTick: f.NewGauge(prometheus.GaugeOpts{
			Name: "emberfall_current_tick",
			Help: "Current global tick counter.",
		}),
	}
	if msg != nil {
		m.online = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "emberfall_online_characters",
			Help: "Characters with an attached session.",
		}, func() float64 { return float64(msg.OnlineCount()) })
	}
	return m
}

// Observer adapts the metrics to the event hub's observer interface.
func (m *Metrics) Observer() event.Observer {
	return func(n event.Notice) {
		m.hooksRun.WithLabelValues(n.Event, n.Phase).Inc()
		if n.Canceled {
			m.cancels.Inc()
		}
		if n.Err != nil {
			m.scriptErrors.Inc()
		}
	}
}

// Pulse and Calendar are the scheduler's stats hooks.
func (m *Metrics) Pulse(tick uint64, ran int) {
	m.pulses.Inc()
	m.currentTick.Set(float64(tick))
	m.tickRuns.Add(float64(ran))
}

func (m *Metrics) Calendar(ran int) {
	m.calendarRuns.Add(float64(ran))
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
