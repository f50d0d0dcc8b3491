package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	hardwareFaults  *prometheus.CounterVec
	breatheSteps    prometheus.Counter
	channelDuty     *prometheus.GaugeVec
	dispatcherState *prometheus.GaugeVec
	queueDepth      prometheus.Gauge
	buttonPresses   prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceglow_events_total",
				Help: "Lifecycle events handled by the dispatcher",
			},
			[]string{"type"},
		),
		hardwareFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceglow_hardware_faults_total",
				Help: "Failed duty-cycle writes",
			},
			[]string{"channel"},
		),
		breatheSteps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceglow_breathe_steps_total",
				Help: "Idle breathing samples written",
			},
		),
		channelDuty: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voiceglow_channel_duty_percent",
				Help: "Last recorded duty cycle per LED channel",
			},
			[]string{"channel"},
		),
		dispatcherState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voiceglow_dispatcher_state",
				Help: "1 for the dispatcher's current state, 0 otherwise",
			},
			[]string{"state"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voiceglow_event_queue_depth",
				Help: "Events waiting in the dispatcher queue",
			},
		),
		buttonPresses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceglow_button_presses_total",
				Help: "Debounced trigger button presses",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) event(typ string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(typ).Inc()
}

func (m *Metrics) hardwareFault(channel string) {
	if m == nil {
		return
	}
	m.hardwareFaults.WithLabelValues(channel).Inc()
}

func (m *Metrics) breatheStep() {
	if m == nil {
		return
	}
	m.breatheSteps.Inc()
}

func (m *Metrics) setDuty(channel string, duty float64) {
	if m == nil {
		return
	}
	m.channelDuty.WithLabelValues(channel).Set(duty)
}

func (m *Metrics) setState(state DispatcherState) {
	if m == nil {
		return
	}
	for _, s := range allDispatcherStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.dispatcherState.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) buttonPress() {
	if m == nil {
		return
	}
	m.buttonPresses.Inc()
}
