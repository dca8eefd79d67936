package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clipguard"

// Collector exports mediation counters. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	outcomes       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	events         *prometheus.CounterVec
	historyDropped prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mediations_total",
			Help:      "Mediation outcomes by direction, verdict and how the verdict was reached.",
		}, []string{"direction", "verdict", "resolution"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mediation_seconds",
			Help:      "Time a caller spent suspended in mediation.",
			Buckets:   []float64{.001, .01, .1, .25, .5, 1, 2, 2.5, 5},
		}, []string{"direction"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_events_total",
			Help:      "Clipboard notifications by disposition.",
		}, []string{"disposition"}),
		historyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_dropped_total",
			Help:      "History entries dropped because the writer queue was full.",
		}),
	}
	c.registry.MustRegister(c.outcomes, c.latency, c.events, c.historyDropped)
	return c
}

func (c *Collector) ObserveOutcome(direction, verdict, resolution string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(direction, verdict, resolution).Inc()
	c.latency.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// IncEvent counts a monitor notification: "suppressed", "exempt", "disabled",
// "empty" or "mediated".
func (c *Collector) IncEvent(disposition string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(disposition).Inc()
}

func (c *Collector) IncHistoryDropped() {
	if c == nil {
		return
	}
	c.historyDropped.Inc()
}

// RegisterPending exposes the number of open requests.
func (c *Collector) RegisterPending(fn func() float64) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Requests waiting for a human verdict.",
	}, fn))
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) HistoryDropped() prometheus.Counter {
	return c.historyDropped
}
