// Package metrics counts driver step results for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/framestep/pkg/frame"
)

const namespace = "framestep"

// Collector owns its registry so several servers (or tests) can run in one
// process without colliding on the global one.
type Collector struct {
	registry *prometheus.Registry

	steps         *prometheus.CounterVec
	finished      *prometheus.CounterVec
	receipts      *prometheus.CounterVec
	tokens        prometheus.Counter
	backendErrors prometheus.Counter
	sessions      prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Driver steps by outcome.",
		}, []string{"outcome"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finished_total",
			Help:      "Finished step results by stop reason, including replays of terminal frames.",
		}, []string{"reason"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Sum of receipt values by kind.",
		}, []string{"kind"}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_emitted_total",
			Help:      "Tokens emitted by advanced steps.",
		}),
		backendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Steps that failed with a backend error.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held by the store.",
		}),
	}
	c.registry.MustRegister(c.steps, c.finished, c.receipts, c.tokens, c.backendErrors, c.sessions)
	return c
}

// Observe records one step result. A nil collector ignores it.
func (c *Collector) Observe(res frame.StepResult) {
	if c == nil {
		return
	}
	c.steps.WithLabelValues(res.Outcome.String()).Inc()
	if _, ok := res.Token(); ok {
		c.tokens.Inc()
	}
	if reason, ok := res.Reason(); ok {
		c.finished.WithLabelValues(reason.String()).Inc()
	}
	for _, r := range res.Receipts {
		c.receipts.WithLabelValues(r.Kind).Add(float64(r.Value))
	}
}

func (c *Collector) ObserveError(error) {
	if c == nil {
		return
	}
	c.backendErrors.Inc()
}

func (c *Collector) SessionOpened() {
	if c != nil {
		c.sessions.Inc()
	}
}

func (c *Collector) SessionClosed() {
	if c != nil {
		c.sessions.Dec()
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
