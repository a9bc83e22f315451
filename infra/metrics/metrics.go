// Package metrics holds the prometheus collectors of the engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchd"

type Metrics struct {
	gatherer prometheus.Gatherer

	messages        *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	trades          prometheus.Counter
	persistFailures prometheus.Counter
	cascadeAborted  prometheus.Counter
	queueSize       prometheus.Gauge
	outbox          *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m, err := NewWith(reg)
	if err != nil {
		return nil, err
	}
	m.gatherer = reg
	return m, nil
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by type and response status.",
		}, []string{"type", "status"}),
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "message_duration_seconds",
			Help:      "Time spent processing one inbound message.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"type"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "trades_total",
			Help:      "Trades committed.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "persist_failures_total",
			Help:      "Commits that could not be persisted.",
		}),
		cascadeAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stop_cascade_aborted_total",
			Help:      "Stop order cascades stopped at the depth limit.",
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "queue_size",
			Help:      "Messages waiting for the pipeline.",
		}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "records_total",
			Help:      "Outbox records by delivery result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.messages, m.messageDuration, m.trades, m.persistFailures,
		m.cascadeAborted, m.queueSize, m.outbox,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register collector")
		}
	}
	return m, nil
}

func (m *Metrics) ObserveMessage(messageType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(messageType, status).Inc()
	m.messageDuration.WithLabelValues(messageType).Observe(d.Seconds())
}

func (m *Metrics) AddTrades(n int) {
	if m == nil || n == 0 {
		return
	}
	m.trades.Add(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) CascadeAborted() {
	if m == nil {
		return
	}
	m.cascadeAborted.Inc()
}

func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.queueSize.Set(float64(n))
}

// OutboxRecord counts one delivery attempt; result is "acked" or "failed".
func (m *Metrics) OutboxRecord(result string) {
	if m == nil {
		return
	}
	m.outbox.WithLabelValues(result).Inc()
}

// Handler serves the registry New created, or the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
