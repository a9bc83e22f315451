package queuemonitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchd/infra/metrics"
)

// Queue reports how many messages wait for the pipeline.
type Queue interface {
	QueueSize() int
}

// Monitor samples the inbound queue, exports its size and warns while it
// is above limit.
type Monitor struct {
	queue    Queue
	limit    int
	interval time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger

	over bool
}

func New(q Queue, limit int, interval time.Duration, m *metrics.Metrics, log *zap.Logger) *Monitor {
	return &Monitor{
		queue:    q,
		limit:    limit,
		interval: interval,
		metrics:  m,
		log:      log.Named("queue_monitor"),
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sample()
		}
	}
}

// Sample takes one reading and reports whether the queue is over limit.
func (m *Monitor) Sample() bool {
	n := m.queue.QueueSize()
	m.metrics.SetQueueSize(n)

	over := m.limit > 0 && n > m.limit
	switch {
	case over:
		m.log.Warn("inbound queue above limit", zap.Int("size", n), zap.Int("limit", m.limit))
	case m.over:
		m.log.Info("inbound queue back under limit", zap.Int("size", n), zap.Int("limit", m.limit))
	default:
		m.log.Debug("inbound queue", zap.Int("size", n))
	}
	m.over = over
	return over
}
