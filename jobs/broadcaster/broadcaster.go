package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/infra/metrics"
	"matchd/infra/wal/exit"
)

// Outbox is the durable queue of committed execution data.
type Outbox interface {
	ScanPending(limit int, fn func(exit.OutboxRecord) error) error
	MarkSent(seq uint64, retries uint32) error
	MarkAcked(seq uint64) error
	MarkFailed(seq uint64, retries uint32) error
}

type Config struct {
	Topic      string
	Interval   time.Duration
	BatchSize  int
	MaxRetries uint32
}

// Broadcaster publishes every committed execution to Kafka, in execution
// sequence order. Records survive in the outbox until the broker acks
// them, so a crash between commit and publish only delays delivery.
type Broadcaster struct {
	outbox   Outbox
	producer sarama.SyncProducer
	cfg      Config
	metrics  *metrics.Metrics
	log      *zap.Logger

	wake chan struct{}
}

// NewSyncProducer builds the producer the broadcaster expects: acks from
// all in-sync replicas and successes returned.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new sync producer")
	}
	return p, nil
}

func New(outbox Outbox, producer sarama.SyncProducer, cfg Config, m *metrics.Metrics, log *zap.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		cfg:      cfg,
		metrics:  m,
		log:      log.Named("broadcaster"),
		wake:     make(chan struct{}, 1),
	}
}

// Send is called after each commit. The data is already in the outbox;
// Send only wakes the loop early.
func (b *Broadcaster) Send(*events.ExecutionData) {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run publishes pending records until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("started", zap.String("topic", b.cfg.Topic))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.wake:
		}
		if _, err := b.Flush(); err != nil {
			b.log.Warn("flush outbox", zap.Error(err))
		}
	}
}

// Flush publishes pending records in order and returns how many were
// acked. It stops at the first record the broker refuses so a later
// record never overtakes it.
func (b *Broadcaster) Flush() (int, error) {
	acked := 0
	errStop := errors.New("stop")

	err := b.outbox.ScanPending(b.cfg.BatchSize, func(rec exit.OutboxRecord) error {
		if rec.State == exit.StateFailed && b.cfg.MaxRetries > 0 && rec.Retries >= b.cfg.MaxRetries {
			b.log.Error("outbox record exhausted retries",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries),
			)
			return errStop
		}

		if err := b.outbox.MarkSent(rec.Seq, rec.Retries); err != nil {
			return errors.Wrapf(err, "mark sent %d", rec.Seq)
		}

		value, err := json.Marshal(rec.Data)
		if err != nil {
			return errors.Wrapf(err, "marshal record %d", rec.Seq)
		}
		msg := &sarama.ProducerMessage{
			Topic: b.cfg.Topic,
			Key:   sarama.StringEncoder(rec.Data.PartitionKey()),
			Value: sarama.ByteEncoder(value),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.metrics.OutboxRecord("failed")
			b.log.Warn("publish failed, retrying later",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err),
			)
			if mErr := b.outbox.MarkFailed(rec.Seq, rec.Retries+1); mErr != nil {
				return errors.Wrapf(mErr, "mark failed %d", rec.Seq)
			}
			return errStop
		}

		if err := b.outbox.MarkAcked(rec.Seq); err != nil {
			return errors.Wrapf(err, "mark acked %d", rec.Seq)
		}
		b.metrics.OutboxRecord("acked")
		acked++
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return acked, err
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
