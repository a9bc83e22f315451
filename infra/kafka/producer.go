package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"matchd/domain/events"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON records to one topic. It delivers the rejections
// of messages that never reached a commit, and the responses to messages
// read from Kafka.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Send(ctx context.Context, key []byte, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

// SendJSON marshals v and writes it under key.
func (p *Producer) SendJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	return errors.Wrapf(p.Send(ctx, []byte(key), b), "write record %s", key)
}

// NotifyRejected publishes an early rejection, keyed by asset pair so it
// stays ordered with the pair's committed events.
func (p *Producer) NotifyRejected(ctx context.Context, r events.Rejection) error {
	key := r.MessageID
	if o := r.Event.Order(); o != nil && o.Common().AssetPairID != "" {
		key = o.Common().AssetPairID
	}
	return p.SendJSON(ctx, key, rejectionRecord{Type: "rejection", Rejection: r})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type rejectionRecord struct {
	Type string `json:"type"`
	events.Rejection
}
