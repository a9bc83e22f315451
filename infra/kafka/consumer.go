package kafka

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/service"
)

// Submitter hands a request to the single processing path.
type Submitter interface {
	Submit(ctx context.Context, req *service.Request) (service.Response, error)
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is one inbound record: the message type and its body.
//
//	{"type":"limit_order","request_id":"r-1","payload":{...}}
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads order messages from Kafka, submits them one by one and
// writes every response to the reply producer, keyed by request id.
type Consumer struct {
	reader  messageReader
	submit  Submitter
	replies *Producer
	log     *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, submit Submitter, replies *Producer, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: r, submit: submit, replies: replies, log: log.Named("kafka_consumer")}
}

// Run consumes until ctx is cancelled. An offset is committed only once
// its message has a response.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		resp, err := c.handle(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if c.replies != nil {
			if err := c.replies.SendJSON(ctx, string(msg.Key), resp); err != nil {
				c.log.Warn("write response", zap.String("message_id", resp.MessageID), zap.Error(err))
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle decodes and submits one record. A record that cannot be decoded
// is answered with a bad request and skipped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) (service.Response, error) {
	req, err := Decode(msg.Value)
	if err != nil {
		c.log.Info("malformed record",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return service.Response{Status: service.StatusBadRequest, Reason: err.Error()}, nil
	}
	if req.RequestID == "" {
		req.RequestID = string(msg.Key)
	}
	resp, err := c.submit.Submit(ctx, req)
	if err != nil {
		return service.Response{}, errors.Wrap(err, "submit request")
	}
	return resp, nil
}

// Decode turns an inbound record into a request.
func Decode(b []byte) (*service.Request, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(service.ErrBadRequest, err.Error())
	}
	t, ok := events.ParseMessageType(env.Type)
	if !ok {
		return nil, errors.Wrapf(service.ErrBadRequest, "unknown message type %q", env.Type)
	}

	req := &service.Request{Type: t}
	req.RequestID = env.RequestID
	var body any
	switch t {
	case events.MessageLimitOrder:
		req.Limit = &service.LimitOrderRequest{}
		body = req.Limit
	case events.MessageMarketOrder:
		req.Market = &service.MarketOrderRequest{}
		body = req.Market
	case events.MessageStopOrder:
		req.Stop = &service.StopOrderRequest{}
		body = req.Stop
	case events.MessageCancelOrders:
		req.Cancel = &service.CancelRequest{}
		body = req.Cancel
	}
	if err := json.Unmarshal(env.Payload, body); err != nil {
		return nil, errors.Wrapf(service.ErrBadRequest, "%s payload: %v", env.Type, err)
	}
	return req, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
