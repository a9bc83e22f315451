package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/orderbook"
	"matchd/service/execution"
)

// BookStore is the canonical book registry. Only the Applier publishes.
type BookStore interface {
	execution.BookSource
	Publish(b *orderbook.OrderBook)
	PublishStops(b *orderbook.StopBook)
}

type BalanceStore interface {
	execution.BalanceSource
	Set(changes map[balance.Key]balance.Balance)
}

type ThresholdSource interface {
	MidPriceDeviationThreshold(assetPairID string) decimal.NullDecimal
	MarketOrderPriceDeviationThreshold(assetPairID string) decimal.NullDecimal
}

type MidPriceStore interface {
	ReferenceMidPrice(assetPairID string, asOf time.Time, staged ...events.MidPrice) decimal.NullDecimal
	Add(prices ...events.MidPrice)
}

// Persister stores everything a commit changes in one atomic write.
type Persister interface {
	Persist(ctx context.Context, data *events.ExecutionData) error
}

// Publisher is handed the data of every persisted commit.
type Publisher interface {
	Send(data *events.ExecutionData)
}

// Notifier delivers rejections of messages that never reached a commit.
type Notifier interface {
	NotifyRejected(ctx context.Context, r events.Rejection) error
}

// EntryLog is the inbound intent log. Append returns the entry sequence.
type EntryLog interface {
	Append(messageType events.MessageType, payload []byte) (uint64, error)
}

type Handler interface {
	Handle(ctx context.Context, req *Request) Response
}
