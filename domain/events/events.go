// Package events defines the immutable record of one committed message:
// what changed, what traded and which sequence numbers it was given.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/balance"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/domain/orderbook"
)

type MessageType uint8

const (
	MessageLimitOrder MessageType = iota + 1
	MessageMarketOrder
	MessageStopOrder
	MessageCancelOrders
)

func (t MessageType) String() string {
	switch t {
	case MessageLimitOrder:
		return "limit_order"
	case MessageMarketOrder:
		return "market_order"
	case MessageStopOrder:
		return "stop_order"
	case MessageCancelOrders:
		return "cancel_orders"
	}
	return "unknown"
}

// ParseMessageType is the inverse of String.
func ParseMessageType(s string) (MessageType, bool) {
	for t := MessageLimitOrder; t <= MessageCancelOrders; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Category is an outgoing event stream with its own sequence.
type Category uint8

const (
	Execution Category = iota
	Trades
	OrderBooks
	Balances
	numCategories
)

var Categories = [numCategories]Category{Execution, Trades, OrderBooks, Balances}

func (c Category) String() string {
	return [...]string{"execution", "trades", "order_books", "balances"}[c]
}

// Sequence holds one number per category. Zero means the message produced
// nothing in that category.
type Sequence [numCategories]uint64

func (s Sequence) Get(c Category) uint64 { return s[c] }

// OrderChange is the new state of a resting limit order. Removed orders
// carry their final state.
type OrderChange struct {
	Order   *order.LimitOrder `json:"order"`
	Removed bool              `json:"removed"`
}

type StopOrderChange struct {
	Order   *order.StopOrder `json:"order"`
	Removed bool             `json:"removed"`
}

type BalanceChange struct {
	ClientID string          `json:"client_id"`
	AssetID  string          `json:"asset_id"`
	Before   balance.Balance `json:"before"`
	After    balance.Balance `json:"after"`
}

// OrderEvent is one lifecycle record: the order as it ended up after this
// message, and the trades it took part in.
type OrderEvent struct {
	Kind   order.Kind         `json:"kind"`
	Limit  *order.LimitOrder  `json:"limit,omitempty"`
	Market *order.MarketOrder `json:"market,omitempty"`
	Stop   *order.StopOrder   `json:"stop,omitempty"`
	Trades []matching.Trade   `json:"trades,omitempty"`
}

func NewOrderEvent(o order.Order, trades []matching.Trade) OrderEvent {
	ev := OrderEvent{Kind: o.Kind(), Trades: trades}
	switch v := o.Clone().(type) {
	case *order.LimitOrder:
		ev.Limit = v
	case *order.MarketOrder:
		ev.Market = v
	case *order.StopOrder:
		ev.Stop = v
	}
	return ev
}

func (e OrderEvent) Order() order.Order {
	switch {
	case e.Limit != nil:
		return e.Limit
	case e.Market != nil:
		return e.Market
	case e.Stop != nil:
		return e.Stop
	}
	return nil
}

type MidPrice struct {
	AssetPairID string          `json:"asset_pair_id"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BookDepth is the aggregated top of a changed book.
type BookDepth struct {
	AssetPairID string                 `json:"asset_pair_id"`
	Bids        []orderbook.PriceLevel `json:"bids"`
	Asks        []orderbook.PriceLevel `json:"asks"`
}

// ExecutionData is everything one committed message produced.
type ExecutionData struct {
	MessageID   string      `json:"message_id"`
	RequestID   string      `json:"request_id"`
	MessageType MessageType `json:"message_type"`
	EntrySeq    uint64      `json:"entry_seq"`
	Date        time.Time   `json:"date"`
	Sequence    Sequence    `json:"sequence"`

	Orders      []OrderChange     `json:"orders,omitempty"`
	StopOrders  []StopOrderChange `json:"stop_orders,omitempty"`
	Balances    []BalanceChange   `json:"balances,omitempty"`
	Trades      []matching.Trade  `json:"trades,omitempty"`
	OrderEvents []OrderEvent      `json:"order_events,omitempty"`
	MidPrices   []MidPrice        `json:"mid_prices,omitempty"`
	OrderBooks  []BookDepth       `json:"order_books,omitempty"`
}

// Produced reports which categories the data needs a number for.
func (d *ExecutionData) Produced(c Category) bool {
	switch c {
	case Execution:
		return true
	case Trades:
		return len(d.Trades) > 0
	case OrderBooks:
		return len(d.OrderBooks) > 0
	case Balances:
		return len(d.Balances) > 0
	}
	return false
}

// PartitionKey keys published records so one instrument stays ordered.
func (d *ExecutionData) PartitionKey() string {
	for _, ev := range d.OrderEvents {
		if o := ev.Order(); o != nil {
			return o.Common().AssetPairID
		}
	}
	return d.MessageID
}

// Rejection is sent for a message that was refused before it changed
// anything. It carries no sequence numbers.
type Rejection struct {
	MessageID   string      `json:"message_id"`
	RequestID   string      `json:"request_id"`
	MessageType MessageType `json:"message_type"`
	Date        time.Time   `json:"date"`
	Event       OrderEvent  `json:"event"`
	Reason      string      `json:"reason"`
}
