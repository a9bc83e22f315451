package orderbook

import (
	"github.com/shopspring/decimal"

	"matchd/domain/order"
)

var two = decimal.NewFromInt(2)

// OrderBook is the limit order book of one instrument.
type OrderBook struct {
	assetPairID string
	bids        *Side
	asks        *Side

	lastRegSeq uint64
}

func New(assetPairID string) *OrderBook {
	return &OrderBook{
		assetPairID: assetPairID,
		bids:        NewSide(true),
		asks:        NewSide(false),
	}
}

func (b *OrderBook) AssetPairID() string { return b.assetPairID }

// Side returns the live side. Callers must Clone it before changing it.
func (b *OrderBook) Side(isBuy bool) *Side {
	if isBuy {
		return b.bids
	}
	return b.asks
}

// SetSide replaces a whole side, typically with the side a match produced.
func (b *OrderBook) SetSide(isBuy bool, s *Side) error {
	if s.IsBuy() != isBuy {
		return ErrWrongSide
	}
	if isBuy {
		b.bids = s
	} else {
		b.asks = s
	}
	return nil
}

// Insert takes ownership of o. An order without a registration sequence is
// given the next one.
func (b *OrderBook) Insert(o *order.LimitOrder) error {
	if _, ok := b.Get(o.ID); ok {
		return ErrDuplicateOrder
	}
	if o.RegSeq == 0 {
		b.lastRegSeq++
		o.RegSeq = b.lastRegSeq
	} else if o.RegSeq > b.lastRegSeq {
		b.lastRegSeq = o.RegSeq
	}
	return b.Side(o.IsBuySide()).Put(o)
}

// Remove is idempotent.
func (b *OrderBook) Remove(id string) (*order.LimitOrder, bool) {
	if o, ok := b.bids.Remove(id); ok {
		return o, true
	}
	return b.asks.Remove(id)
}

func (b *OrderBook) Get(id string) (*order.LimitOrder, bool) {
	if o, ok := b.bids.Get(id); ok {
		return o, true
	}
	return b.asks.Get(id)
}

func (b *OrderBook) BestPrice(isBuy bool) (decimal.Decimal, bool) {
	return b.Side(isBuy).BestPrice()
}

// MidPrice is defined only when both sides are non-empty.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	return MidPrice(b.bids, b.asks)
}

func MidPrice(bids, asks *Side) (decimal.Decimal, bool) {
	bid, ok := bids.BestPrice()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := asks.BestPrice()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(two), true
}

// SnapshotSide returns copies of the side's orders in priority order.
func (b *OrderBook) SnapshotSide(isBuy bool) []*order.LimitOrder {
	shared := b.Side(isBuy).Orders()
	out := make([]*order.LimitOrder, len(shared))
	for i, o := range shared {
		out[i] = o.Copy()
	}
	return out
}

// OrdersOf returns copies of a client's orders on one side.
func (b *OrderBook) OrdersOf(clientID string, isBuy bool) []*order.LimitOrder {
	var out []*order.LimitOrder
	b.Side(isBuy).Ascend(func(o *order.LimitOrder) bool {
		if o.ClientID == clientID {
			out = append(out, o.Copy())
		}
		return true
	})
	return out
}

func (b *OrderBook) Len() int { return b.bids.Len() + b.asks.Len() }

func (b *OrderBook) Clone() *OrderBook {
	return &OrderBook{
		assetPairID: b.assetPairID,
		bids:        b.bids.Clone(),
		asks:        b.asks.Clone(),
		lastRegSeq:  b.lastRegSeq,
	}
}
