package orderbook

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"matchd/domain/order"
)

// StopBook holds the resting stop orders of one instrument in registration
// order.
type StopBook struct {
	assetPairID string
	byTime      *btree.BTreeG[*order.StopOrder]
	byID        *btree.BTreeG[*order.StopOrder]

	lastRegSeq uint64
}

func NewStopBook(assetPairID string) *StopBook {
	return &StopBook{
		assetPairID: assetPairID,
		byTime:      btree.NewG(degree, lessStopTime),
		byID:        btree.NewG(degree, func(a, b *order.StopOrder) bool { return a.ID < b.ID }),
	}
}

func lessStopTime(a, b *order.StopOrder) bool {
	if !a.Registered.Equal(b.Registered) {
		return a.Registered.Before(b.Registered)
	}
	if a.RegSeq != b.RegSeq {
		return a.RegSeq < b.RegSeq
	}
	return a.ID < b.ID
}

func stopKey(id string) *order.StopOrder {
	return &order.StopOrder{Base: order.Base{ID: id}}
}

func (s *StopBook) AssetPairID() string { return s.assetPairID }

func (s *StopBook) Len() int { return s.byID.Len() }

// Insert takes ownership of o.
func (s *StopBook) Insert(o *order.StopOrder) error {
	if _, ok := s.byID.Get(o); ok {
		return ErrDuplicateOrder
	}
	if o.RegSeq == 0 {
		s.lastRegSeq++
		o.RegSeq = s.lastRegSeq
	} else if o.RegSeq > s.lastRegSeq {
		s.lastRegSeq = o.RegSeq
	}
	s.byTime.ReplaceOrInsert(o)
	s.byID.ReplaceOrInsert(o)
	return nil
}

// Remove is idempotent.
func (s *StopBook) Remove(id string) (*order.StopOrder, bool) {
	old, ok := s.byID.Delete(stopKey(id))
	if !ok {
		return nil, false
	}
	s.byTime.Delete(old)
	return old, true
}

func (s *StopBook) Get(id string) (*order.StopOrder, bool) {
	return s.byID.Get(stopKey(id))
}

// Orders returns the stop orders in registration order. They are shared
// with the book and must not be modified.
func (s *StopBook) Orders() []*order.StopOrder {
	out := make([]*order.StopOrder, 0, s.Len())
	s.byTime.Ascend(func(o *order.StopOrder) bool {
		out = append(out, o)
		return true
	})
	return out
}

// OrdersOf returns copies of a client's stop orders on one side.
func (s *StopBook) OrdersOf(clientID string, isBuy bool) []*order.StopOrder {
	var out []*order.StopOrder
	s.byTime.Ascend(func(o *order.StopOrder) bool {
		if o.ClientID == clientID && o.IsBuySide() == isBuy {
			out = append(out, o.Copy())
		}
		return true
	})
	return out
}

// Triggered returns the earliest registered stop order whose trigger is
// met, and the limit price it converts to. Buy stops watch the best ask,
// sell stops the best bid. A zero price means that side is empty.
func (s *StopBook) Triggered(bestBid, bestAsk decimal.Decimal) (*order.StopOrder, decimal.Decimal, bool) {
	var (
		hit   *order.StopOrder
		price decimal.Decimal
	)
	s.byTime.Ascend(func(o *order.StopOrder) bool {
		best := bestBid
		if o.IsBuySide() {
			best = bestAsk
		}
		if p, ok := o.TriggerPrice(best); ok {
			hit, price = o, p
			return false
		}
		return true
	})
	return hit, price, hit != nil
}

func (s *StopBook) Clone() *StopBook {
	return &StopBook{
		assetPairID: s.assetPairID,
		byTime:      s.byTime.Clone(),
		byID:        s.byID.Clone(),
		lastRegSeq:  s.lastRegSeq,
	}
}
