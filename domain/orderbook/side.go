package orderbook

import (
	"errors"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"matchd/domain/order"
)

const degree = 32

var (
	ErrDuplicateOrder = errors.New("orderbook: order already in book")
	ErrWrongSide      = errors.New("orderbook: order does not belong to this side")
)

// Side is one side of a book, best price first, then earliest registration.
type Side struct {
	isBuy   bool
	byPrice *btree.BTreeG[*order.LimitOrder]
	byID    *btree.BTreeG[*order.LimitOrder]
}

func NewSide(isBuy bool) *Side {
	less := lessAsk
	if isBuy {
		less = lessBid
	}
	return &Side{
		isBuy:   isBuy,
		byPrice: btree.NewG(degree, less),
		byID:    btree.NewG(degree, lessID),
	}
}

func lessBid(a, b *order.LimitOrder) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return lessTime(a, b)
}

func lessAsk(a, b *order.LimitOrder) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return lessTime(a, b)
}

func lessTime(a, b *order.LimitOrder) bool {
	if !a.Registered.Equal(b.Registered) {
		return a.Registered.Before(b.Registered)
	}
	if a.RegSeq != b.RegSeq {
		return a.RegSeq < b.RegSeq
	}
	return a.ID < b.ID
}

func lessID(a, b *order.LimitOrder) bool { return a.ID < b.ID }

func idKey(id string) *order.LimitOrder {
	return &order.LimitOrder{Base: order.Base{ID: id}}
}

func (s *Side) IsBuy() bool { return s.isBuy }

func (s *Side) Len() int { return s.byID.Len() }

func (s *Side) Best() (*order.LimitOrder, bool) { return s.byPrice.Min() }

func (s *Side) BestPrice() (decimal.Decimal, bool) {
	o, ok := s.byPrice.Min()
	if !ok {
		return decimal.Zero, false
	}
	return o.Price, true
}

func (s *Side) Get(id string) (*order.LimitOrder, bool) {
	return s.byID.Get(idKey(id))
}

// Ascend walks the side in priority order until fn returns false.
// fn must not modify s.
func (s *Side) Ascend(fn func(o *order.LimitOrder) bool) {
	s.byPrice.Ascend(fn)
}

// Put inserts o, replacing the order with the same id if present.
func (s *Side) Put(o *order.LimitOrder) error {
	if o.IsBuySide() != s.isBuy {
		return ErrWrongSide
	}
	if old, ok := s.byID.Get(o); ok {
		s.byPrice.Delete(old)
	}
	s.byPrice.ReplaceOrInsert(o)
	s.byID.ReplaceOrInsert(o)
	return nil
}

// Remove is idempotent.
func (s *Side) Remove(id string) (*order.LimitOrder, bool) {
	old, ok := s.byID.Delete(idKey(id))
	if !ok {
		return nil, false
	}
	s.byPrice.Delete(old)
	return old, true
}

func (s *Side) Clone() *Side {
	return &Side{
		isBuy:   s.isBuy,
		byPrice: s.byPrice.Clone(),
		byID:    s.byID.Clone(),
	}
}

// Orders returns the orders in priority order. The orders are shared with
// the side and must not be modified.
func (s *Side) Orders() []*order.LimitOrder {
	out := make([]*order.LimitOrder, 0, s.Len())
	s.byPrice.Ascend(func(o *order.LimitOrder) bool {
		out = append(out, o)
		return true
	})
	return out
}
