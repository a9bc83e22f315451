// Package order is the order model: the identity and economics shared by
// every order kind, the limit, market and stop variants, and their status
// lifecycle.
package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/fee"
)

type Kind uint8

const (
	KindLimit Kind = iota
	KindMarket
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindLimit:
		return "limit"
	case KindMarket:
		return "market"
	case KindStop:
		return "stop"
	}
	return "unknown"
}

var (
	ErrOverfill         = errors.New("order: fill exceeds remaining volume")
	ErrBackToProcessing = errors.New("order: status cannot return to Processing")
)

// Base is shared by every order kind. Volume and RemainingVolume are signed:
// positive for buy, negative for sell.
type Base struct {
	ID              string            `json:"id"`
	ExternalID      string            `json:"external_id"`
	AssetPairID     string            `json:"asset_pair_id"`
	ClientID        string            `json:"client_id"`
	Volume          decimal.Decimal   `json:"volume"`
	RemainingVolume decimal.Decimal   `json:"remaining_volume"`
	Status          Status            `json:"status"`
	StatusDate      time.Time         `json:"status_date"`
	CreatedAt       time.Time         `json:"created_at"`
	Registered      time.Time         `json:"registered"`
	RegSeq          uint64            `json:"reg_seq"`
	Fee             *fee.Instruction  `json:"fee,omitempty"`
	Fees            []fee.Instruction `json:"fees,omitempty"`
}

func (b *Base) IsBuySide() bool { return b.Volume.IsPositive() }

func (b *Base) AbsVolume() decimal.Decimal { return b.Volume.Abs() }

func (b *Base) AbsRemaining() decimal.Decimal { return b.RemainingVolume.Abs() }

// Filled is the absolute volume executed so far.
func (b *Base) Filled() decimal.Decimal {
	return b.Volume.Abs().Sub(b.RemainingVolume.Abs())
}

// Fill reduces the remaining volume by v (absolute), keeping the sign.
func (b *Base) Fill(v decimal.Decimal) error {
	rem := b.RemainingVolume.Abs()
	if v.IsNegative() || v.GreaterThan(rem) {
		return ErrOverfill
	}
	rem = rem.Sub(v)
	if b.IsBuySide() {
		b.RemainingVolume = rem
	} else {
		b.RemainingVolume = rem.Neg()
	}
	return nil
}

// UpdateStatus moves the order to s and stamps the status date.
func (b *Base) UpdateStatus(s Status, at time.Time) error {
	if s == Processing && b.Status != Processing {
		return ErrBackToProcessing
	}
	b.Status = s
	b.StatusDate = at
	return nil
}

// FeeInstructions lists the primary fee first, then the additional ones.
func (b *Base) FeeInstructions() []fee.Instruction {
	return fee.ListOf(b.Fee, b.Fees)
}

// Order is implemented by *LimitOrder, *MarketOrder and *StopOrder only.
type Order interface {
	Common() *Base
	Kind() Kind
	Clone() Order
	sealed()
}

// -------------------- Limit --------------------

type LimitOrder struct {
	Base
	Price         decimal.Decimal `json:"price"`
	LastMatchTime time.Time       `json:"last_match_time"`
}

func (o *LimitOrder) Common() *Base { return &o.Base }
func (o *LimitOrder) Kind() Kind { return KindLimit }
func (o *LimitOrder) Clone() Order { return o.Copy() }
func (*LimitOrder) sealed() {}

// Copy returns an independent copy. Fee slices are shared: they are never
// modified after the order is created.
func (o *LimitOrder) Copy() *LimitOrder {
	c := *o
	return &c
}

// ReservedVolume is the amount of the reserve asset the remaining volume
// locks, rounded up to the given accuracy.
func (o *LimitOrder) ReservedVolume(accuracy int32) decimal.Decimal {
	if o.IsBuySide() {
		return o.Price.Mul(o.AbsRemaining()).RoundUp(accuracy)
	}
	return o.AbsRemaining()
}

// -------------------- Market --------------------

type MarketOrder struct {
	Base
	// Price is the volume-weighted execution price, set once matched.
	Price decimal.NullDecimal `json:"price"`
}

func (o *MarketOrder) Common() *Base { return &o.Base }
func (o *MarketOrder) Kind() Kind { return KindMarket }
func (o *MarketOrder) Clone() Order { return o.Copy() }
func (*MarketOrder) sealed() {}

func (o *MarketOrder) Copy() *MarketOrder {
	c := *o
	return &c
}

// -------------------- Stop --------------------

// StopOrder rests outside the book until the opposite best price reaches
// one of its limit prices; it then becomes a limit order at the paired price.
type StopOrder struct {
	Base
	LowerLimitPrice decimal.NullDecimal `json:"lower_limit_price"`
	LowerPrice      decimal.NullDecimal `json:"lower_price"`
	UpperLimitPrice decimal.NullDecimal `json:"upper_limit_price"`
	UpperPrice      decimal.NullDecimal `json:"upper_price"`
	Price           decimal.NullDecimal `json:"price"`
}

func (o *StopOrder) Common() *Base { return &o.Base }
func (o *StopOrder) Kind() Kind { return KindStop }
func (o *StopOrder) Clone() Order { return o.Copy() }
func (*StopOrder) sealed() {}

func (o *StopOrder) Copy() *StopOrder {
	c := *o
	return &c
}

// ReservedVolume reserves a buy stop against the higher of its two prices.
func (o *StopOrder) ReservedVolume(accuracy int32) decimal.Decimal {
	if !o.IsBuySide() {
		return o.AbsRemaining()
	}
	price := decimal.Zero
	if o.LowerPrice.Valid {
		price = o.LowerPrice.Decimal
	}
	if o.UpperPrice.Valid && o.UpperPrice.Decimal.GreaterThan(price) {
		price = o.UpperPrice.Decimal
	}
	return price.Mul(o.AbsRemaining()).RoundUp(accuracy)
}

// TriggerPrice returns the limit price the order converts to when best is
// the current opposite best price. best must be positive.
func (o *StopOrder) TriggerPrice(best decimal.Decimal) (decimal.Decimal, bool) {
	if !best.IsPositive() {
		return decimal.Zero, false
	}
	if o.LowerLimitPrice.Valid && o.LowerPrice.Valid && best.LessThanOrEqual(o.LowerLimitPrice.Decimal) {
		return o.LowerPrice.Decimal, true
	}
	if o.UpperLimitPrice.Valid && o.UpperPrice.Valid && best.GreaterThanOrEqual(o.UpperLimitPrice.Decimal) {
		return o.UpperPrice.Decimal, true
	}
	return decimal.Zero, false
}

// ToLimit builds the limit order a triggered stop order continues as. It
// keeps the identity and fees of the stop order.
func (o *StopOrder) ToLimit(price decimal.Decimal, at time.Time) *LimitOrder {
	lo := &LimitOrder{Base: o.Base, Price: price}
	lo.Status = Processing
	lo.StatusDate = at
	lo.Registered = at
	lo.RegSeq = 0
	return lo
}
