// Package matching matches one incoming order against the opposite side of
// a book. It never modifies its input: the resulting side, the fills and
// the cash movements come back in a Result for the caller to apply or drop.
package matching

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchd/domain/balance"
	"matchd/domain/fee"
	"matchd/domain/order"
)

var (
	ErrSameSide         = errors.New("matching: opposite side has the taker's direction")
	ErrUnsupportedOrder = errors.New("matching: only limit and market orders can be matched")
)

type matcher struct {
	in    Input
	res   *Result
	taker *order.Base
	limit *order.LimitOrder

	filled decimal.Decimal
	quote  decimal.Decimal

	// wallets holds makers' balances as left by earlier fills of this match.
	wallets map[balance.Key]balance.Balance
}

// Match runs price-time priority matching of in.Order against in.Opposite.
//
// Resting orders of the taker's own client are skipped. A resting order
// whose fill rounds to zero quote volume is cancelled, and so is one whose
// owner cannot pay the fill out of its reservation. A resting order left
// with less than the pair's minimum volume is completed.
func Match(in Input) (*Result, error) {
	taker := in.Order.Clone()
	m := &matcher{
		in:      in,
		taker:   taker.Common(),
		res:     &Result{Order: taker, Side: in.Opposite.Clone()},
		filled:  decimal.Zero,
		quote:   decimal.Zero,
		wallets: make(map[balance.Key]balance.Balance),
	}

	switch o := taker.(type) {
	case *order.LimitOrder:
		m.limit = o
	case *order.MarketOrder:
	default:
		return nil, ErrUnsupportedOrder
	}
	if in.Opposite.IsBuy() == m.taker.IsBuySide() {
		return nil, ErrSameSide
	}

	var err error
	in.Opposite.Clone().Ascend(func(maker *order.LimitOrder) bool {
		if m.taker.RemainingVolume.IsZero() {
			return false
		}
		if m.limit != nil && !crosses(m.taker.IsBuySide(), m.limit.Price, maker.Price) {
			return false
		}
		if maker.ClientID == m.taker.ClientID {
			m.res.Skipped = append(m.res.Skipped, maker)
			return true
		}
		err = m.fill(maker)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	m.finish()
	return m.res, nil
}

func crosses(isBuy bool, limit, makerPrice decimal.Decimal) bool {
	if isBuy {
		return makerPrice.LessThanOrEqual(limit)
	}
	return makerPrice.GreaterThanOrEqual(limit)
}

func (m *matcher) fill(maker *order.LimitOrder) error {
	inst := m.in.Instrument
	makerIsBuy := maker.IsBuySide()
	reserve := inst.ReserveAsset(makerIsBuy)

	volume := decimal.Min(m.taker.AbsRemaining(), maker.AbsRemaining())
	rest := maker.AbsRemaining().Sub(volume)
	completes := rest.IsZero() || rest.LessThan(inst.Pair.MinVolume)

	release := maker.ReservedVolume(reserve.Accuracy)
	after := maker.Copy()
	if err := after.Fill(volume); err != nil {
		return fmt.Errorf("maker %s: %w", maker.ID, err)
	}
	if !completes {
		release = release.Sub(after.ReservedVolume(reserve.Accuracy))
	}

	quote := volume.Mul(maker.Price).Round(inst.Quoting.Accuracy)
	if makerIsBuy && !completes {
		// The remainder keeps its rounded up reservation.
		quote = decimal.Min(quote, release)
	}
	if quote.IsZero() {
		m.cancel(maker, order.Cancelled)
		return nil
	}

	paid := volume
	if makerIsBuy {
		paid = quote
	}
	if !m.covers(maker.ClientID, reserve.ID, paid) {
		m.cancel(maker, order.NotEnoughFunds)
		return nil
	}
	m.debit(maker.ClientID, reserve.ID, paid, release)

	if err := m.taker.Fill(volume); err != nil {
		return fmt.Errorf("taker %s: %w", m.taker.ID, err)
	}
	after.LastMatchTime = m.in.Date
	if m.limit != nil {
		m.limit.LastMatchTime = m.in.Date
	}

	if completes {
		// Dust left below the minimum volume is released, not traded.
		after.RemainingVolume = decimal.Zero
		after.Status = order.Matched
		after.StatusDate = m.in.Date
		m.res.Side.Remove(maker.ID)
		m.res.Completed = append(m.res.Completed, after)
	} else {
		after.Status = order.PartiallyMatched
		after.StatusDate = m.in.Date
		if err := m.res.Side.Put(after); err != nil {
			return err
		}
		m.res.Uncompleted = after
	}

	makerFees, err := m.makerCash(maker, volume, quote, release)
	if err != nil {
		return err
	}
	takerFees, err := m.takerFees(volume, quote)
	if err != nil {
		return err
	}

	m.filled = m.filled.Add(volume)
	m.quote = m.quote.Add(quote)

	idx := len(m.res.Trades)
	m.res.Trades = append(m.res.Trades, Trade{
		ID:              tradeID(m.taker.ID, idx),
		Index:           idx,
		AssetPairID:     inst.Pair.ID,
		Price:           maker.Price,
		Volume:          volume,
		QuoteVolume:     quote,
		TakerOrderID:    m.taker.ID,
		TakerExternalID: m.taker.ExternalID,
		TakerClientID:   m.taker.ClientID,
		TakerIsBuy:      m.taker.IsBuySide(),
		MakerOrderID:    maker.ID,
		MakerExternalID: maker.ExternalID,
		MakerClientID:   maker.ClientID,
		TakerFees:       takerFees,
		MakerFees:       makerFees,
		Timestamp:       m.in.Date,
	})
	return nil
}

// cancel drops maker from the side and releases its whole reservation.
func (m *matcher) cancel(maker *order.LimitOrder, status order.Status) {
	reserve := m.in.Instrument.ReserveAsset(maker.IsBuySide())
	released := maker.ReservedVolume(reserve.Accuracy)

	cancelled := maker.Copy()
	cancelled.Status = status
	cancelled.StatusDate = m.in.Date
	m.res.Side.Remove(maker.ID)
	m.res.Cancelled = append(m.res.Cancelled, cancelled)
	m.res.OppositeCashMovements = append(m.res.OppositeCashMovements, balance.Operation{
		ClientID: maker.ClientID,
		AssetID:  reserve.ID,
		Reserved: released.Neg(),
	})
	m.debit(maker.ClientID, reserve.ID, decimal.Zero, released)
}

func (m *matcher) wallet(clientID, assetID string) (balance.Balance, bool) {
	if m.in.Balances == nil {
		return balance.Balance{}, false
	}
	k := balance.Key{ClientID: clientID, AssetID: assetID}
	if b, ok := m.wallets[k]; ok {
		return b, true
	}
	b := m.in.Balances.Balance(clientID, assetID)
	m.wallets[k] = b
	return b, true
}

// covers reports whether the client's reservation can pay amount. Without
// a balance source every maker is assumed funded.
func (m *matcher) covers(clientID, assetID string, amount decimal.Decimal) bool {
	b, ok := m.wallet(clientID, assetID)
	if !ok {
		return true
	}
	return amount.LessThanOrEqual(b.Reserved) && amount.LessThanOrEqual(b.Total)
}

func (m *matcher) debit(clientID, assetID string, amount, released decimal.Decimal) {
	b, ok := m.wallet(clientID, assetID)
	if !ok {
		return
	}
	b.Total = b.Total.Sub(amount)
	b.Reserved = decimal.Max(b.Reserved.Sub(released), decimal.Zero)
	m.wallets[balance.Key{ClientID: clientID, AssetID: assetID}] = b
}

func tradeID(takerID string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", takerID, idx))).String()
}

// makerCash settles the maker's side of one fill against its reservation.
func (m *matcher) makerCash(maker *order.LimitOrder, volume, quote, release decimal.Decimal) ([]fee.Transfer, error) {
	inst := m.in.Instrument
	paid, got := inst.Base, inst.Quoting
	paidAmount, gotAmount := volume, quote
	if maker.IsBuySide() {
		paid, got = inst.Quoting, inst.Base
		paidAmount, gotAmount = quote, volume
	}

	m.res.OppositeCashMovements = append(m.res.OppositeCashMovements,
		balance.Operation{ClientID: maker.ClientID, AssetID: paid.ID, Amount: paidAmount.Neg(), Reserved: release.Neg()},
		balance.Operation{ClientID: maker.ClientID, AssetID: got.ID, Amount: gotAmount},
	)

	transfers, err := fee.ResolveAll(maker.FeeInstructions(), fee.Fill{
		ClientID:       maker.ClientID,
		IsMaker:        true,
		ReceivedAsset:  got.ID,
		ReceivedVolume: gotAmount,
		Accuracy:       got.Accuracy,
	})
	if err != nil {
		return nil, err
	}
	m.res.OppositeCashMovements = append(m.res.OppositeCashMovements, feeOperations(transfers)...)
	return transfers, nil
}

func (m *matcher) takerFees(volume, quote decimal.Decimal) ([]fee.Transfer, error) {
	inst := m.in.Instrument
	got, gotAmount := inst.Quoting, quote
	if m.taker.IsBuySide() {
		got, gotAmount = inst.Base, volume
	}
	transfers, err := fee.ResolveAll(m.taker.FeeInstructions(), fee.Fill{
		ClientID:       m.taker.ClientID,
		ReceivedAsset:  got.ID,
		ReceivedVolume: gotAmount,
		Accuracy:       got.Accuracy,
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func feeOperations(transfers []fee.Transfer) []balance.Operation {
	ops := make([]balance.Operation, 0, 2*len(transfers))
	for _, t := range transfers {
		ops = append(ops,
			balance.Operation{ClientID: t.FromClientID, AssetID: t.AssetID, Amount: t.Volume.Neg()},
			balance.Operation{ClientID: t.ToClientID, AssetID: t.AssetID, Amount: t.Volume},
		)
	}
	return ops
}

func (m *matcher) finish() {
	date := m.in.Date

	switch o := m.res.Order.(type) {
	case *order.MarketOrder:
		if m.filled.IsZero() || !m.taker.RemainingVolume.IsZero() {
			m.setStatus(order.NoLiquidity, date)
			return
		}
		price := m.quote.Div(m.filled)
		if t := m.in.PriceDeviationThreshold; t.Valid {
			if best, ok := m.in.Opposite.BestPrice(); ok && !PriceWithinDeviation(price, best, t.Decimal) {
				m.setStatus(order.TooHighPriceDeviation, date)
				return
			}
		}
		o.Price = decimal.NewNullDecimal(price.Round(m.in.Instrument.Pair.Accuracy))
		m.setStatus(order.Matched, date)

	case *order.LimitOrder:
		switch {
		case m.taker.RemainingVolume.IsZero():
			m.setStatus(order.Matched, date)
		case m.filled.IsPositive():
			m.setStatus(order.PartiallyMatched, date)
		default:
			m.setStatus(order.InOrderBook, date)
		}
	}

	m.ownCash()
	m.midPrice()
}

func (m *matcher) setStatus(s order.Status, at time.Time) {
	m.taker.Status = s
	m.taker.StatusDate = at
}

func (m *matcher) ownCash() {
	if m.filled.IsZero() {
		return
	}
	inst := m.in.Instrument
	client := m.taker.ClientID
	got, gotAmount := inst.Quoting, m.quote
	paid, paidAmount := inst.Base, m.filled
	if m.taker.IsBuySide() {
		got, gotAmount = inst.Base, m.filled
		paid, paidAmount = inst.Quoting, m.quote
	}
	m.res.OwnCashMovements = append(m.res.OwnCashMovements,
		balance.Operation{ClientID: client, AssetID: got.ID, Amount: gotAmount},
		balance.Operation{ClientID: client, AssetID: paid.ID, Amount: paidAmount.Neg()},
	)
	for _, t := range m.res.Trades {
		m.res.OwnCashMovements = append(m.res.OwnCashMovements, feeOperations(t.TakerFees)...)
	}
}

// midPrice evaluates the mid price the book would have if the result were
// applied, including a limit taker's resting remainder.
func (m *matcher) midPrice() {
	own := m.in.OwnBest
	isBuy := m.taker.IsBuySide()
	if m.limit != nil && !m.taker.RemainingVolume.IsZero() {
		p := m.limit.Price
		if !own.Valid || (isBuy && p.GreaterThan(own.Decimal)) || (!isBuy && p.LessThan(own.Decimal)) {
			own = decimal.NewNullDecimal(p)
		}
	}
	opp, ok := m.res.Side.BestPrice()
	if own.Valid && ok {
		m.res.MidPrice = decimal.NewNullDecimal(own.Decimal.Add(opp).Div(decimal.NewFromInt(2)))
	}
	m.res.MidPriceValid = MidPriceValid(m.res.MidPrice, m.in.LowerMidPriceBound, m.in.UpperMidPriceBound)
}
