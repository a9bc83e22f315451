package service

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchd/domain/asset"
	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/service/execution"
)

// processed is the outcome of one limit order inside a context.
type processed struct {
	order    *order.LimitOrder
	accepted bool
	reason   string
}

// limitRun is what processLimit needs besides the order. Bounds are only
// checked when checkMid is set.
type limitRun struct {
	inst         asset.Instrument
	lower, upper decimal.NullDecimal
	checkMid     bool
}

// processLimit matches o against the staged book and, when every guard
// passes, stages the fills, the wallet operations and the resting
// remainder. A rejected order leaves the staged state as it found it.
func (s *OrderService) processLimit(ec *execution.Context, o *order.LimitOrder, run limitRun) processed {
	pair := o.AssetPairID
	isBuy := o.IsBuySide()
	book := ec.OrderBook(pair)

	ownBest, ok := book.BestPrice(isBuy)
	res, err := matching.Match(matching.Input{
		Order:              o,
		Opposite:           book.Side(!isBuy),
		OwnBest:            nullable(ownBest, ok),
		Instrument:         run.inst,
		Balances:           ec,
		LowerMidPriceBound: run.lower,
		UpperMidPriceBound: run.upper,
		Date:               ec.Date,
	})
	if err != nil {
		ec.Log.Error("match limit order", zap.String("order_id", o.ID), zap.Error(err))
		return s.rejectLimit(ec, o, order.Rejected, err.Error())
	}
	taker := res.Order.(*order.LimitOrder)

	if run.checkMid && !res.MidPriceValid {
		ec.Log.Info("mid price control failed",
			zap.String("order_id", o.ID),
			zap.Stringer("mid", res.MidPrice.Decimal),
			zap.Stringer("lower", run.lower.Decimal),
			zap.Stringer("upper", run.upper.Decimal),
		)
		return s.rejectLimit(ec, o, order.TooHighMidPriceDeviation, "too high mid price deviation")
	}

	rests := !taker.RemainingVolume.IsZero()
	if rests {
		if _, dup := book.Get(taker.ID); dup {
			return s.rejectLimit(ec, o, order.Rejected, "order id already in the book")
		}
		if best, ok := res.Side.BestPrice(); ok && crossesBook(isBuy, taker.Price, best) {
			return s.rejectLimit(ec, o, order.LeadToNegativeSpread, "order would cross the client's own orders")
		}
	}

	ops := res.CashMovements()
	if rests {
		reserve := run.inst.ReserveAsset(isBuy)
		ops = append(ops, balance.Operation{
			ClientID: taker.ClientID,
			AssetID:  reserve.ID,
			Reserved: taker.ReservedVolume(reserve.Accuracy),
		})
	}
	if err := ec.ApplyOperations(ops); err != nil {
		var berr *execution.BalanceError
		if errors.As(err, &berr) {
			ec.Log.Info("wallet operations failed", zap.String("order_id", o.ID), zap.Error(err))
			return s.rejectLimit(ec, o, order.NotEnoughFunds, err.Error())
		}
		return s.rejectLimit(ec, o, order.Rejected, err.Error())
	}

	// Match refuses a same side book and duplicates were refused above, so
	// neither call can fail once the wallet operations are staged.
	if err := ec.ApplyMatch(pair, res); err != nil {
		ec.Log.Error("apply match", zap.String("order_id", o.ID), zap.Error(err))
	}
	if rests {
		if err := ec.InsertOrder(taker); err != nil {
			ec.Log.Error("rest limit order", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	ec.AddTrades(res.Trades...)
	ec.AddOrderEvent(taker, res.Trades)
	addMakerEvents(ec, res)
	updateMidPrice(ec, pair)

	return processed{order: taker, accepted: true}
}

func (s *OrderService) rejectLimit(ec *execution.Context, o *order.LimitOrder, status order.Status, reason string) processed {
	rejected := o.Copy()
	_ = rejected.UpdateStatus(status, ec.Date)
	ec.AddOrderEvent(rejected, nil)
	return processed{order: rejected, reason: reason}
}

// crossesBook reports whether a resting price would cross the opposite best.
func crossesBook(isBuy bool, price, oppositeBest decimal.Decimal) bool {
	if isBuy {
		return price.GreaterThanOrEqual(oppositeBest)
	}
	return price.LessThanOrEqual(oppositeBest)
}

// addMakerEvents records the resting orders a match touched, each with the
// trades it took part in.
func addMakerEvents(ec *execution.Context, res *matching.Result) {
	tradesOf := func(id string) []matching.Trade {
		var out []matching.Trade
		for _, t := range res.Trades {
			if t.MakerOrderID == id {
				out = append(out, t)
			}
		}
		return out
	}
	for _, o := range res.Completed {
		ec.AddOrderEvent(o, tradesOf(o.ID))
	}
	for _, o := range res.Cancelled {
		ec.AddOrderEvent(o, nil)
	}
	if res.Uncompleted != nil {
		ec.AddOrderEvent(res.Uncompleted, tradesOf(res.Uncompleted.ID))
	}
}

func updateMidPrice(ec *execution.Context, assetPairID string) {
	if mid, ok := ec.OrderBook(assetPairID).MidPrice(); ok {
		ec.SetMidPrice(events.MidPrice{AssetPairID: assetPairID, Price: mid, Timestamp: ec.Date})
	}
}

// releaseCancelled stages the removal of resting orders a rejected match
// cancelled anyway, and frees their reservations.
func releaseCancelled(ec *execution.Context, inst asset.Instrument, cancelled []*order.LimitOrder) {
	if len(cancelled) == 0 {
		return
	}
	ops := make([]balance.Operation, 0, len(cancelled))
	for _, o := range cancelled {
		reserve := inst.ReserveAsset(o.IsBuySide())
		ops = append(ops, balance.Operation{
			ClientID: o.ClientID,
			AssetID:  reserve.ID,
			Reserved: o.ReservedVolume(reserve.Accuracy).Neg(),
		})
	}
	if err := ec.ApplyOperations(ops); err != nil {
		ec.Log.Error("release cancelled orders", zap.Error(err))
		return
	}
	for _, o := range cancelled {
		ec.RemoveOrder(o)
		ec.AddOrderEvent(o, nil)
	}
}
