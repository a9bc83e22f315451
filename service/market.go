package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/service/execution"
)

// ProcessMarketOrder runs one market order through the pipeline. A market
// order that fails after matching is still committed: the client sees its
// rejection as an execution event without trades.
func (s *OrderService) ProcessMarketOrder(ctx context.Context, env Envelope, r *MarketOrderRequest) Response {
	o := r.order(env)
	s.log.Debug("market order received",
		zap.String("message_id", env.MessageID),
		zap.String("external_id", o.ExternalID),
		zap.String("client_id", o.ClientID),
		zap.String("asset_pair_id", o.AssetPairID),
		zap.Stringer("volume", o.Volume),
	)

	inst, err := s.validator.ValidateMarket(o, s.balances)
	if err != nil {
		return s.rejectEarly(ctx, env, events.MessageMarketOrder, o, err)
	}

	ec := s.newContext(env, events.MessageMarketOrder)
	pair := o.AssetPairID
	isBuy := o.IsBuySide()
	lower, upper := s.bounds(ec, pair)
	book := ec.OrderBook(pair)

	res, err := matching.Match(matching.Input{
		Order:                   o,
		Opposite:                book.Side(!isBuy),
		OwnBest:                 nullable(book.BestPrice(isBuy)),
		Instrument:              inst,
		Balances:                ec,
		LowerMidPriceBound:      lower,
		UpperMidPriceBound:      upper,
		PriceDeviationThreshold: s.thresholds.MarketOrderPriceDeviationThreshold(pair),
		Date:                    env.Date,
	})
	if err != nil {
		ec.Log.Error("match market order", zap.Error(err))
		return s.rejectEarly(ctx, env, events.MessageMarketOrder, o, err)
	}
	mo := res.Order.(*order.MarketOrder)

	if mo.Status == order.Matched && !res.MidPriceValid {
		ec.Log.Info("market order rejected: too high mid price deviation",
			zap.String("external_id", mo.ExternalID),
			zap.Stringer("mid", res.MidPrice.Decimal),
		)
		mo.Status, mo.StatusDate = order.TooHighMidPriceDeviation, env.Date
	}

	reason := ""
	if mo.Status == order.Matched {
		if err := s.applyMarketMatch(ec, res); err != nil {
			reason = err.Error()
			mo.Status, mo.StatusDate = order.NotEnoughFunds, env.Date
			mo.Price.Valid = false
			ec.AddOrderEvent(mo, nil)
		}
	} else {
		releaseCancelled(ec, inst, res.Cancelled)
		mo.Price.Valid = false
		ec.AddOrderEvent(mo, nil)
	}

	resp := Response{
		MessageID:   env.MessageID,
		Status:      StatusFor(mo.Status),
		OrderID:     mo.ID,
		OrderStatus: mo.Status,
		Price:       mo.Price,
		Reason:      reason,
	}
	return s.commit(ctx, ec, resp)
}

// applyMarketMatch stages a matched market order. Nothing is staged when
// the wallet operations fail.
func (s *OrderService) applyMarketMatch(ec *execution.Context, res *matching.Result) error {
	mo := res.Order.(*order.MarketOrder)
	if err := ec.ApplyOperations(res.CashMovements()); err != nil {
		var berr *execution.BalanceError
		if errors.As(err, &berr) {
			ec.Log.Error("unable to process wallet operations after matching",
				zap.String("order_id", mo.ID),
				zap.Error(err),
			)
		}
		return err
	}
	// Match refuses a same side book, so this cannot fail.
	if err := ec.ApplyMatch(mo.AssetPairID, res); err != nil {
		ec.Log.Error("apply match", zap.String("order_id", mo.ID), zap.Error(err))
	}
	ec.AddTrades(res.Trades...)
	ec.AddOrderEvent(mo, res.Trades)
	addMakerEvents(ec, res)
	updateMidPrice(ec, mo.AssetPairID)
	return nil
}
