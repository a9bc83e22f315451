package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/order"
	"matchd/service/execution"
)

// ProcessStopOrder validates a stop order and rests it in the stop book
// with its funds reserved. A stop order whose trigger is already met is
// converted and matched at once.
func (s *OrderService) ProcessStopOrder(ctx context.Context, env Envelope, r *StopOrderRequest) Response {
	o := r.order(env)
	s.log.Debug("stop order received",
		zap.String("message_id", env.MessageID),
		zap.String("external_id", o.ExternalID),
		zap.String("client_id", o.ClientID),
		zap.String("asset_pair_id", o.AssetPairID),
		zap.Stringer("volume", o.Volume),
	)

	inst, err := s.validator.ValidateStop(o, s.balances)
	if err != nil {
		return s.rejectEarly(ctx, env, events.MessageStopOrder, o, err)
	}

	ec := s.newContext(env, events.MessageStopOrder)
	book := ec.OrderBook(o.AssetPairID)
	best, _ := book.BestPrice(!o.IsBuySide())

	if price, ok := o.TriggerPrice(best); ok {
		executed := o.Copy()
		executed.Price = decimal.NewNullDecimal(price)
		_ = executed.UpdateStatus(order.Executed, env.Date)
		ec.AddOrderEvent(executed, nil)

		lower, upper := s.bounds(ec, o.AssetPairID)
		p := s.processLimit(ec, o.ToLimit(price, env.Date), limitRun{inst: inst, lower: lower, upper: upper, checkMid: true})
		return s.commit(ctx, ec, limitResponse(env, p))
	}

	reserve := inst.ReserveAsset(o.IsBuySide())
	err = ec.ApplyOperations([]balance.Operation{{
		ClientID: o.ClientID,
		AssetID:  reserve.ID,
		Reserved: o.ReservedVolume(reserve.Accuracy),
	}})
	if err != nil {
		return s.rejectEarly(ctx, env, events.MessageStopOrder, o, err)
	}

	pending := o.Copy()
	_ = pending.UpdateStatus(order.Pending, env.Date)
	if err := ec.InsertStopOrder(pending); err != nil {
		return s.rejectEarly(ctx, env, events.MessageStopOrder, o, err)
	}
	ec.AddOrderEvent(pending, nil)

	return s.commit(ctx, ec, Response{
		MessageID:   env.MessageID,
		Status:      StatusOK,
		OrderID:     pending.ID,
		OrderStatus: pending.Status,
	})
}

// cascade executes every stop order the staged books trigger. Each step
// takes one stop order out of its book and reads the books again, so the
// work queue only ever shrinks; MaxCascadeDepth bounds it anyway.
func (s *OrderService) cascade(ec *execution.Context) {
	queue := append([]string(nil), ec.TouchedAssetPairs()...)
	seen := make(map[string]bool, len(queue))
	for _, p := range queue {
		seen[p] = true
	}

	for depth := 0; len(queue) > 0; {
		pair := queue[0]
		book := ec.OrderBook(pair)
		bid, _ := book.BestPrice(true)
		ask, _ := book.BestPrice(false)

		so, price, ok := ec.StopBook(pair).Triggered(bid, ask)
		if !ok {
			queue = queue[1:]
			continue
		}
		if depth >= s.maxCascadeDepth {
			ec.Log.Warn("stop order cascade depth exceeded, remaining stop orders stay pending",
				zap.Int("max_depth", s.maxCascadeDepth),
				zap.String("asset_pair_id", pair),
			)
			s.metrics.CascadeAborted()
			return
		}
		depth++

		s.executeStop(ec, so, price)

		for _, p := range ec.TouchedAssetPairs() {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
}

// executeStop takes a triggered stop order out of its book, frees its
// reservation and processes it as a limit order.
func (s *OrderService) executeStop(ec *execution.Context, so *order.StopOrder, price decimal.Decimal) {
	ec.Log.Info("stop order triggered",
		zap.String("order_id", so.ID),
		zap.String("asset_pair_id", so.AssetPairID),
		zap.Stringer("price", price),
	)

	executed := so.Copy()
	executed.Price = decimal.NewNullDecimal(price)
	_ = executed.UpdateStatus(order.Executed, ec.Date)
	ec.RemoveStopOrder(executed)
	ec.AddOrderEvent(executed, nil)

	inst, err := s.instrument(ec, so.AssetPairID)
	if err != nil {
		ec.Log.Error("triggered stop order", zap.String("order_id", so.ID), zap.Error(err))
		return
	}
	reserve := inst.ReserveAsset(so.IsBuySide())
	err = ec.ApplyOperations([]balance.Operation{{
		ClientID: so.ClientID,
		AssetID:  reserve.ID,
		Reserved: so.ReservedVolume(reserve.Accuracy).Neg(),
	}})
	if err != nil {
		ec.Log.Error("release stop order reservation", zap.String("order_id", so.ID), zap.Error(err))
	}

	lower, upper := s.bounds(ec, so.AssetPairID)
	s.processLimit(ec, so.ToLimit(price, ec.Date), limitRun{inst: inst, lower: lower, upper: upper, checkMid: true})
}
