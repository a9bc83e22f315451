package service

import (
	"context"

	"go.uber.org/zap"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/order"
	"matchd/service/execution"
)

// BookIndex lists the asset pairs that have books.
type BookIndex interface {
	AssetPairIDs() []string
}

// CancelOrders cancels resting limit and stop orders of one client as a
// lifecycle event: the orders end Cancelled and their reservations are
// released.
func (s *OrderService) CancelOrders(ctx context.Context, env Envelope, r *CancelRequest) Response {
	ec := s.newContext(env, events.MessageCancelOrders)

	var n int
	if len(r.OrderIDs) > 0 {
		n = s.cancelByID(ec, r)
	} else {
		for _, pair := range s.pairsFor(r.AssetPairID) {
			sides := []bool{true, false}
			if r.IsBuy != nil {
				sides = []bool{*r.IsBuy}
			}
			for _, isBuy := range sides {
				n += s.cancelClientOrders(ec, r.ClientID, pair, isBuy, order.Cancelled)
			}
		}
	}

	if n == 0 && len(r.OrderIDs) > 0 {
		return Response{MessageID: env.MessageID, Status: StatusLimitOrderNotFound, Reason: "no resting order found"}
	}
	if n == 0 {
		return Response{MessageID: env.MessageID, Status: StatusOK}
	}
	return s.commit(ctx, ec, Response{MessageID: env.MessageID, Status: StatusOK, OrderStatus: order.Cancelled})
}

// cancelPrevious cancels the client's resting orders on one side of a pair
// before a new order of the same batch is matched.
func (s *OrderService) cancelPrevious(ec *execution.Context, clientID, assetPairID string, isBuy bool) {
	if n := s.cancelClientOrders(ec, clientID, assetPairID, isBuy, order.Cancelled); n > 0 {
		ec.Log.Debug("previous orders cancelled", zap.String("client_id", clientID), zap.Int("count", n))
	}
}

func (s *OrderService) pairsFor(assetPairID string) []string {
	if assetPairID != "" {
		return []string{assetPairID}
	}
	if s.books == nil {
		return nil
	}
	return s.books.AssetPairIDs()
}

func (s *OrderService) cancelByID(ec *execution.Context, r *CancelRequest) int {
	pairs := s.pairsFor(r.AssetPairID)
	n := 0
	for _, id := range r.OrderIDs {
		for _, pair := range pairs {
			if o, ok := ec.OrderBook(pair).Get(id); ok && o.ClientID == r.ClientID {
				if s.cancelLimit(ec, o, order.Cancelled) {
					n++
				}
				break
			}
			if o, ok := ec.StopBook(pair).Get(id); ok && o.ClientID == r.ClientID {
				if s.cancelStop(ec, o) {
					n++
				}
				break
			}
		}
	}
	return n
}

func (s *OrderService) cancelClientOrders(ec *execution.Context, clientID, assetPairID string, isBuy bool, status order.Status) int {
	n := 0
	for _, o := range ec.OrderBook(assetPairID).OrdersOf(clientID, isBuy) {
		if s.cancelLimit(ec, o, status) {
			n++
		}
	}
	for _, o := range ec.StopBook(assetPairID).OrdersOf(clientID, isBuy) {
		if s.cancelStop(ec, o) {
			n++
		}
	}
	return n
}

func (s *OrderService) cancelLimit(ec *execution.Context, o *order.LimitOrder, status order.Status) bool {
	inst, err := s.instrument(ec, o.AssetPairID)
	if err != nil {
		ec.Log.Error("cancel order", zap.String("order_id", o.ID), zap.Error(err))
		return false
	}
	reserve := inst.ReserveAsset(o.IsBuySide())
	err = ec.ApplyOperations([]balance.Operation{{
		ClientID: o.ClientID,
		AssetID:  reserve.ID,
		Reserved: o.ReservedVolume(reserve.Accuracy).Neg(),
	}})
	if err != nil {
		ec.Log.Error("release order reservation", zap.String("order_id", o.ID), zap.Error(err))
		return false
	}

	final := o.Copy()
	_ = final.UpdateStatus(status, ec.Date)
	ec.RemoveOrder(final)
	ec.AddOrderEvent(final, nil)
	updateMidPrice(ec, o.AssetPairID)
	return true
}

func (s *OrderService) cancelStop(ec *execution.Context, o *order.StopOrder) bool {
	inst, err := s.instrument(ec, o.AssetPairID)
	if err != nil {
		ec.Log.Error("cancel stop order", zap.String("order_id", o.ID), zap.Error(err))
		return false
	}
	reserve := inst.ReserveAsset(o.IsBuySide())
	err = ec.ApplyOperations([]balance.Operation{{
		ClientID: o.ClientID,
		AssetID:  reserve.ID,
		Reserved: o.ReservedVolume(reserve.Accuracy).Neg(),
	}})
	if err != nil {
		ec.Log.Error("release stop order reservation", zap.String("order_id", o.ID), zap.Error(err))
		return false
	}

	final := o.Copy()
	_ = final.UpdateStatus(order.Cancelled, ec.Date)
	ec.RemoveStopOrder(final)
	ec.AddOrderEvent(final, nil)
	return true
}
