package service

import (
	"context"

	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/domain/validation"
	"matchd/service/execution"
)

// ProcessLimitOrder runs one limit order through the pipeline.
//
// The order book mid price is checked twice against the band around the
// reference mid price: before matching, where a book already out of range
// rejects the order in the same context, and after matching, where a
// resulting mid price out of range drops the whole context and rejects the
// order in a fresh one.
func (s *OrderService) ProcessLimitOrder(ctx context.Context, env Envelope, r *LimitOrderRequest) Response {
	o := r.order(env)
	s.log.Debug("limit order received",
		zap.String("message_id", env.MessageID),
		zap.String("external_id", o.ExternalID),
		zap.String("client_id", o.ClientID),
		zap.String("asset_pair_id", o.AssetPairID),
		zap.Stringer("volume", o.Volume),
		zap.Stringer("price", o.Price),
	)

	inst, err := s.validator.Instrument(o.AssetPairID)
	if err != nil {
		return s.rejectEarly(ctx, env, events.MessageLimitOrder, o, err)
	}

	ec := s.contextWithPreviousCancelled(env, r, o)
	if _, err := s.validator.ValidateLimit(o, ec); err != nil {
		if !ec.HasChanges() {
			return s.rejectEarly(ctx, env, events.MessageLimitOrder, o, err)
		}
		p := s.rejectValidation(ec, o, err)
		return s.commit(ctx, ec, limitResponse(env, p))
	}

	lower, upper := s.bounds(ec, o.AssetPairID)

	before := ec.OrderBook(o.AssetPairID)
	if !matching.MidPriceValid(nullable(before.MidPrice()), lower, upper) {
		mid, _ := before.MidPrice()
		ec.Log.Error("order book mid price already out of range",
			zap.String("external_id", o.ExternalID),
			zap.String("asset_pair_id", o.AssetPairID),
			zap.Stringer("mid", mid),
			zap.Stringer("lower", lower.Decimal),
			zap.Stringer("upper", upper.Decimal),
		)
		p := s.rejectLimit(ec, o, order.TooHighMidPriceDeviation, "order book mid price already out of range")
		return s.commit(ctx, ec, limitResponse(env, p))
	}

	p := s.processLimit(ec, o, limitRun{inst: inst})

	after := nullable(ec.OrderBook(o.AssetPairID).MidPrice())
	if p.accepted && !matching.MidPriceValid(after, lower, upper) {
		fresh := s.contextWithPreviousCancelled(env, r, o)
		fresh.Log.Info("mid price control failed",
			zap.String("external_id", o.ExternalID),
			zap.Stringer("mid", after.Decimal),
			zap.Stringer("lower", lower.Decimal),
			zap.Stringer("upper", upper.Decimal),
		)
		p = s.rejectLimit(fresh, o, order.TooHighMidPriceDeviation, "too high mid price deviation")
		return s.commit(ctx, fresh, limitResponse(env, p))
	}

	return s.commit(ctx, ec, limitResponse(env, p))
}

// contextWithPreviousCancelled opens a context and, when asked to, cancels
// the client's resting orders on the side of o.
func (s *OrderService) contextWithPreviousCancelled(env Envelope, r *LimitOrderRequest, o *order.LimitOrder) *execution.Context {
	ec := s.newContext(env, events.MessageLimitOrder)
	if r.CancelPrevious {
		s.cancelPrevious(ec, o.ClientID, o.AssetPairID, o.IsBuySide())
	}
	return ec
}

func (s *OrderService) rejectValidation(ec *execution.Context, o *order.LimitOrder, err error) processed {
	status, reason, ok := validation.StatusOf(err)
	if !ok {
		status, reason = order.Rejected, err.Error()
	}
	return s.rejectLimit(ec, o, status, reason)
}

func limitResponse(env Envelope, p processed) Response {
	resp := Response{
		MessageID:   env.MessageID,
		OrderID:     p.order.ID,
		OrderStatus: p.order.Status,
		Reason:      p.reason,
	}
	if p.accepted {
		resp.Status = StatusOK
	} else {
		resp.Status = StatusFor(p.order.Status)
	}
	return resp
}
