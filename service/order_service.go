package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchd/domain/asset"
	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/domain/validation"
	"matchd/infra/metrics"
	"matchd/service/execution"
)

// DefaultMaxCascadeDepth bounds how many stop orders one message may trigger.
const DefaultMaxCascadeDepth = 100

/*
OrderService is the ONLY write entry point into the system.

Every inbound message runs here, on one goroutine:
- validation
- matching against staged copies of the books
- mid price guards
- wallet operations
- stop order cascade
- commit through the Applier
*/
type OrderService struct {
	factory    *execution.Factory
	books      BookIndex
	validator  *validation.Validator
	balances   execution.BalanceSource
	thresholds ThresholdSource
	midPrices  MidPriceStore
	applier    *Applier
	notifier   Notifier
	metrics    *metrics.Metrics
	log        *zap.Logger

	maxCascadeDepth int
}

// Deps lists the collaborators of an OrderService.
type Deps struct {
	Factory         *execution.Factory
	Books           BookIndex
	Validator       *validation.Validator
	Balances        execution.BalanceSource
	Thresholds      ThresholdSource
	MidPrices       MidPriceStore
	Applier         *Applier
	Notifier        Notifier
	Metrics         *metrics.Metrics
	Log             *zap.Logger
	MaxCascadeDepth int
}

// NewOrderService wires all dependencies.
// No globals. No magic.
func NewOrderService(d Deps) *OrderService {
	depth := d.MaxCascadeDepth
	if depth <= 0 {
		depth = DefaultMaxCascadeDepth
	}
	return &OrderService{
		factory:         d.Factory,
		books:           d.Books,
		validator:       d.Validator,
		balances:        d.Balances,
		thresholds:      d.Thresholds,
		midPrices:       d.MidPrices,
		applier:         d.Applier,
		notifier:        d.Notifier,
		metrics:         d.Metrics,
		log:             d.Log.Named("pipeline"),
		maxCascadeDepth: depth,
	}
}

// Handle dispatches one inbound message.
func (s *OrderService) Handle(ctx context.Context, req *Request) Response {
	start := time.Now()
	var resp Response
	if err := req.Validate(); err != nil {
		resp = Response{MessageID: req.MessageID, Status: StatusBadRequest, Reason: err.Error()}
	} else {
		switch req.Type {
		case events.MessageLimitOrder:
			resp = s.ProcessLimitOrder(ctx, req.Envelope, req.Limit)
		case events.MessageMarketOrder:
			resp = s.ProcessMarketOrder(ctx, req.Envelope, req.Market)
		case events.MessageStopOrder:
			resp = s.ProcessStopOrder(ctx, req.Envelope, req.Stop)
		case events.MessageCancelOrders:
			resp = s.CancelOrders(ctx, req.Envelope, req.Cancel)
		}
	}
	s.metrics.ObserveMessage(req.Type.String(), resp.Status.String(), time.Since(start))
	return resp
}

func (s *OrderService) newContext(env Envelope, t events.MessageType) *execution.Context {
	return s.factory.New(execution.Meta{
		MessageID: env.MessageID,
		RequestID: env.RequestID,
		Type:      t,
		EntrySeq:  env.EntrySeq,
		Date:      env.Date,
	})
}

// bounds derives the mid price band of a pair from its reference mid price,
// including a mid price already staged in ec.
func (s *OrderService) bounds(ec *execution.Context, assetPairID string) (lower, upper decimal.NullDecimal) {
	return matching.MidPriceBounds(
		s.midPrices.ReferenceMidPrice(assetPairID, ec.Date, ec.StagedMidPrices(assetPairID)...),
		s.thresholds.MidPriceDeviationThreshold(assetPairID),
	)
}

// rejectEarly answers a message refused before anything was staged. The
// rejection bypasses sequencing.
func (s *OrderService) rejectEarly(ctx context.Context, env Envelope, t events.MessageType, o order.Order, err error) Response {
	b := o.Common()
	status, reason, ok := validation.StatusOf(err)
	if !ok {
		status, reason = order.Rejected, err.Error()
		var berr *execution.BalanceError
		if errors.As(err, &berr) {
			status = order.NotEnoughFunds
		}
	}
	_ = b.UpdateStatus(status, env.Date)

	s.log.Info("order rejected",
		zap.String("message_id", env.MessageID),
		zap.String("external_id", b.ExternalID),
		zap.Stringer("status", status),
		zap.String("reason", reason),
	)
	if s.notifier != nil {
		r := events.Rejection{
			MessageID:   env.MessageID,
			RequestID:   env.RequestID,
			MessageType: t,
			Date:        env.Date,
			Event:       events.NewOrderEvent(o, nil),
			Reason:      reason,
		}
		if nerr := s.notifier.NotifyRejected(ctx, r); nerr != nil {
			s.log.Warn("notify rejection", zap.String("message_id", env.MessageID), zap.Error(nerr))
		}
	}
	return Response{
		MessageID:   env.MessageID,
		Status:      StatusFor(status),
		OrderID:     b.ID,
		OrderStatus: status,
		Reason:      reason,
	}
}

// commit runs the cascade and hands the context to the Applier. A failed
// commit is a runtime failure, whatever the order's status.
func (s *OrderService) commit(ctx context.Context, ec *execution.Context, resp Response) Response {
	s.cascade(ec)
	if _, err := s.applier.Apply(ctx, ec); err != nil {
		s.log.Error("commit failed",
			zap.String("message_id", ec.MessageID),
			zap.String("order_id", resp.OrderID),
			zap.Error(err),
		)
		return Response{
			MessageID:   resp.MessageID,
			Status:      StatusRuntime,
			OrderID:     resp.OrderID,
			OrderStatus: resp.OrderStatus,
			Reason:      ReasonPersistenceFailed,
		}
	}
	return resp
}

// instrument resolves a pair for an order already past validation.
func (s *OrderService) instrument(ec *execution.Context, assetPairID string) (asset.Instrument, error) {
	inst, ok := ec.Instrument(assetPairID)
	if !ok {
		return asset.Instrument{}, errors.Errorf("unknown asset pair %q", assetPairID)
	}
	return inst, nil
}

func nullable(v decimal.Decimal, ok bool) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: ok}
}
