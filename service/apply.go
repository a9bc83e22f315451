package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/infra/metrics"
	"matchd/infra/sequence"
	"matchd/service/execution"
)

var (
	ErrAlreadyCommitted = errors.New("execution context already committed")
	ErrPersistence      = errors.New("unable to save result data")
)

// ReasonPersistenceFailed answers a message whose commit was not persisted.
const ReasonPersistenceFailed = "Unable to save result data"

// Applier commits an execution context: persist first, then swap the
// staged state into the canonical holders, then publish.
type Applier struct {
	books     BookStore
	balances  BalanceStore
	midPrices MidPriceStore
	seq       *sequence.Sequencer
	persister Persister
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewApplier(
	books BookStore,
	balances BalanceStore,
	midPrices MidPriceStore,
	seq *sequence.Sequencer,
	persister Persister,
	publisher Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *Applier {
	return &Applier{
		books:     books,
		balances:  balances,
		midPrices: midPrices,
		seq:       seq,
		persister: persister,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("applier"),
	}
}

// Apply must be called once per context. Nothing canonical changes and no
// sequence advances unless persistence succeeded.
func (a *Applier) Apply(ctx context.Context, ec *execution.Context) (*events.ExecutionData, error) {
	if ec.Committed() {
		return nil, ErrAlreadyCommitted
	}

	data := ec.ExecutionData()
	data.Sequence = a.seq.Peek(data)

	if err := a.persister.Persist(ctx, data); err != nil {
		a.metrics.PersistFailed()
		a.log.Error("persist execution data",
			zap.String("message_id", data.MessageID),
			zap.Error(err),
		)
		return nil, errors.Wrapf(ErrPersistence, "message %s: %v", data.MessageID, err)
	}

	changes := ec.Changes()
	for _, b := range changes.OrderBooks {
		a.books.Publish(b)
	}
	for _, b := range changes.StopBooks {
		a.books.PublishStops(b)
	}
	a.balances.Set(changes.Balances)
	a.midPrices.Add(changes.MidPrices...)

	if err := a.seq.Advance(data.Sequence); err != nil {
		// Only one goroutine commits, so the peeked numbers are still next.
		a.log.Error("advance sequence", zap.String("message_id", data.MessageID), zap.Error(err))
	}
	ec.MarkCommitted()
	a.metrics.AddTrades(len(data.Trades))

	if a.publisher != nil {
		a.publisher.Send(data)
	}
	return data, nil
}
