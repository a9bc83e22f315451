package execution

import (
	"go.uber.org/zap"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/orderbook"
)

// DefaultDepth is how many price levels a book update carries.
const DefaultDepth = 10

// Factory builds contexts over the canonical holders.
type Factory struct {
	books       BookSource
	balances    BalanceSource
	instruments InstrumentSource
	depth       int
	log         *zap.Logger
}

func NewFactory(books BookSource, balances BalanceSource, instruments InstrumentSource, depth int, log *zap.Logger) *Factory {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Factory{
		books:       books,
		balances:    balances,
		instruments: instruments,
		depth:       depth,
		log:         log,
	}
}

func (f *Factory) New(meta Meta) *Context {
	return &Context{
		Meta:        meta,
		Log:         f.log.With(zap.String("message_id", meta.MessageID), zap.Stringer("type", meta.Type)),
		books:       f.books,
		balances:    f.balances,
		instruments: f.instruments,
		depth:       f.depth,
		orderBooks:  make(map[string]*orderbook.OrderBook),
		stopBooks:   make(map[string]*orderbook.StopBook),
		orders:      make(map[string]events.OrderChange),
		stops:       make(map[string]events.StopOrderChange),
		staged:      make(map[balance.Key]balance.Balance),
		before:      make(map[balance.Key]balance.Balance),
		midPrices:   make(map[string]events.MidPrice),
	}
}
