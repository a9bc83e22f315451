// Package execution stages everything one inbound message does: book
// overlays, balance changes, trades and lifecycle records. Nothing is
// visible outside the context until the caller commits it.
package execution

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchd/domain/asset"
	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/order"
	"matchd/domain/orderbook"
)

type BookSource interface {
	OrderBook(assetPairID string) *orderbook.OrderBook
	StopBook(assetPairID string) *orderbook.StopBook
}

type BalanceSource interface {
	Balance(clientID, assetID string) balance.Balance
}

type InstrumentSource interface {
	Instrument(assetPairID string) (asset.Instrument, bool)
}

// BalanceError is a staged wallet operation that would break a balance.
type BalanceError struct {
	ClientID string
	AssetID  string
	Err      error
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("balance %s/%s: %v", e.ClientID, e.AssetID, e.Err)
}

func (e *BalanceError) Unwrap() error { return e.Err }

// Meta identifies the inbound message a context belongs to.
type Meta struct {
	MessageID string
	RequestID string
	Type      events.MessageType
	EntrySeq  uint64
	Date      time.Time
}

type Context struct {
	Meta
	Log *zap.Logger

	books       BookSource
	balances    BalanceSource
	instruments InstrumentSource
	depth       int

	orderBooks map[string]*orderbook.OrderBook
	stopBooks  map[string]*orderbook.StopBook
	pairs      []string

	orders     map[string]events.OrderChange
	orderIDs   []string
	stops      map[string]events.StopOrderChange
	stopIDs    []string
	staged     map[balance.Key]balance.Balance
	before     map[balance.Key]balance.Balance
	stagedKeys []balance.Key

	trades      []matching.Trade
	orderEvents []events.OrderEvent
	midPrices   map[string]events.MidPrice

	committed bool
}

func (c *Context) Instrument(assetPairID string) (asset.Instrument, bool) {
	return c.instruments.Instrument(assetPairID)
}

// -------------------- Books --------------------

func (c *Context) touch(assetPairID string) {
	for _, p := range c.pairs {
		if p == assetPairID {
			return
		}
	}
	c.pairs = append(c.pairs, assetPairID)
}

// TouchedAssetPairs lists the pairs whose books this context changed, in
// first touch order.
func (c *Context) TouchedAssetPairs() []string { return c.pairs }

// OrderBook returns the staged book if there is one, the canonical one
// otherwise. It must be treated as read-only.
func (c *Context) OrderBook(assetPairID string) *orderbook.OrderBook {
	if b, ok := c.orderBooks[assetPairID]; ok {
		return b
	}
	return c.books.OrderBook(assetPairID)
}

func (c *Context) mutableBook(assetPairID string) *orderbook.OrderBook {
	b, ok := c.orderBooks[assetPairID]
	if !ok {
		b = c.books.OrderBook(assetPairID).Clone()
		c.orderBooks[assetPairID] = b
		c.touch(assetPairID)
	}
	return b
}

func (c *Context) recordOrder(o *order.LimitOrder, removed bool) {
	if _, ok := c.orders[o.ID]; !ok {
		c.orderIDs = append(c.orderIDs, o.ID)
	}
	c.orders[o.ID] = events.OrderChange{Order: o.Copy(), Removed: removed}
}

// InsertOrder rests o in the staged book.
func (c *Context) InsertOrder(o *order.LimitOrder) error {
	if err := c.mutableBook(o.AssetPairID).Insert(o); err != nil {
		return err
	}
	c.recordOrder(o, false)
	return nil
}

// RemoveOrder takes an order out of the staged book; final is the state it
// leaves with.
func (c *Context) RemoveOrder(final *order.LimitOrder) {
	c.mutableBook(final.AssetPairID).Remove(final.ID)
	c.recordOrder(final, true)
}

// ApplyMatch swaps in the opposite side a match produced and records every
// resting order it touched.
func (c *Context) ApplyMatch(assetPairID string, res *matching.Result) error {
	if err := c.mutableBook(assetPairID).SetSide(res.Side.IsBuy(), res.Side); err != nil {
		return err
	}
	for _, o := range res.Completed {
		c.recordOrder(o, true)
	}
	for _, o := range res.Cancelled {
		c.recordOrder(o, true)
	}
	if res.Uncompleted != nil {
		c.recordOrder(res.Uncompleted, false)
	}
	return nil
}

func (c *Context) StopBook(assetPairID string) *orderbook.StopBook {
	if b, ok := c.stopBooks[assetPairID]; ok {
		return b
	}
	return c.books.StopBook(assetPairID)
}

func (c *Context) mutableStopBook(assetPairID string) *orderbook.StopBook {
	b, ok := c.stopBooks[assetPairID]
	if !ok {
		b = c.books.StopBook(assetPairID).Clone()
		c.stopBooks[assetPairID] = b
		c.touch(assetPairID)
	}
	return b
}

func (c *Context) recordStop(o *order.StopOrder, removed bool) {
	if _, ok := c.stops[o.ID]; !ok {
		c.stopIDs = append(c.stopIDs, o.ID)
	}
	c.stops[o.ID] = events.StopOrderChange{Order: o.Copy(), Removed: removed}
}

func (c *Context) InsertStopOrder(o *order.StopOrder) error {
	if err := c.mutableStopBook(o.AssetPairID).Insert(o); err != nil {
		return err
	}
	c.recordStop(o, false)
	return nil
}

func (c *Context) RemoveStopOrder(final *order.StopOrder) {
	c.mutableStopBook(final.AssetPairID).Remove(final.ID)
	c.recordStop(final, true)
}

// -------------------- Balances --------------------

// Balance returns the staged balance if there is one, the canonical one
// otherwise.
func (c *Context) Balance(clientID, assetID string) balance.Balance {
	k := balance.Key{ClientID: clientID, AssetID: assetID}
	if b, ok := c.staged[k]; ok {
		return b
	}
	return c.balances.Balance(clientID, assetID)
}

// ApplyOperations stages ops in order. It is all-or-nothing: on a
// *BalanceError nothing is staged.
func (c *Context) ApplyOperations(ops []balance.Operation) error {
	next := make(map[balance.Key]balance.Balance)
	for _, op := range ops {
		if op.IsEmpty() {
			continue
		}
		k := op.Key()
		cur, ok := next[k]
		if !ok {
			cur = c.Balance(op.ClientID, op.AssetID)
		}
		b, err := cur.Apply(op)
		if err != nil {
			return &BalanceError{ClientID: op.ClientID, AssetID: op.AssetID, Err: err}
		}
		next[k] = b
	}

	for _, op := range ops {
		k := op.Key()
		b, ok := next[k]
		if !ok {
			continue
		}
		if _, seen := c.before[k]; !seen {
			c.before[k] = c.balances.Balance(k.ClientID, k.AssetID)
			c.stagedKeys = append(c.stagedKeys, k)
		}
		c.staged[k] = b
	}
	return nil
}

// -------------------- Records --------------------

func (c *Context) AddTrades(trades ...matching.Trade) {
	c.trades = append(c.trades, trades...)
}

// AddOrderEvent records the state o ended up in after this message.
func (c *Context) AddOrderEvent(o order.Order, trades []matching.Trade) {
	c.orderEvents = append(c.orderEvents, events.NewOrderEvent(o, trades))
}

func (c *Context) OrderEvents() []events.OrderEvent { return c.orderEvents }

func (c *Context) SetMidPrice(mp events.MidPrice) {
	c.midPrices[mp.AssetPairID] = mp
}

// StagedMidPrices returns the mid price this context staged for the pair,
// if any.
func (c *Context) StagedMidPrices(assetPairID string) []events.MidPrice {
	if mp, ok := c.midPrices[assetPairID]; ok {
		return []events.MidPrice{mp}
	}
	return nil
}

// HasChanges reports whether anything was staged in a book or a balance.
func (c *Context) HasChanges() bool {
	return len(c.pairs) > 0 || len(c.stagedKeys) > 0
}

func (c *Context) Committed() bool { return c.committed }

func (c *Context) MarkCommitted() { c.committed = true }
