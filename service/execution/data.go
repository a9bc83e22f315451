package execution

import (
	"sort"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/matching"
	"matchd/domain/orderbook"
)

// Changes is what a commit swaps into canonical state.
type Changes struct {
	OrderBooks []*orderbook.OrderBook
	StopBooks  []*orderbook.StopBook
	Balances   map[balance.Key]balance.Balance
	MidPrices  []events.MidPrice
}

func (c *Context) Changes() Changes {
	ch := Changes{Balances: make(map[balance.Key]balance.Balance, len(c.staged))}
	for _, p := range c.pairs {
		if b, ok := c.orderBooks[p]; ok {
			ch.OrderBooks = append(ch.OrderBooks, b)
		}
		if b, ok := c.stopBooks[p]; ok {
			ch.StopBooks = append(ch.StopBooks, b)
		}
	}
	for k, v := range c.staged {
		ch.Balances[k] = v
	}
	ch.MidPrices = c.sortedMidPrices()
	return ch
}

func (c *Context) sortedMidPrices() []events.MidPrice {
	out := make([]events.MidPrice, 0, len(c.midPrices))
	for _, mp := range c.midPrices {
		out = append(out, mp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetPairID < out[j].AssetPairID })
	return out
}

// ExecutionData builds the record of this context. Sequence numbers are
// left for the commit to assign.
func (c *Context) ExecutionData() *events.ExecutionData {
	d := &events.ExecutionData{
		MessageID:   c.MessageID,
		RequestID:   c.RequestID,
		MessageType: c.Type,
		EntrySeq:    c.EntrySeq,
		Date:        c.Date,
		Trades:      append([]matching.Trade(nil), c.trades...),
		OrderEvents: append([]events.OrderEvent(nil), c.orderEvents...),
		MidPrices:   c.sortedMidPrices(),
	}

	for _, id := range c.orderIDs {
		d.Orders = append(d.Orders, c.orders[id])
	}
	for _, id := range c.stopIDs {
		d.StopOrders = append(d.StopOrders, c.stops[id])
	}
	for _, k := range c.stagedKeys {
		before, after := c.before[k], c.staged[k]
		if before.Total.Equal(after.Total) && before.Reserved.Equal(after.Reserved) {
			continue
		}
		d.Balances = append(d.Balances, events.BalanceChange{
			ClientID: k.ClientID,
			AssetID:  k.AssetID,
			Before:   before,
			After:    after,
		})
	}
	for _, p := range c.pairs {
		b, ok := c.orderBooks[p]
		if !ok {
			continue
		}
		d.OrderBooks = append(d.OrderBooks, events.BookDepth{
			AssetPairID: p,
			Bids:        b.Levels(true, c.depth),
			Asks:        b.Levels(false, c.depth),
		})
	}
	return d
}
