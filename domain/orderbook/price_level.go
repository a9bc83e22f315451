package orderbook

import (
	"github.com/shopspring/decimal"

	"matchd/domain/order"
)

// PriceLevel aggregates the resting volume at a single price.
type PriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	OrderCount int             `json:"order_count"`
}

// Levels returns up to depth aggregated levels of a side, best first.
// depth <= 0 means all levels.
func (b *OrderBook) Levels(isBuy bool, depth int) []PriceLevel {
	var levels []PriceLevel
	b.Side(isBuy).Ascend(func(o *order.LimitOrder) bool {
		n := len(levels)
		if n > 0 && levels[n-1].Price.Equal(o.Price) {
			levels[n-1].Volume = levels[n-1].Volume.Add(o.AbsRemaining())
			levels[n-1].OrderCount++
			return true
		}
		if depth > 0 && n == depth {
			return false
		}
		levels = append(levels, PriceLevel{Price: o.Price, Volume: o.AbsRemaining(), OrderCount: 1})
		return true
	})
	return levels
}
