package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/orderbook"
)

// Book is the aggregated depth of one instrument at one point in time.
type Book struct {
	AssetPairID string                 `json:"asset_pair_id"`
	Taken       time.Time              `json:"taken"`
	Bids        []orderbook.PriceLevel `json:"bids"`
	Asks        []orderbook.PriceLevel `json:"asks"`
	Mid         decimal.NullDecimal    `json:"mid"`
	Orders      int                    `json:"orders"`
	StopOrders  int                    `json:"stop_orders"`
}

// Spread is the best ask minus the best bid, if both sides exist.
func (b *Book) Spread() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price.Sub(b.Bids[0].Price), true
}
