package holders

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/events"
)

// MidPrices keeps a rolling window of observed mid prices per asset pair.
// The reference mid price is the average over the window.
type MidPrices struct {
	mu     sync.RWMutex
	window time.Duration
	prices map[string][]events.MidPrice
}

func NewMidPrices(window time.Duration) *MidPrices {
	return &MidPrices{window: window, prices: make(map[string][]events.MidPrice)}
}

// ReferenceMidPrice is invalid when nothing was observed inside the window.
// Staged prices of the pair not yet committed are averaged in as well.
func (m *MidPrices) ReferenceMidPrice(assetPairID string, asOf time.Time, staged ...events.MidPrice) decimal.NullDecimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from := asOf.Add(-m.window)
	sum, n := decimal.Zero, int64(0)
	for _, set := range [][]events.MidPrice{m.prices[assetPairID], staged} {
		for _, p := range set {
			if p.AssetPairID != assetPairID || p.Timestamp.Before(from) || p.Timestamp.After(asOf) {
				continue
			}
			sum = sum.Add(p.Price)
			n++
		}
	}
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(n)))
}

// Add records committed mid prices and drops the ones that left the window.
func (m *MidPrices) Add(prices ...events.MidPrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range prices {
		list := append(m.prices[p.AssetPairID], p)
		cutoff := p.Timestamp.Add(-m.window)
		i := 0
		for i < len(list) && list[i].Timestamp.Before(cutoff) {
			i++
		}
		m.prices[p.AssetPairID] = list[i:]
	}
}

// Latest returns the most recent mid price of every pair.
func (m *MidPrices) Latest() []events.MidPrice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]events.MidPrice, 0, len(m.prices))
	for _, list := range m.prices {
		if len(list) > 0 {
			out = append(out, list[len(list)-1])
		}
	}
	return out
}
