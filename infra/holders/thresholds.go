package holders

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Thresholds holds the price deviation limits per asset pair.
type Thresholds struct {
	mu     sync.RWMutex
	mid    map[string]decimal.Decimal
	market map[string]decimal.Decimal
}

func NewThresholds() *Thresholds {
	return &Thresholds{
		mid:    make(map[string]decimal.Decimal),
		market: make(map[string]decimal.Decimal),
	}
}

func (t *Thresholds) SetMidPriceDeviation(assetPairID string, v decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mid[assetPairID] = v
}

func (t *Thresholds) SetMarketOrderPriceDeviation(assetPairID string, v decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.market[assetPairID] = v
}

func (t *Thresholds) MidPriceDeviationThreshold(assetPairID string) decimal.NullDecimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.mid[assetPairID]
	return decimal.NullDecimal{Decimal: v, Valid: ok}
}

func (t *Thresholds) MarketOrderPriceDeviationThreshold(assetPairID string) decimal.NullDecimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.market[assetPairID]
	return decimal.NullDecimal{Decimal: v, Valid: ok}
}
