package holders

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"matchd/domain/asset"
	"matchd/domain/balance"
)

// Seed is the reference data file loaded at start up.
type Seed struct {
	Assets     []asset.Asset   `json:"assets"`
	AssetPairs []asset.Pair    `json:"asset_pairs"`
	Thresholds []ThresholdSeed `json:"thresholds"`
	// Balances are applied only when no persisted state exists.
	Balances []BalanceSeed `json:"balances"`
}

type ThresholdSeed struct {
	AssetPairID               string              `json:"asset_pair_id"`
	MidPriceDeviation         decimal.NullDecimal `json:"mid_price_deviation"`
	MarketOrderPriceDeviation decimal.NullDecimal `json:"market_order_price_deviation"`
}

type BalanceSeed struct {
	ClientID string          `json:"client_id"`
	AssetID  string          `json:"asset_id"`
	Total    decimal.Decimal `json:"total"`
}

func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "decode seed file %s", path)
	}
	return &s, nil
}

func (s *Seed) AssetPairHolder() *AssetPairs {
	return NewAssetPairs(s.Assets, s.AssetPairs)
}

func (s *Seed) ThresholdHolder() *Thresholds {
	t := NewThresholds()
	for _, th := range s.Thresholds {
		if th.MidPriceDeviation.Valid {
			t.SetMidPriceDeviation(th.AssetPairID, th.MidPriceDeviation.Decimal)
		}
		if th.MarketOrderPriceDeviation.Valid {
			t.SetMarketOrderPriceDeviation(th.AssetPairID, th.MarketOrderPriceDeviation.Decimal)
		}
	}
	return t
}

func (s *Seed) InitialBalances() map[balance.Key]balance.Balance {
	out := make(map[balance.Key]balance.Balance, len(s.Balances))
	for _, b := range s.Balances {
		out[balance.Key{ClientID: b.ClientID, AssetID: b.AssetID}] = balance.Balance{Total: b.Total, Reserved: decimal.Zero}
	}
	return out
}
