package holders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchd/domain/balance"
	"matchd/domain/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const seedJSON = `{
  "assets": [{"id": "BTC", "accuracy": 8}, {"id": "USD", "accuracy": 2}],
  "asset_pairs": [{"id": "BTCUSD", "base_asset_id": "BTC", "quoting_asset_id": "USD", "accuracy": 2, "min_volume": "0.0001", "max_value": null}],
  "thresholds": [{"asset_pair_id": "BTCUSD", "mid_price_deviation": "0.1", "market_order_price_deviation": null}],
  "balances": [{"client_id": "c1", "asset_id": "USD", "total": "1000"}]
}`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	inst, ok := seed.AssetPairHolder().Instrument("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, int32(8), inst.Base.Accuracy)
	assert.True(t, inst.Pair.MinVolume.Equal(d("0.0001")))
	assert.False(t, inst.Pair.MaxValue.Valid)

	th := seed.ThresholdHolder()
	assert.True(t, th.MidPriceDeviationThreshold("BTCUSD").Decimal.Equal(d("0.1")))
	assert.False(t, th.MarketOrderPriceDeviationThreshold("BTCUSD").Valid)

	b := seed.InitialBalances()[balance.Key{ClientID: "c1", AssetID: "USD"}]
	assert.True(t, b.Total.Equal(d("1000")))
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestInstrumentNeedsBothAssets(t *testing.T) {
	h := NewAssetPairs(nil, nil)
	_, ok := h.Instrument("BTCUSD")
	assert.False(t, ok)
}

func TestBalances(t *testing.T) {
	b := NewBalances()
	assert.True(t, b.Balance("c1", "USD").Total.IsZero())

	b.Set(map[balance.Key]balance.Balance{
		{ClientID: "c1", AssetID: "USD"}: {Total: d("10"), Reserved: d("1")},
		{ClientID: "c2", AssetID: "BTC"}: {Total: d("2")},
	})
	assert.True(t, b.Balance("c1", "USD").Available().Equal(d("9")))
	assert.Len(t, b.ClientBalances("c1"), 1)
	assert.Equal(t, []balance.Key{{ClientID: "c1", AssetID: "USD"}, {ClientID: "c2", AssetID: "BTC"}}, b.Keys())
}

func TestReferenceMidPriceWindow(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMidPrices(time.Minute)

	assert.False(t, m.ReferenceMidPrice("BTCUSD", t0).Valid)

	m.Add(
		events.MidPrice{AssetPairID: "BTCUSD", Price: d("100"), Timestamp: t0},
		events.MidPrice{AssetPairID: "BTCUSD", Price: d("110"), Timestamp: t0.Add(30 * time.Second)},
	)
	ref := m.ReferenceMidPrice("BTCUSD", t0.Add(40*time.Second))
	require.True(t, ref.Valid)
	assert.True(t, ref.Decimal.Equal(d("105")))

	ref = m.ReferenceMidPrice("BTCUSD", t0.Add(80*time.Second))
	require.True(t, ref.Valid)
	assert.True(t, ref.Decimal.Equal(d("110")))

	m.Add(events.MidPrice{AssetPairID: "BTCUSD", Price: d("120"), Timestamp: t0.Add(2 * time.Minute)})
	assert.Len(t, m.Latest(), 1)
	assert.True(t, m.Latest()[0].Price.Equal(d("120")))
}

func TestReferenceMidPriceIncludesStaged(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMidPrices(time.Minute)
	m.Add(events.MidPrice{AssetPairID: "BTCUSD", Price: d("100"), Timestamp: t0})

	ref := m.ReferenceMidPrice("BTCUSD", t0.Add(time.Second),
		events.MidPrice{AssetPairID: "BTCUSD", Price: d("110"), Timestamp: t0.Add(time.Second)},
		events.MidPrice{AssetPairID: "ETHUSD", Price: d("5"), Timestamp: t0.Add(time.Second)},
	)
	require.True(t, ref.Valid)
	assert.True(t, ref.Decimal.Equal(d("105")))
	assert.Len(t, m.Latest(), 1, "staged prices are not recorded")
}
