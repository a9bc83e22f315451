package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func TestFillKeepsSign(t *testing.T) {
	o := &LimitOrder{Base: Base{Volume: d("-5"), RemainingVolume: d("-5")}, Price: d("10")}

	require.NoError(t, o.Fill(d("2")))
	assert.True(t, o.RemainingVolume.Equal(d("-3")))
	assert.True(t, o.Filled().Equal(d("2")))

	assert.ErrorIs(t, o.Fill(d("4")), ErrOverfill)
	assert.True(t, o.RemainingVolume.Equal(d("-3")), "failed fill must not change the order")
}

func TestUpdateStatusNeverReturnsToProcessing(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := &LimitOrder{}

	require.NoError(t, o.UpdateStatus(InOrderBook, at))
	assert.Equal(t, at, o.StatusDate)
	assert.ErrorIs(t, o.UpdateStatus(Processing, at), ErrBackToProcessing)
	assert.Equal(t, InOrderBook, o.Status)
}

func TestReservedVolume(t *testing.T) {
	buy := &LimitOrder{Base: Base{Volume: d("3"), RemainingVolume: d("2")}, Price: d("1.005")}
	assert.True(t, buy.ReservedVolume(2).Equal(d("2.01")), buy.ReservedVolume(2).String())

	sell := &LimitOrder{Base: Base{Volume: d("-3"), RemainingVolume: d("-2")}, Price: d("1.005")}
	assert.True(t, sell.ReservedVolume(2).Equal(d("2")))

	stop := &StopOrder{
		Base:       Base{Volume: d("2"), RemainingVolume: d("2")},
		LowerPrice: nd("9"),
		UpperPrice: nd("11"),
	}
	assert.True(t, stop.ReservedVolume(2).Equal(d("22")))
}

func TestStopTriggerPrice(t *testing.T) {
	stop := &StopOrder{
		Base:            Base{Volume: d("1"), RemainingVolume: d("1")},
		LowerLimitPrice: nd("90"),
		LowerPrice:      nd("89"),
		UpperLimitPrice: nd("110"),
		UpperPrice:      nd("111"),
	}

	cases := []struct {
		best  string
		price string
		ok    bool
	}{
		{best: "0"},
		{best: "100"},
		{best: "90", price: "89", ok: true},
		{best: "80", price: "89", ok: true},
		{best: "110", price: "111", ok: true},
	}
	for _, tc := range cases {
		p, ok := stop.TriggerPrice(d(tc.best))
		require.Equal(t, tc.ok, ok, tc.best)
		if ok {
			assert.True(t, p.Equal(d(tc.price)), tc.best)
		}
	}
}

func TestCopyIsIndependent(t *testing.T) {
	o := &LimitOrder{Base: Base{ID: "a", Volume: d("1"), RemainingVolume: d("1")}, Price: d("1")}
	c := o.Copy()
	require.NoError(t, c.Fill(d("1")))
	assert.True(t, o.RemainingVolume.Equal(d("1")))
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(TooHighMidPriceDeviation)
	require.NoError(t, err)
	assert.Equal(t, `"TooHighMidPriceDeviation"`, string(b))

	var s Status
	require.NoError(t, json.Unmarshal(b, &s))
	assert.Equal(t, TooHighMidPriceDeviation, s)
	assert.True(t, s.IsRejection())
	assert.False(t, Matched.IsRejection())
}
