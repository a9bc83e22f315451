package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchd/domain/order"
)

func stop(id, volume string, lowerLimit, lower, upperLimit, upper string, at time.Time) *order.StopOrder {
	nd := func(s string) decimal.NullDecimal {
		if s == "" {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d(s))
	}
	return &order.StopOrder{
		Base: order.Base{
			ID:              id,
			AssetPairID:     "BTCUSD",
			ClientID:        "c1",
			Volume:          d(volume),
			RemainingVolume: d(volume),
			Status:          order.Pending,
			Registered:      at,
		},
		LowerLimitPrice: nd(lowerLimit),
		LowerPrice:      nd(lower),
		UpperLimitPrice: nd(upperLimit),
		UpperPrice:      nd(upper),
	}
}

func TestStopBookTriggered(t *testing.T) {
	sb := NewStopBook("BTCUSD")
	require.NoError(t, sb.Insert(stop("sell-low", "-1", "90", "89", "", "", t0)))
	require.NoError(t, sb.Insert(stop("buy-high", "1", "", "", "110", "111", t0.Add(time.Second))))

	_, _, ok := sb.Triggered(d("100"), d("101"))
	assert.False(t, ok)

	o, price, ok := sb.Triggered(d("90"), d("101"))
	require.True(t, ok)
	assert.Equal(t, "sell-low", o.ID)
	assert.True(t, price.Equal(d("89")))

	o, price, ok = sb.Triggered(d("100"), d("115"))
	require.True(t, ok)
	assert.Equal(t, "buy-high", o.ID)
	assert.True(t, price.Equal(d("111")))

	_, _, ok = sb.Triggered(decimal.Zero, decimal.Zero)
	assert.False(t, ok, "empty sides never trigger")
}

func TestStopBookRegistrationOrder(t *testing.T) {
	sb := NewStopBook("BTCUSD")
	require.NoError(t, sb.Insert(stop("late", "-1", "90", "89", "", "", t0.Add(time.Second))))
	require.NoError(t, sb.Insert(stop("early", "-1", "95", "94", "", "", t0)))

	o, _, ok := sb.Triggered(d("80"), d("101"))
	require.True(t, ok)
	assert.Equal(t, "early", o.ID)
}

func TestStopBookCloneAndRemove(t *testing.T) {
	sb := NewStopBook("BTCUSD")
	require.NoError(t, sb.Insert(stop("a", "-1", "90", "89", "", "", t0)))
	assert.ErrorIs(t, sb.Insert(stop("a", "-1", "90", "89", "", "", t0)), ErrDuplicateOrder)

	c := sb.Clone()
	_, ok := c.Remove("a")
	require.True(t, ok)
	_, ok = c.Remove("a")
	assert.False(t, ok)

	assert.Equal(t, 1, sb.Len())
	assert.Zero(t, c.Len())
	assert.Len(t, sb.OrdersOf("c1", false), 1)
}
