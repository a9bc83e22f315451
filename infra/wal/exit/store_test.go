package exit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/order"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func limitOrder(id string, volume, price int64) *order.LimitOrder {
	return &order.LimitOrder{
		Base: order.Base{
			ID:              id,
			AssetPairID:     "BTCUSD",
			ClientID:        "alice",
			Volume:          decimal.NewFromInt(volume),
			RemainingVolume: decimal.NewFromInt(volume),
			Status:          order.InOrderBook,
			RegSeq:          7,
		},
		Price: decimal.NewFromInt(price),
	}
}

func executionData(seq uint64, entrySeq uint64) *events.ExecutionData {
	d := &events.ExecutionData{
		MessageID: "m1",
		EntrySeq:  entrySeq,
		Date:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	d.Sequence[events.Execution] = seq
	return d
}

func TestPersistAndLoad(t *testing.T) {
	s := openStore(t)

	d := executionData(1, 10)
	d.Sequence[events.Balances] = 4
	d.Orders = []events.OrderChange{{Order: limitOrder("o1", 2, 100)}}
	d.StopOrders = []events.StopOrderChange{{Order: &order.StopOrder{Base: order.Base{ID: "s1", AssetPairID: "BTCUSD"}}}}
	d.Balances = []events.BalanceChange{{
		ClientID: "alice", AssetID: "USD",
		After: balance.Balance{Total: decimal.NewFromInt(1000), Reserved: decimal.NewFromInt(200)},
	}}
	d.MidPrices = []events.MidPrice{{AssetPairID: "BTCUSD", Price: decimal.RequireFromString("99.5"), Timestamp: d.Date}}
	require.NoError(t, s.Persist(context.Background(), d))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "o1", snap.Orders[0].ID)
	assert.Equal(t, uint64(7), snap.Orders[0].RegSeq)
	assert.True(t, snap.Orders[0].Price.Equal(decimal.NewFromInt(100)))
	require.Len(t, snap.Stops, 1)

	bal := snap.Balances[balance.Key{ClientID: "alice", AssetID: "USD"}]
	assert.True(t, bal.Reserved.Equal(decimal.NewFromInt(200)))
	require.Len(t, snap.MidPrices, 1)
	assert.Equal(t, uint64(1), snap.Sequence.Get(events.Execution))
	assert.Equal(t, uint64(4), snap.Sequence.Get(events.Balances))
	assert.Equal(t, uint64(10), snap.EntrySeq)

	// Removal and a sequence category missing from the next message.
	d2 := executionData(2, 11)
	d2.Orders = []events.OrderChange{{Order: limitOrder("o1", 2, 100), Removed: true}}
	require.NoError(t, s.Persist(context.Background(), d2))

	snap, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Orders)
	assert.Equal(t, uint64(2), snap.Sequence.Get(events.Execution))
	assert.Equal(t, uint64(4), snap.Sequence.Get(events.Balances))

	last, err := s.LastEntrySeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), last)
}

func TestPersistRespectsCancelledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Persist(ctx, executionData(1, 1)), context.Canceled)

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Zero(t, snap.Sequence.Get(events.Execution))
}

func TestOutboxLifecycle(t *testing.T) {
	s := openStore(t)
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, s.Persist(context.Background(), executionData(seq, seq)))
	}

	var pending []uint64
	require.NoError(t, s.ScanPending(0, func(r OutboxRecord) error {
		assert.Equal(t, StateNew, r.State)
		assert.Equal(t, "m1", r.Data.MessageID)
		pending = append(pending, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, pending)

	require.NoError(t, s.MarkSent(1, 1))
	require.NoError(t, s.MarkAcked(1))
	require.NoError(t, s.MarkFailed(2, 3))

	rec, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(3), rec.Retries)
	assert.NotZero(t, rec.LastAttempt)

	pending = pending[:0]
	require.NoError(t, s.ScanPending(1, func(r OutboxRecord) error {
		pending = append(pending, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{2}, pending)

	n, err := s.DeleteAckedUpTo(3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get(1)
	assert.Error(t, err)

	n, err = s.DeleteAckedUpTo(3)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ACKED", StateAcked.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
