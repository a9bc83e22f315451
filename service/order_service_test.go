package service

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
	"matchd/service/execution"
)

func TestMarketOrderOnEmptyBookHasNoLiquidity(t *testing.T) {
	h := newHarness(t)
	h.deposit("alice", "USD", "10000")

	resp := h.market("alice", "10")

	assert.Equal(t, StatusNoLiquidity, resp.Status)
	assert.Equal(t, order.NoLiquidity, resp.OrderStatus)
	assert.False(t, resp.Price.Valid)
	assert.Zero(t, h.book().Len())

	data := h.persister.last()
	require.NotNil(t, data, "a rejected market order is still committed")
	assert.Empty(t, data.Trades)
	require.Len(t, data.OrderEvents, 1)
	assert.Equal(t, order.NoLiquidity, data.OrderEvents[0].Market.Status)
	assertDecimal(t, "10000", h.balance("alice", "USD").Total)
}

func TestMarketOrderConsumesRestingAsk(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "5")
	h.deposit("alice", "USD", "1000")
	ask := h.mustOK(h.limit("bob", "-5", "100"))
	assertDecimal(t, "5", h.balance("bob", "BTC").Reserved)

	resp := h.mustOK(h.market("alice", "5"))

	assert.Equal(t, order.Matched, resp.OrderStatus)
	require.True(t, resp.Price.Valid)
	assertDecimal(t, "100", resp.Price.Decimal)

	data := h.persister.last()
	require.Len(t, data.Trades, 1)
	assertDecimal(t, "100", data.Trades[0].Price)
	assertDecimal(t, "5", data.Trades[0].Volume)
	assert.Equal(t, ask.OrderID, data.Trades[0].MakerOrderID)

	_, ok := h.book().Get(ask.OrderID)
	assert.False(t, ok, "fully consumed maker leaves the book")

	assertDecimal(t, "500", h.balance("alice", "USD").Total)
	assertDecimal(t, "5", h.balance("alice", "BTC").Total)
	assertDecimal(t, "0", h.balance("bob", "BTC").Total)
	assertDecimal(t, "0", h.balance("bob", "BTC").Reserved)
	assertDecimal(t, "500", h.balance("bob", "USD").Total)
}

// Book: bids 5@91 and 10@80, ask 3@97, so the mid price is 94. Selling
// 6@80 would leave bids 9@80 against the ask, a mid price of 88.5.
func seedMidPriceBook(t *testing.T) *harness {
	h := newHarness(t)
	h.deposit("bob", "USD", "2000")
	h.deposit("carol", "BTC", "3")
	h.deposit("dave", "BTC", "6")
	h.mustOK(h.limit("bob", "5", "91"))
	h.mustOK(h.limit("bob", "10", "80"))
	h.mustOK(h.limit("carol", "-3", "97"))

	// Leave the seeding mid prices behind the reference window.
	h.now = h.now.Add(2 * time.Hour)
	return h
}

func setReference(h *harness, mid, threshold string) {
	h.midPrices.Add(events.MidPrice{AssetPairID: pair, Price: d(mid), Timestamp: h.now.Add(-time.Minute)})
	h.thresholds.SetMidPriceDeviation(pair, d(threshold))
}

func TestLimitOrderRejectedWhenResultingMidPriceDeviates(t *testing.T) {
	h := seedMidPriceBook(t)
	setReference(h, "92.5", "0.02") // bounds [90.65, 94.35]

	before := h.book()
	levels := h.levels()
	seqBefore := h.seq.Current()

	resp := h.limit("dave", "-6", "80")

	assert.Equal(t, StatusTooHighMidPriceDeviation, resp.Status)
	assert.Equal(t, order.TooHighMidPriceDeviation, resp.OrderStatus)

	assert.Same(t, before, h.book(), "canonical book was not replaced")
	assert.Equal(t, levels, h.levels())
	assertDecimal(t, "6", h.balance("dave", "BTC").Total)
	assertDecimal(t, "0", h.balance("dave", "USD").Total)
	assertDecimal(t, "0", h.balance("bob", "BTC").Total)

	data := h.persister.last()
	assert.Empty(t, data.Trades)
	assert.Empty(t, data.Balances)
	require.Len(t, data.OrderEvents, 1)
	rejected := data.OrderEvents[0].Limit
	assert.Equal(t, order.TooHighMidPriceDeviation, rejected.Status)
	assertDecimal(t, "-6", rejected.RemainingVolume, "rejection, not a partial fill")

	seqAfter := h.seq.Current()
	assert.Equal(t, seqBefore.Get(events.Execution)+1, seqAfter.Get(events.Execution))
	assert.Equal(t, seqBefore.Get(events.Trades), seqAfter.Get(events.Trades))
}

func TestLimitOrderRejectedWhenBookAlreadyOutOfRange(t *testing.T) {
	h := seedMidPriceBook(t)
	setReference(h, "80", "0.02") // bounds [78.4, 81.6], book mid is 94

	levels := h.levels()
	resp := h.limit("dave", "-1", "97")

	assert.Equal(t, StatusTooHighMidPriceDeviation, resp.Status)
	assert.Equal(t, levels, h.levels())
	assertDecimal(t, "0", h.balance("dave", "BTC").Reserved)
}

func TestLimitOrderWithinBoundsIsAccepted(t *testing.T) {
	h := seedMidPriceBook(t)
	setReference(h, "93", "0.05") // bounds [88.35, 97.65]

	resp := h.mustOK(h.limit("dave", "-2", "91"))

	assert.Equal(t, order.Matched, resp.OrderStatus)
	assert.Equal(t, "bids=[{91 3 1} {80 10 1}] asks=[{97 3 1}]", h.levels())
	assertDecimal(t, "182", h.balance("dave", "USD").Total)
}

func TestEarlierOrderAtSamePriceFillsFirst(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "3")
	h.deposit("carol", "BTC", "3")
	h.deposit("alice", "USD", "150")
	first := h.mustOK(h.limit("bob", "-3", "50"))
	second := h.mustOK(h.limit("carol", "-3", "50"))

	resp := h.mustOK(h.limit("alice", "3", "50"))
	assert.Equal(t, order.Matched, resp.OrderStatus)

	_, ok := h.book().Get(first.OrderID)
	assert.False(t, ok)
	rest, ok := h.book().Get(second.OrderID)
	require.True(t, ok)
	assertDecimal(t, "-3", rest.RemainingVolume)
	assert.Equal(t, order.InOrderBook, rest.Status)
}

func TestBetterPriceFillsFirstRegardlessOfTime(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "3")
	h.deposit("carol", "BTC", "3")
	h.deposit("alice", "USD", "1000")
	h.mustOK(h.limit("bob", "-3", "51"))
	better := h.mustOK(h.limit("carol", "-3", "50"))

	h.mustOK(h.limit("alice", "3", "51"))

	data := h.persister.last()
	require.Len(t, data.Trades, 1)
	assert.Equal(t, better.OrderID, data.Trades[0].MakerOrderID)
	assertDecimal(t, "50", data.Trades[0].Price)
}

func TestRestingRemainderReservesFunds(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "1")
	h.deposit("alice", "USD", "1000")
	h.mustOK(h.limit("bob", "-1", "100"))

	resp := h.mustOK(h.limit("alice", "3", "101"))

	assert.Equal(t, order.PartiallyMatched, resp.OrderStatus)
	taker, ok := h.book().Get(resp.OrderID)
	require.True(t, ok)
	assertDecimal(t, "2", taker.RemainingVolume)
	assertDecimal(t, "900", h.balance("alice", "USD").Total)
	assertDecimal(t, "202", h.balance("alice", "USD").Reserved)
}

func TestTradesConserveEveryAsset(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "4")
	h.deposit("carol", "BTC", "4")
	h.deposit("alice", "USD", "10000")
	h.mustOK(h.limit("bob", "-1.5", "100.5"))
	h.mustOK(h.limit("carol", "-2.25", "101.25"))

	h.mustOK(h.limit("alice", "3", "102"))

	data := h.persister.last()
	sums := map[string]decimal.Decimal{}
	for _, ch := range data.Balances {
		sums[ch.AssetID] = sums[ch.AssetID].Add(ch.After.Total.Sub(ch.Before.Total))
	}
	for assetID, sum := range sums {
		assert.True(t, sum.IsZero(), "%s moved %s in total", assetID, sum)
	}
}

func TestSelfCrossIsRejected(t *testing.T) {
	h := newHarness(t)
	h.deposit("alice", "BTC", "1")
	h.deposit("alice", "USD", "1000")
	h.mustOK(h.limit("alice", "-1", "100"))

	resp := h.limit("alice", "1", "100")

	assert.Equal(t, StatusLeadToNegativeSpread, resp.Status)
	assert.Equal(t, "bids=[] asks=[{100 1 1}]", h.levels())
	assertDecimal(t, "0", h.balance("alice", "USD").Reserved)
}

func TestMarketOrderWithoutFundsLeavesBookUntouched(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "5")
	h.deposit("alice", "USD", "100")
	ask := h.mustOK(h.limit("bob", "-5", "100"))
	levels := h.levels()

	resp := h.market("alice", "5")

	assert.Equal(t, StatusNotEnoughFunds, resp.Status)
	assert.Equal(t, order.NotEnoughFunds, resp.OrderStatus)
	assert.Equal(t, levels, h.levels())
	_, ok := h.book().Get(ask.OrderID)
	assert.True(t, ok)
	assertDecimal(t, "100", h.balance("alice", "USD").Total)
	assertDecimal(t, "5", h.balance("bob", "BTC").Reserved)

	data := h.persister.last()
	assert.Empty(t, data.Trades)
	require.Len(t, data.OrderEvents, 1)
	assert.Equal(t, order.NotEnoughFunds, data.OrderEvents[0].Market.Status)
}

func TestValidationFailureBypassesSequencing(t *testing.T) {
	h := newHarness(t)

	resp := h.limit("alice", "1", "100")

	assert.Equal(t, StatusNotEnoughFunds, resp.Status)
	assert.Zero(t, h.persister.count())
	assert.Equal(t, events.Sequence{}, h.seq.Current())
	require.Len(t, h.notifier.rejections, 1)
	r := h.notifier.rejections[0]
	assert.Equal(t, resp.MessageID, r.MessageID)
	assert.Equal(t, order.NotEnoughFunds, r.Event.Limit.Status)
	assert.NotEmpty(t, r.Reason)
}

func TestUnknownAssetPair(t *testing.T) {
	h := newHarness(t)
	resp := h.handle(&Request{Type: events.MessageLimitOrder, Limit: &LimitOrderRequest{
		ClientID: "alice", AssetPairID: "ETHUSD", Volume: d("1"), Price: d("1"),
	}})

	assert.Equal(t, StatusUnknownAsset, resp.Status)
	assert.Len(t, h.notifier.rejections, 1)
	assert.Zero(t, h.persister.count())
}

func TestMissingBodyIsBadRequest(t *testing.T) {
	h := newHarness(t)
	resp := h.handle(&Request{Type: events.MessageMarketOrder})
	assert.Equal(t, StatusBadRequest, resp.Status)
}

func TestPersistenceFailureLeavesCanonicalStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "3")
	h.deposit("alice", "USD", "1000")
	ask := h.mustOK(h.limit("bob", "-3", "50"))
	levels := h.levels()
	seq := h.seq.Current()
	sent := len(h.publisher.sent)

	h.persister.fail = true
	resp := h.limit("alice", "3", "50")

	assert.Equal(t, StatusRuntime, resp.Status)
	assert.Equal(t, "Unable to save result data", resp.Reason)
	assert.Equal(t, levels, h.levels())
	o, ok := h.book().Get(ask.OrderID)
	require.True(t, ok)
	assertDecimal(t, "-3", o.RemainingVolume)
	assertDecimal(t, "1000", h.balance("alice", "USD").Total)
	assertDecimal(t, "3", h.balance("bob", "BTC").Reserved)
	assert.Equal(t, seq, h.seq.Current())
	assert.Len(t, h.publisher.sent, sent)

	// The same intent succeeds once persistence recovers.
	h.persister.fail = false
	h.mustOK(h.limit("alice", "3", "50"))
	assert.Equal(t, seq.Get(events.Execution)+1, h.seq.Current().Get(events.Execution))
}

func TestApplyTwiceIsRefused(t *testing.T) {
	h := newHarness(t)
	h.deposit("alice", "USD", "100")

	ec := h.factory.New(execution.Meta{MessageID: "m1", Type: events.MessageCancelOrders, Date: h.now})
	require.NoError(t, ec.ApplyOperations([]balance.Operation{{ClientID: "alice", AssetID: "USD", Reserved: d("10")}}))

	data, err := h.applier.Apply(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), data.Sequence.Get(events.Execution))
	assert.Equal(t, uint64(1), data.Sequence.Get(events.Balances))

	_, err = h.applier.Apply(context.Background(), ec)
	require.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.Equal(t, uint64(1), h.seq.Current().Get(events.Execution))
	assert.Equal(t, 1, h.persister.count())
	assertDecimal(t, "10", h.balance("alice", "USD").Reserved)
}

func TestSequencesFollowProducedCategories(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "BTC", "1")
	h.deposit("alice", "USD", "100")

	h.mustOK(h.limit("bob", "-1", "100"))
	first := h.persister.last().Sequence
	assert.Equal(t, uint64(1), first.Get(events.Execution))
	assert.Zero(t, first.Get(events.Trades))

	h.mustOK(h.limit("alice", "1", "100"))
	second := h.persister.last().Sequence
	assert.Equal(t, uint64(2), second.Get(events.Execution))
	assert.Equal(t, uint64(1), second.Get(events.Trades))
	assert.Equal(t, uint64(2), second.Get(events.Balances))
	assert.Len(t, h.publisher.sent, 2)
}

func TestPartialFillsKeepBuyerFullyReserved(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "USD", "0.03")
	h.deposit("alice", "BTC", "0.5")
	h.deposit("carol", "BTC", "0.5")
	h.mustOK(h.limit("bob", "1", "0.03"))

	h.mustOK(h.limit("alice", "-0.5", "0.03"))
	assertDecimal(t, "0.02", h.balance("bob", "USD").Total)
	assertDecimal(t, "0.02", h.balance("bob", "USD").Reserved)

	resp := h.mustOK(h.limit("carol", "-0.5", "0.03"))
	assert.Equal(t, order.Matched, resp.OrderStatus)

	assert.Equal(t, "bids=[] asks=[]", h.levels())
	assertDecimal(t, "0", h.balance("bob", "USD").Total)
	assertDecimal(t, "0", h.balance("bob", "USD").Reserved)
	assertDecimal(t, "1", h.balance("bob", "BTC").Total)
	assertDecimal(t, "0.01", h.balance("alice", "USD").Total)
	assertDecimal(t, "0.02", h.balance("carol", "USD").Total)
}

func TestUnderfundedMakerDoesNotBlockTakers(t *testing.T) {
	h := newHarness(t)
	h.deposit("bob", "USD", "100")
	h.deposit("dan", "USD", "99")
	h.deposit("alice", "BTC", "1")
	short := h.mustOK(h.limit("bob", "1", "100"))
	h.mustOK(h.limit("dan", "1", "99"))

	// bob's wallet shrinks below what his resting bid needs.
	h.balances.Set(map[balance.Key]balance.Balance{
		{ClientID: "bob", AssetID: "USD"}: {Total: d("50"), Reserved: d("50")},
	})

	resp := h.mustOK(h.limit("alice", "-1", "99"))
	assert.Equal(t, order.Matched, resp.OrderStatus)

	_, ok := h.book().Get(short.OrderID)
	assert.False(t, ok)
	assert.Equal(t, "bids=[] asks=[]", h.levels())
	assertDecimal(t, "50", h.balance("bob", "USD").Total)
	assertDecimal(t, "0", h.balance("bob", "USD").Reserved)
	assertDecimal(t, "1", h.balance("dan", "BTC").Total)
	assertDecimal(t, "99", h.balance("alice", "USD").Total)

	var cancelled *order.LimitOrder
	for _, ev := range h.persister.last().OrderEvents {
		if ev.Limit != nil && ev.Limit.ID == short.OrderID {
			cancelled = ev.Limit
		}
	}
	require.NotNil(t, cancelled)
	assert.Equal(t, order.NotEnoughFunds, cancelled.Status)
}

func TestBoundsIncludeStagedMidPrice(t *testing.T) {
	h := newHarness(t)
	setReference(h, "100", "0.1")

	ec := h.svc.newContext(h.envelope(), events.MessageLimitOrder)
	lower, upper := h.svc.bounds(ec, pair)
	assertDecimal(t, "90", lower.Decimal)
	assertDecimal(t, "110", upper.Decimal)

	ec.SetMidPrice(events.MidPrice{AssetPairID: pair, Price: d("120"), Timestamp: ec.Date})
	lower, upper = h.svc.bounds(ec, pair)
	assertDecimal(t, "99", lower.Decimal)
	assertDecimal(t, "121", upper.Decimal)
}

func TestRestingDuplicateOrderIDIsRejected(t *testing.T) {
	h := newHarness(t)
	h.deposit("alice", "USD", "1000")

	send := func(price string) Response {
		req := &Request{Type: events.MessageLimitOrder, Limit: h.limitRequest("alice", "1", price)}
		req.Envelope = Envelope{MessageID: "dup", Date: h.now}
		return h.svc.Handle(context.Background(), req)
	}
	h.mustOK(send("90"))

	resp := send("91")
	assert.Equal(t, order.Rejected, resp.OrderStatus)
	assert.Equal(t, "bids=[{90 1 1}] asks=[]", h.levels())
	assertDecimal(t, "90", h.balance("alice", "USD").Reserved)
}
