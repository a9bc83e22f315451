package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"matchd/domain/asset"
	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/orderbook"
	"matchd/domain/validation"
	"matchd/infra/holders"
	"matchd/infra/sequence"
	"matchd/service/execution"
)

const pair = "BTCUSD"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), append([]any{fmt.Sprintf("want %s, got %s", want, got)}, msgAndArgs...)...)
}

// -------------------- Fakes --------------------

type recordingPersister struct {
	mu    sync.Mutex
	fail  bool
	saved []*events.ExecutionData
}

func (p *recordingPersister) Persist(_ context.Context, data *events.ExecutionData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.saved = append(p.saved, data)
	return nil
}

func (p *recordingPersister) last() *events.ExecutionData {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return nil
	}
	return p.saved[len(p.saved)-1]
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []*events.ExecutionData
}

func (p *recordingPublisher) Send(data *events.ExecutionData) {
	p.mu.Lock()
	p.sent = append(p.sent, data)
	p.mu.Unlock()
}

type recordingNotifier struct {
	mu         sync.Mutex
	rejections []events.Rejection
}

func (n *recordingNotifier) NotifyRejected(_ context.Context, r events.Rejection) error {
	n.mu.Lock()
	n.rejections = append(n.rejections, r)
	n.mu.Unlock()
	return nil
}

// -------------------- Harness --------------------

type harness struct {
	t testing.TB

	svc        *OrderService
	applier    *Applier
	factory    *execution.Factory
	books      *orderbook.Registry
	balances   *holders.Balances
	midPrices  *holders.MidPrices
	thresholds *holders.Thresholds
	seq        *sequence.Sequencer

	persister *recordingPersister
	publisher *recordingPublisher
	notifier  *recordingNotifier

	now time.Time
	n   int
}

type harnessConfig struct {
	persister       Persister
	maxCascadeDepth int
	log             *zap.Logger
}

func newHarness(t testing.TB) *harness {
	return newHarnessWith(t, harnessConfig{})
}

func newHarnessWith(t testing.TB, cfg harnessConfig) *harness {
	log := cfg.log
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	instruments := holders.NewAssetPairs(
		[]asset.Asset{{ID: "BTC", Accuracy: 8}, {ID: "USD", Accuracy: 2}},
		[]asset.Pair{{
			ID:             pair,
			BaseAssetID:    "BTC",
			QuotingAssetID: "USD",
			Accuracy:       2,
			MinVolume:      d("0.0001"),
		}},
	)

	h := &harness{
		t:          t,
		books:      orderbook.NewRegistry(),
		balances:   holders.NewBalances(),
		midPrices:  holders.NewMidPrices(time.Hour),
		thresholds: holders.NewThresholds(),
		seq:        sequence.New(events.Sequence{}),
		persister:  &recordingPersister{},
		publisher:  &recordingPublisher{},
		notifier:   &recordingNotifier{},
		now:        t0,
	}
	var persister Persister = h.persister
	if cfg.persister != nil {
		persister = cfg.persister
	}

	h.factory = execution.NewFactory(h.books, h.balances, instruments, 0, log)
	h.applier = NewApplier(h.books, h.balances, h.midPrices, h.seq, persister, h.publisher, nil, log)
	h.svc = NewOrderService(Deps{
		Factory:         h.factory,
		Books:           h.books,
		Validator:       validation.New(instruments),
		Balances:        h.balances,
		Thresholds:      h.thresholds,
		MidPrices:       h.midPrices,
		Applier:         h.applier,
		Notifier:        h.notifier,
		Log:             log,
		MaxCascadeDepth: cfg.maxCascadeDepth,
	})
	return h
}

func (h *harness) envelope() Envelope {
	h.n++
	env := Envelope{MessageID: fmt.Sprintf("m%03d", h.n), Date: h.now}
	h.now = h.now.Add(time.Second)
	return env
}

func (h *harness) handle(req *Request) Response {
	h.t.Helper()
	req.Envelope = h.envelope()
	return h.svc.Handle(context.Background(), req)
}

func (h *harness) limitRequest(client, volume, price string) *LimitOrderRequest {
	return &LimitOrderRequest{
		ExternalID:  fmt.Sprintf("ext-%d", h.n+1),
		ClientID:    client,
		AssetPairID: pair,
		Volume:      d(volume),
		Price:       d(price),
	}
}

// limit places a limit order. Volume is signed: negative sells.
func (h *harness) limit(client, volume, price string) Response {
	h.t.Helper()
	return h.handle(&Request{Type: events.MessageLimitOrder, Limit: h.limitRequest(client, volume, price)})
}

func (h *harness) market(client, volume string) Response {
	h.t.Helper()
	return h.handle(&Request{Type: events.MessageMarketOrder, Market: &MarketOrderRequest{
		ClientID:    client,
		AssetPairID: pair,
		Volume:      d(volume),
	}})
}

// buyStop rests a buy stop triggered once the best ask reaches trigger.
func (h *harness) buyStop(client, volume, trigger, price string) Response {
	h.t.Helper()
	return h.handle(&Request{Type: events.MessageStopOrder, Stop: &StopOrderRequest{
		ClientID:        client,
		AssetPairID:     pair,
		Volume:          d(volume),
		UpperLimitPrice: decimal.NewNullDecimal(d(trigger)),
		UpperPrice:      decimal.NewNullDecimal(d(price)),
	}})
}

func (h *harness) cancel(r *CancelRequest) Response {
	h.t.Helper()
	return h.handle(&Request{Type: events.MessageCancelOrders, Cancel: r})
}

func (h *harness) deposit(client, assetID, amount string) {
	b := h.balances.Balance(client, assetID)
	b.Total = b.Total.Add(d(amount))
	h.balances.Set(map[balance.Key]balance.Balance{{ClientID: client, AssetID: assetID}: b})
}

func (h *harness) balance(client, assetID string) balance.Balance {
	return h.balances.Balance(client, assetID)
}

func (h *harness) book() *orderbook.OrderBook { return h.books.OrderBook(pair) }

func (h *harness) stops() *orderbook.StopBook { return h.books.StopBook(pair) }

// levels renders both sides of the canonical book for comparison.
func (h *harness) levels() string {
	return fmt.Sprintf("bids=%v asks=%v", h.book().Levels(true, 0), h.book().Levels(false, 0))
}

func (h *harness) mustOK(resp Response) Response {
	h.t.Helper()
	if !resp.OK() {
		h.t.Fatalf("message %s: status %s (%s), reason %q", resp.MessageID, resp.Status, resp.OrderStatus, resp.Reason)
	}
	return resp
}

func nullDecimal(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }
