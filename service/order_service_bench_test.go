package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/infra/wal/entry"
)

// BenchmarkPlaceOrder_Core runs crossing limit orders through the full
// path: entry WAL, pipeline, pebble commit.
func BenchmarkPlaceOrder_Core(b *testing.B) {
	h := newHarnessWith(b, harnessConfig{persister: openExitStore(b), log: zap.NewNop()})
	h.deposit("bob", "BTC", "1000000000")
	h.deposit("alice", "USD", "100000000000")

	wal, err := entry.Open(entry.Config{Dir: b.TempDir(), SegmentSize: 64 << 20})
	if err != nil {
		b.Fatal(err)
	}
	defer wal.Close()

	p := NewProcessor(h.svc, wal, 1024, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	sell := &LimitOrderRequest{ClientID: "bob", AssetPairID: pair, Volume: d("-1"), Price: d("100")}
	buy := &LimitOrderRequest{ClientID: "alice", AssetPairID: pair, Volume: d("1"), Price: d("100")}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			body := *sell
			if i%2 == 1 {
				body = *buy
			}
			i++
			resp, err := p.Submit(context.Background(), &Request{Type: events.MessageLimitOrder, Limit: &body})
			if err != nil {
				b.Fatal(err)
			}
			if !resp.OK() {
				b.Fatalf("status %s: %s", resp.Status, resp.Reason)
			}
		}
	})
}
