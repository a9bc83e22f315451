package orderbook

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds the canonical books of every instrument. The single
// writer publishes whole books; readers load them without locks.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

type slot struct {
	book  atomic.Pointer[OrderBook]
	stops atomic.Pointer[StopBook]
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

func (r *Registry) lookup(assetPairID string) *slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[assetPairID]
}

func (r *Registry) slotFor(assetPairID string) *slot {
	if s := r.lookup(assetPairID); s != nil {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[assetPairID]
	if !ok {
		s = &slot{}
		r.slots[assetPairID] = s
	}
	return s
}

// OrderBook returns the published book, or an empty one. The result must be
// treated as read-only.
func (r *Registry) OrderBook(assetPairID string) *OrderBook {
	if s := r.lookup(assetPairID); s != nil {
		if b := s.book.Load(); b != nil {
			return b
		}
	}
	return New(assetPairID)
}

func (r *Registry) StopBook(assetPairID string) *StopBook {
	if s := r.lookup(assetPairID); s != nil {
		if b := s.stops.Load(); b != nil {
			return b
		}
	}
	return NewStopBook(assetPairID)
}

// Publish makes b the canonical book. b must not be changed afterwards.
func (r *Registry) Publish(b *OrderBook) {
	r.slotFor(b.AssetPairID()).book.Store(b)
}

func (r *Registry) PublishStops(b *StopBook) {
	r.slotFor(b.AssetPairID()).stops.Store(b)
}

func (r *Registry) AssetPairIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
