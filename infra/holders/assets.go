package holders

import (
	"sync"

	"matchd/domain/asset"
)

// AssetPairs resolves asset pairs together with their assets.
type AssetPairs struct {
	mu     sync.RWMutex
	assets map[string]asset.Asset
	pairs  map[string]asset.Pair
}

func NewAssetPairs(assets []asset.Asset, pairs []asset.Pair) *AssetPairs {
	h := &AssetPairs{
		assets: make(map[string]asset.Asset, len(assets)),
		pairs:  make(map[string]asset.Pair, len(pairs)),
	}
	for _, a := range assets {
		h.assets[a.ID] = a
	}
	for _, p := range pairs {
		h.pairs[p.ID] = p
	}
	return h
}

func (h *AssetPairs) Asset(id string) (asset.Asset, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.assets[id]
	return a, ok
}

func (h *AssetPairs) AssetPair(id string) (asset.Pair, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pairs[id]
	return p, ok
}

// Instrument is false when the pair or one of its assets is unknown.
func (h *AssetPairs) Instrument(assetPairID string) (asset.Instrument, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pairs[assetPairID]
	if !ok {
		return asset.Instrument{}, false
	}
	base, ok := h.assets[p.BaseAssetID]
	if !ok {
		return asset.Instrument{}, false
	}
	quoting, ok := h.assets[p.QuotingAssetID]
	if !ok {
		return asset.Instrument{}, false
	}
	return asset.Instrument{Pair: p, Base: base, Quoting: quoting}, true
}

// Upsert adds or replaces a pair.
func (h *AssetPairs) Upsert(p asset.Pair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs[p.ID] = p
}
