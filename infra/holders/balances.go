// Package holders keeps the canonical in-memory reference data and
// balances. Only the commit step writes to them; readers may call from any
// goroutine.
package holders

import (
	"sort"
	"sync"

	"matchd/domain/balance"
)

type Balances struct {
	mu       sync.RWMutex
	balances map[balance.Key]balance.Balance
}

func NewBalances() *Balances {
	return &Balances{balances: make(map[balance.Key]balance.Balance)}
}

// Balance returns the zero balance for unknown keys.
func (b *Balances) Balance(clientID, assetID string) balance.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[balance.Key{ClientID: clientID, AssetID: assetID}]
}

// Set replaces a batch of balances at once.
func (b *Balances) Set(changes map[balance.Key]balance.Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range changes {
		b.balances[k] = v
	}
}

// ClientBalances returns a client's balances keyed by asset.
func (b *Balances) ClientBalances(clientID string) map[string]balance.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]balance.Balance)
	for k, v := range b.balances {
		if k.ClientID == clientID {
			out[k.AssetID] = v
		}
	}
	return out
}

func (b *Balances) Keys() []balance.Key {
	b.mu.RLock()
	keys := make([]balance.Key, 0, len(b.balances))
	for k := range b.balances {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ClientID != keys[j].ClientID {
			return keys[i].ClientID < keys[j].ClientID
		}
		return keys[i].AssetID < keys[j].AssetID
	})
	return keys
}
