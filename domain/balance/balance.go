// Package balance models per client, per asset funds and the wallet
// operations that change them.
package balance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Balance struct {
	Total    decimal.Decimal `json:"total"`
	Reserved decimal.Decimal `json:"reserved"`
}

func (b Balance) Available() decimal.Decimal { return b.Total.Sub(b.Reserved) }

// Operation changes one (client, asset) balance. Amount moves Total,
// Reserved moves the reservation.
type Operation struct {
	ClientID string          `json:"client_id"`
	AssetID  string          `json:"asset_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reserved decimal.Decimal `json:"reserved"`
}

func (op Operation) IsEmpty() bool { return op.Amount.IsZero() && op.Reserved.IsZero() }

// Key identifies a balance.
type Key struct {
	ClientID string
	AssetID  string
}

func (op Operation) Key() Key { return Key{ClientID: op.ClientID, AssetID: op.AssetID} }

// Apply returns the balance after op. A releasing operation settles against
// the reservation: its reservation is clamped into [0, Total]. Any other
// operation must keep the available balance non-negative.
func (b Balance) Apply(op Operation) (Balance, error) {
	next := Balance{
		Total:    b.Total.Add(op.Amount),
		Reserved: b.Reserved.Add(op.Reserved),
	}
	if next.Total.IsNegative() {
		return b, fmt.Errorf("total %s below zero", next.Total)
	}
	if op.Reserved.IsNegative() {
		if next.Reserved.IsNegative() {
			next.Reserved = decimal.Zero
		}
		if next.Reserved.GreaterThan(next.Total) {
			next.Reserved = next.Total
		}
		return next, nil
	}
	if next.Reserved.GreaterThan(next.Total) {
		return b, fmt.Errorf("reserved %s exceeds total %s", next.Reserved, next.Total)
	}
	return next, nil
}
