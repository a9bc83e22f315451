package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/asset"
	"matchd/domain/balance"
	"matchd/domain/fee"
	"matchd/domain/order"
	"matchd/domain/orderbook"
)

// BalanceReader is the wallet view makers are checked against.
type BalanceReader interface {
	Balance(clientID, assetID string) balance.Balance
}

// Input is everything one match needs. Opposite is never modified.
type Input struct {
	Order      order.Order
	Opposite   *orderbook.Side
	OwnBest    decimal.NullDecimal
	Instrument asset.Instrument
	// Balances, when set, is used to cancel makers that cannot pay a fill.
	Balances BalanceReader

	LowerMidPriceBound decimal.NullDecimal
	UpperMidPriceBound decimal.NullDecimal
	// PriceDeviationThreshold bounds the execution price of market orders.
	PriceDeviationThreshold decimal.NullDecimal

	Date time.Time
}

// Trade is one fill between the taker and a resting order.
type Trade struct {
	ID              string          `json:"id"`
	Index           int             `json:"index"`
	AssetPairID     string          `json:"asset_pair_id"`
	Price           decimal.Decimal `json:"price"`
	Volume          decimal.Decimal `json:"volume"`
	QuoteVolume     decimal.Decimal `json:"quote_volume"`
	TakerOrderID    string          `json:"taker_order_id"`
	TakerExternalID string          `json:"taker_external_id"`
	TakerClientID   string          `json:"taker_client_id"`
	TakerIsBuy      bool            `json:"taker_is_buy"`
	MakerOrderID    string          `json:"maker_order_id"`
	MakerExternalID string          `json:"maker_external_id"`
	MakerClientID   string          `json:"maker_client_id"`
	TakerFees       []fee.Transfer  `json:"taker_fees,omitempty"`
	MakerFees       []fee.Transfer  `json:"maker_fees,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

type Result struct {
	// Order is a copy of the taker carrying its final status, remaining
	// volume and, for market orders, execution price.
	Order  order.Order
	Trades []Trade

	Completed   []*order.LimitOrder
	Cancelled   []*order.LimitOrder
	Uncompleted *order.LimitOrder
	Skipped     []*order.LimitOrder

	OwnCashMovements      []balance.Operation
	OppositeCashMovements []balance.Operation

	// Side is the opposite side after the match.
	Side *orderbook.Side

	MidPrice      decimal.NullDecimal
	MidPriceValid bool
}

func (r *Result) Status() order.Status { return r.Order.Common().Status }

// CashMovements lists the taker's operations followed by the makers'.
func (r *Result) CashMovements() []balance.Operation {
	out := make([]balance.Operation, 0, len(r.OwnCashMovements)+len(r.OppositeCashMovements))
	out = append(out, r.OwnCashMovements...)
	return append(out, r.OppositeCashMovements...)
}
