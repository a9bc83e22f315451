package service

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"matchd/domain/events"
	"matchd/domain/fee"
	"matchd/domain/order"
)

var ErrBadRequest = errors.New("bad request")

// Envelope is assigned at ingress, before the message is written to the
// entry WAL, so a replay sees the same ids and dates.
type Envelope struct {
	MessageID string    `json:"message_id"`
	RequestID string    `json:"request_id"`
	EntrySeq  uint64    `json:"entry_seq"`
	Date      time.Time `json:"date"`
}

// Request is one inbound message. Exactly one body matching Type is set.
type Request struct {
	Envelope
	Type   events.MessageType  `json:"type"`
	Limit  *LimitOrderRequest  `json:"limit,omitempty"`
	Market *MarketOrderRequest `json:"market,omitempty"`
	Stop   *StopOrderRequest   `json:"stop,omitempty"`
	Cancel *CancelRequest      `json:"cancel,omitempty"`
}

func (r *Request) Validate() error {
	var ok bool
	switch r.Type {
	case events.MessageLimitOrder:
		ok = r.Limit != nil
	case events.MessageMarketOrder:
		ok = r.Market != nil
	case events.MessageStopOrder:
		ok = r.Stop != nil
	case events.MessageCancelOrders:
		ok = r.Cancel != nil
	}
	if !ok {
		return errors.Wrapf(ErrBadRequest, "no body for message type %s", r.Type)
	}
	return nil
}

// Volume is signed in every order request: positive buys, negative sells.
type LimitOrderRequest struct {
	ExternalID  string            `json:"external_id"`
	ClientID    string            `json:"client_id"`
	AssetPairID string            `json:"asset_pair_id"`
	Volume      decimal.Decimal   `json:"volume"`
	Price       decimal.Decimal   `json:"price"`
	Timestamp   time.Time         `json:"timestamp"`
	Fee         *fee.Instruction  `json:"fee,omitempty"`
	Fees        []fee.Instruction `json:"fees,omitempty"`
	// CancelPrevious cancels the client's resting orders on the same side
	// of the pair before this one is matched.
	CancelPrevious bool `json:"cancel_previous"`
}

type MarketOrderRequest struct {
	ExternalID  string            `json:"external_id"`
	ClientID    string            `json:"client_id"`
	AssetPairID string            `json:"asset_pair_id"`
	Volume      decimal.Decimal   `json:"volume"`
	Timestamp   time.Time         `json:"timestamp"`
	Fee         *fee.Instruction  `json:"fee,omitempty"`
	Fees        []fee.Instruction `json:"fees,omitempty"`
}

type StopOrderRequest struct {
	ExternalID      string              `json:"external_id"`
	ClientID        string              `json:"client_id"`
	AssetPairID     string              `json:"asset_pair_id"`
	Volume          decimal.Decimal     `json:"volume"`
	LowerLimitPrice decimal.NullDecimal `json:"lower_limit_price"`
	LowerPrice      decimal.NullDecimal `json:"lower_price"`
	UpperLimitPrice decimal.NullDecimal `json:"upper_limit_price"`
	UpperPrice      decimal.NullDecimal `json:"upper_price"`
	Timestamp       time.Time           `json:"timestamp"`
	Fee             *fee.Instruction    `json:"fee,omitempty"`
	Fees            []fee.Instruction   `json:"fees,omitempty"`
}

// CancelRequest cancels the listed orders of a client, or all of its
// resting orders in AssetPairID (every pair when empty) when OrderIDs is
// empty. IsBuy narrows a cancel-all to one side.
type CancelRequest struct {
	ClientID    string   `json:"client_id"`
	AssetPairID string   `json:"asset_pair_id,omitempty"`
	OrderIDs    []string `json:"order_ids,omitempty"`
	IsBuy       *bool    `json:"is_buy,omitempty"`
}

func base(env Envelope, externalID, clientID, pairID string, volume decimal.Decimal, ts time.Time, primary *fee.Instruction, fees []fee.Instruction) order.Base {
	if ts.IsZero() {
		ts = env.Date
	}
	return order.Base{
		ID:              env.MessageID,
		ExternalID:      externalID,
		AssetPairID:     pairID,
		ClientID:        clientID,
		Volume:          volume,
		RemainingVolume: volume,
		Status:          order.Processing,
		StatusDate:      env.Date,
		CreatedAt:       ts,
		Registered:      env.Date,
		Fee:             primary,
		Fees:            fees,
	}
}

func (r *LimitOrderRequest) order(env Envelope) *order.LimitOrder {
	return &order.LimitOrder{
		Base:  base(env, r.ExternalID, r.ClientID, r.AssetPairID, r.Volume, r.Timestamp, r.Fee, r.Fees),
		Price: r.Price,
	}
}

func (r *MarketOrderRequest) order(env Envelope) *order.MarketOrder {
	return &order.MarketOrder{
		Base: base(env, r.ExternalID, r.ClientID, r.AssetPairID, r.Volume, r.Timestamp, r.Fee, r.Fees),
	}
}

func (r *StopOrderRequest) order(env Envelope) *order.StopOrder {
	return &order.StopOrder{
		Base:            base(env, r.ExternalID, r.ClientID, r.AssetPairID, r.Volume, r.Timestamp, r.Fee, r.Fees),
		LowerLimitPrice: r.LowerLimitPrice,
		LowerPrice:      r.LowerPrice,
		UpperLimitPrice: r.UpperLimitPrice,
		UpperPrice:      r.UpperPrice,
	}
}

// Response is the single answer every inbound message gets.
type Response struct {
	MessageID   string              `json:"message_id"`
	Status      MessageStatus       `json:"status"`
	OrderID     string              `json:"order_id,omitempty"`
	OrderStatus order.Status        `json:"order_status"`
	Price       decimal.NullDecimal `json:"price"`
	Reason      string              `json:"reason,omitempty"`
}

func (r Response) OK() bool { return r.Status == StatusOK }
