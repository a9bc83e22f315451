package service

import "matchd/domain/order"

// MessageStatus is the status code a response carries.
type MessageStatus int32

const (
	StatusOK                              MessageStatus = 0
	StatusBadRequest                      MessageStatus = 400
	StatusLowBalance                      MessageStatus = 401
	StatusDisabledAsset                   MessageStatus = 403
	StatusUnknownAsset                    MessageStatus = 410
	StatusNoLiquidity                     MessageStatus = 411
	StatusNotEnoughFunds                  MessageStatus = 412
	StatusReservedVolumeHigherThanBalance MessageStatus = 414
	StatusLimitOrderNotFound              MessageStatus = 415
	StatusLeadToNegativeSpread            MessageStatus = 417
	StatusTooSmallVolume                  MessageStatus = 418
	StatusInvalidFee                      MessageStatus = 419
	StatusInvalidPrice                    MessageStatus = 420
	StatusDuplicate                       MessageStatus = 430
	StatusInvalidVolumeAccuracy           MessageStatus = 431
	StatusInvalidPriceAccuracy            MessageStatus = 432
	StatusInvalidVolume                   MessageStatus = 434
	StatusTooHighPriceDeviation           MessageStatus = 435
	StatusInvalidOrderValue               MessageStatus = 436
	StatusTooHighMidPriceDeviation        MessageStatus = 437
	StatusRuntime                         MessageStatus = 500
)

var messageStatusNames = map[MessageStatus]string{
	StatusOK:                              "OK",
	StatusBadRequest:                      "BAD_REQUEST",
	StatusLowBalance:                      "LOW_BALANCE",
	StatusDisabledAsset:                   "DISABLED_ASSET",
	StatusUnknownAsset:                    "UNKNOWN_ASSET",
	StatusNoLiquidity:                     "NO_LIQUIDITY",
	StatusNotEnoughFunds:                  "NOT_ENOUGH_FUNDS",
	StatusReservedVolumeHigherThanBalance: "RESERVED_VOLUME_HIGHER_THAN_BALANCE",
	StatusLimitOrderNotFound:              "LIMIT_ORDER_NOT_FOUND",
	StatusLeadToNegativeSpread:            "LEAD_TO_NEGATIVE_SPREAD",
	StatusTooSmallVolume:                  "TOO_SMALL_VOLUME",
	StatusInvalidFee:                      "INVALID_FEE",
	StatusInvalidPrice:                    "INVALID_PRICE",
	StatusDuplicate:                       "DUPLICATE",
	StatusInvalidVolumeAccuracy:           "INVALID_VOLUME_ACCURACY",
	StatusInvalidPriceAccuracy:            "INVALID_PRICE_ACCURACY",
	StatusInvalidVolume:                   "INVALID_VOLUME",
	StatusTooHighPriceDeviation:           "TOO_HIGH_PRICE_DEVIATION",
	StatusInvalidOrderValue:               "INVALID_ORDER_VALUE",
	StatusTooHighMidPriceDeviation:        "TOO_HIGH_MID_PRICE_DEVIATION",
	StatusRuntime:                         "RUNTIME",
}

func (s MessageStatus) String() string {
	if n, ok := messageStatusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// StatusFor maps an order's status to the response status. Every status
// an order can be accepted with maps to OK.
func StatusFor(s order.Status) MessageStatus {
	switch s {
	case order.Processing, order.InOrderBook, order.Pending, order.PartiallyMatched,
		order.Matched, order.Executed, order.Cancelled, order.Replaced:
		return StatusOK
	case order.NotEnoughFunds:
		return StatusNotEnoughFunds
	case order.ReservedVolumeGreaterThanBalance:
		return StatusReservedVolumeHigherThanBalance
	case order.NoLiquidity:
		return StatusNoLiquidity
	case order.LeadToNegativeSpread:
		return StatusLeadToNegativeSpread
	case order.InvalidFee:
		return StatusInvalidFee
	case order.InvalidVolumeAccuracy:
		return StatusInvalidVolumeAccuracy
	case order.InvalidPriceAccuracy:
		return StatusInvalidPriceAccuracy
	case order.InvalidPrice:
		return StatusInvalidPrice
	case order.InvalidVolume:
		return StatusInvalidVolume
	case order.InvalidValue:
		return StatusInvalidOrderValue
	case order.TooSmallVolume:
		return StatusTooSmallVolume
	case order.TooHighPriceDeviation:
		return StatusTooHighPriceDeviation
	case order.TooHighMidPriceDeviation:
		return StatusTooHighMidPriceDeviation
	case order.UnknownAsset:
		return StatusUnknownAsset
	case order.DisabledAsset:
		return StatusDisabledAsset
	}
	return StatusBadRequest
}
