// Package validation holds the rule sets an order must pass before it is
// matched: input rules on the order itself and business rules against the
// client's balances.
package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"matchd/domain/asset"
	"matchd/domain/balance"
	"matchd/domain/fee"
	"matchd/domain/order"
)

// Error carries the terminal status a failed order gets.
type Error struct {
	Status order.Status
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Reason)
}

func fail(status order.Status, format string, args ...any) *Error {
	return &Error{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the terminal status of a validation failure.
func StatusOf(err error) (order.Status, string, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Status, verr.Reason, true
	}
	return 0, "", false
}

type InstrumentSource interface {
	Instrument(assetPairID string) (asset.Instrument, bool)
}

type BalanceReader interface {
	Balance(clientID, assetID string) balance.Balance
}

// Validator runs the input rules followed by the business rules.
type Validator struct {
	instruments InstrumentSource
}

func New(instruments InstrumentSource) *Validator {
	return &Validator{instruments: instruments}
}

// Instrument resolves the pair an order trades.
func (v *Validator) Instrument(assetPairID string) (asset.Instrument, error) {
	inst, ok := v.instruments.Instrument(assetPairID)
	if !ok {
		return asset.Instrument{}, fail(order.UnknownAsset, "unknown asset pair %q", assetPairID)
	}
	if inst.Pair.Disabled {
		return asset.Instrument{}, fail(order.DisabledAsset, "asset pair %q is disabled", assetPairID)
	}
	return inst, nil
}

// -------------------- Limit --------------------

func (v *Validator) ValidateLimit(o *order.LimitOrder, balances BalanceReader) (asset.Instrument, error) {
	inst, err := v.Instrument(o.AssetPairID)
	if err != nil {
		return inst, err
	}
	if err := checkFee(o.Fee, o.Fees, true); err != nil {
		return inst, err
	}
	if err := checkVolume(o.Volume, inst); err != nil {
		return inst, err
	}
	if err := checkPrice(o.Price, inst); err != nil {
		return inst, err
	}
	if inst.Pair.MaxValue.Valid && o.AbsVolume().Mul(o.Price).GreaterThan(inst.Pair.MaxValue.Decimal) {
		return inst, fail(order.InvalidValue, "order value exceeds %s", inst.Pair.MaxValue.Decimal)
	}

	reserve := inst.ReserveAsset(o.IsBuySide())
	need := o.ReservedVolume(reserve.Accuracy)
	if available := balances.Balance(o.ClientID, reserve.ID).Available(); available.LessThan(need) {
		return inst, fail(order.NotEnoughFunds, "%s available %s, required %s", reserve.ID, available, need)
	}
	return inst, nil
}

// -------------------- Market --------------------

func (v *Validator) ValidateMarket(o *order.MarketOrder, balances BalanceReader) (asset.Instrument, error) {
	inst, err := v.Instrument(o.AssetPairID)
	if err != nil {
		return inst, err
	}
	if err := checkFee(o.Fee, o.Fees, false); err != nil {
		return inst, err
	}
	if err := checkVolume(o.Volume, inst); err != nil {
		return inst, err
	}

	// Buy orders are checked against the cash movements after matching.
	if !o.IsBuySide() {
		available := balances.Balance(o.ClientID, inst.Base.ID).Available()
		if available.LessThan(o.AbsVolume()) {
			return inst, fail(order.NotEnoughFunds, "%s available %s, required %s", inst.Base.ID, available, o.AbsVolume())
		}
	}
	return inst, nil
}

// -------------------- Stop --------------------

func (v *Validator) ValidateStop(o *order.StopOrder, balances BalanceReader) (asset.Instrument, error) {
	inst, err := v.Instrument(o.AssetPairID)
	if err != nil {
		return inst, err
	}
	if err := checkFee(o.Fee, o.Fees, true); err != nil {
		return inst, err
	}
	if err := checkVolume(o.Volume, inst); err != nil {
		return inst, err
	}

	lower, err := checkTrigger(o.LowerLimitPrice, o.LowerPrice, inst)
	if err != nil {
		return inst, err
	}
	upper, err := checkTrigger(o.UpperLimitPrice, o.UpperPrice, inst)
	if err != nil {
		return inst, err
	}
	if !lower && !upper {
		return inst, fail(order.InvalidPrice, "no trigger price set")
	}
	if lower && upper && !o.LowerLimitPrice.Decimal.LessThan(o.UpperLimitPrice.Decimal) {
		return inst, fail(order.InvalidPrice, "lower limit price must be below upper limit price")
	}

	reserve := inst.ReserveAsset(o.IsBuySide())
	need := o.ReservedVolume(reserve.Accuracy)
	if available := balances.Balance(o.ClientID, reserve.ID).Available(); available.LessThan(need) {
		return inst, fail(order.NotEnoughFunds, "%s available %s, required %s", reserve.ID, available, need)
	}
	return inst, nil
}

// -------------------- Rules --------------------

func checkFee(primary *fee.Instruction, additional []fee.Instruction, isLimit bool) error {
	if err := fee.Validate(primary, additional, isLimit); err != nil {
		return fail(order.InvalidFee, "%s", err.Error())
	}
	return nil
}

func checkVolume(volume decimal.Decimal, inst asset.Instrument) error {
	if volume.IsZero() {
		return fail(order.InvalidVolume, "volume is zero")
	}
	if !volume.Equal(volume.Truncate(inst.Base.Accuracy)) {
		return fail(order.InvalidVolumeAccuracy, "volume %s exceeds accuracy %d", volume, inst.Base.Accuracy)
	}
	if volume.Abs().LessThan(inst.Pair.MinVolume) {
		return fail(order.TooSmallVolume, "volume %s below minimum %s", volume.Abs(), inst.Pair.MinVolume)
	}
	return nil
}

func checkPrice(price decimal.Decimal, inst asset.Instrument) error {
	if !price.IsPositive() {
		return fail(order.InvalidPrice, "price %s must be positive", price)
	}
	if !price.Equal(price.Truncate(inst.Pair.Accuracy)) {
		return fail(order.InvalidPriceAccuracy, "price %s exceeds accuracy %d", price, inst.Pair.Accuracy)
	}
	return nil
}

// checkTrigger reports whether a limit/price pair is set. Half a pair is
// invalid.
func checkTrigger(limit, price decimal.NullDecimal, inst asset.Instrument) (bool, error) {
	if limit.Valid != price.Valid {
		return false, fail(order.InvalidPrice, "trigger needs both a limit price and a price")
	}
	if !limit.Valid {
		return false, nil
	}
	if err := checkPrice(limit.Decimal, inst); err != nil {
		return false, err
	}
	if err := checkPrice(price.Decimal, inst); err != nil {
		return false, err
	}
	return true, nil
}
