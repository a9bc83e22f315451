package matching

import "github.com/shopspring/decimal"

// MidPriceBounds derives the allowed mid price band around a reference mid
// price. Without a threshold or a non-zero reference there are no bounds.
func MidPriceBounds(reference, threshold decimal.NullDecimal) (lower, upper decimal.NullDecimal) {
	if !threshold.Valid || !reference.Valid || reference.Decimal.IsZero() {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	delta := reference.Decimal.Mul(threshold.Decimal)
	return decimal.NewNullDecimal(reference.Decimal.Sub(delta)),
		decimal.NewNullDecimal(reference.Decimal.Add(delta))
}

// MidPriceValid is true when any of the three values is missing.
func MidPriceValid(mid, lower, upper decimal.NullDecimal) bool {
	if !mid.Valid || !lower.Valid || !upper.Valid {
		return true
	}
	return mid.Decimal.GreaterThanOrEqual(lower.Decimal) && mid.Decimal.LessThanOrEqual(upper.Decimal)
}

// PriceWithinDeviation checks price against best×(1±threshold).
func PriceWithinDeviation(price, best, threshold decimal.Decimal) bool {
	delta := best.Mul(threshold)
	return price.GreaterThanOrEqual(best.Sub(delta)) && price.LessThanOrEqual(best.Add(delta))
}
