// Package fee validates fee instructions attached to orders and resolves
// them into concrete transfers for a single fill.
package fee

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Type uint8

const (
	NoFee Type = iota
	ClientFee
	ExternalFee
)

type SizeType uint8

const (
	SizeTypeUnset SizeType = iota
	Percentage
	Absolute
)

// Instruction describes one fee charged on an order's fills.
// MakerSize, MakerSizeType and MakerFeeModifier only apply to limit orders.
type Instruction struct {
	Type             Type                `json:"type"`
	SizeType         SizeType            `json:"size_type"`
	Size             decimal.NullDecimal `json:"size"`
	MakerSizeType    SizeType            `json:"maker_size_type"`
	MakerSize        decimal.NullDecimal `json:"maker_size"`
	MakerFeeModifier decimal.NullDecimal `json:"maker_fee_modifier"`
	SourceClientID   string              `json:"source_client_id,omitempty"`
	TargetClientID   string              `json:"target_client_id,omitempty"`
}

// Transfer is a resolved fee movement of one asset between two clients.
type Transfer struct {
	FromClientID string          `json:"from_client_id"`
	ToClientID   string          `json:"to_client_id"`
	AssetID      string          `json:"asset_id"`
	Volume       decimal.Decimal `json:"volume"`
}

var ErrInvalidFee = errors.New("invalid fee instruction")

// ListOf merges the legacy single instruction with the additional list,
// primary first.
func ListOf(primary *Instruction, additional []Instruction) []Instruction {
	out := make([]Instruction, 0, len(additional)+1)
	if primary != nil {
		out = append(out, *primary)
	}
	return append(out, additional...)
}

// Validate checks the instructions of one order. isLimit selects the limit
// order rules, where a maker size may stand in for the plain size.
func Validate(primary *Instruction, additional []Instruction, isLimit bool) error {
	if primary != nil && len(additional) > 0 {
		return fmt.Errorf("%w: both single and multiple fee instructions are set", ErrInvalidFee)
	}
	for i, instr := range ListOf(primary, additional) {
		if err := validateOne(instr, isLimit); err != nil {
			return fmt.Errorf("%w: instruction %d: %s", ErrInvalidFee, i, err.Error())
		}
	}
	return nil
}

func validateOne(instr Instruction, isLimit bool) error {
	if instr.Type == NoFee {
		return nil
	}
	switch {
	case instr.SizeType == SizeTypeUnset:
		return errors.New("size type is not set")
	case instr.Size.Valid && instr.Size.Decimal.IsNegative():
		return errors.New("negative size")
	case instr.TargetClientID == "":
		return errors.New("target client is not set")
	case instr.Type == ExternalFee && instr.SourceClientID == "":
		return errors.New("external fee without source client")
	}

	if !isLimit {
		if !instr.Size.Valid {
			return errors.New("size is not set")
		}
		return nil
	}

	if !instr.MakerSize.Valid && !instr.Size.Valid {
		return errors.New("neither size nor maker size is set")
	}
	if instr.MakerSize.Valid && instr.MakerSize.Decimal.IsNegative() {
		return errors.New("negative maker size")
	}
	if instr.MakerFeeModifier.Valid && !instr.MakerFeeModifier.Decimal.IsPositive() {
		return errors.New("maker fee modifier must be positive")
	}
	return nil
}

// Fill is what the calculator needs to know about one side of a trade.
type Fill struct {
	ClientID       string
	IsMaker        bool
	ReceivedAsset  string
	ReceivedVolume decimal.Decimal
	Accuracy       int32
}

// Resolve turns an instruction into a transfer for the fill. A nil transfer
// means nothing is charged.
func Resolve(instr Instruction, f Fill) (*Transfer, error) {
	if instr.Type == NoFee {
		return nil, nil
	}

	sizeType, size := instr.SizeType, instr.Size
	if f.IsMaker && instr.MakerSize.Valid {
		size = instr.MakerSize
		if instr.MakerSizeType != SizeTypeUnset {
			sizeType = instr.MakerSizeType
		}
		if instr.MakerFeeModifier.Valid {
			size = decimal.NewNullDecimal(size.Decimal.Mul(instr.MakerFeeModifier.Decimal))
		}
	}
	if !size.Valid {
		return nil, nil
	}

	var amount decimal.Decimal
	switch sizeType {
	case Percentage:
		amount = f.ReceivedVolume.Mul(size.Decimal)
	case Absolute:
		amount = size.Decimal
	default:
		return nil, fmt.Errorf("%w: unknown size type %d", ErrInvalidFee, sizeType)
	}
	amount = amount.RoundDown(f.Accuracy)

	from := f.ClientID
	if instr.Type == ExternalFee {
		from = instr.SourceClientID
	} else if amount.GreaterThan(f.ReceivedVolume) {
		amount = f.ReceivedVolume
	}
	if !amount.IsPositive() {
		return nil, nil
	}

	return &Transfer{
		FromClientID: from,
		ToClientID:   instr.TargetClientID,
		AssetID:      f.ReceivedAsset,
		Volume:       amount,
	}, nil
}

// ResolveAll resolves every instruction, skipping the ones that charge nothing.
func ResolveAll(instrs []Instruction, f Fill) ([]Transfer, error) {
	var out []Transfer
	for _, instr := range instrs {
		t, err := Resolve(instr, f)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}
