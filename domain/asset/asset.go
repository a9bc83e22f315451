// Package asset holds the static reference data the engine trades:
// assets with their accuracy and the asset pairs (instruments) built on them.
package asset

import "github.com/shopspring/decimal"

type Asset struct {
	ID       string `json:"id"`
	Accuracy int32  `json:"accuracy"`
}

// Pair is an instrument. Volumes are expressed in the base asset and
// prices in the quoting asset.
type Pair struct {
	ID             string              `json:"id"`
	BaseAssetID    string              `json:"base_asset_id"`
	QuotingAssetID string              `json:"quoting_asset_id"`
	Accuracy       int32               `json:"accuracy"`
	MinVolume      decimal.Decimal     `json:"min_volume"`
	MaxValue       decimal.NullDecimal `json:"max_value"`
	Disabled       bool                `json:"disabled"`
}

// Instrument bundles a pair with both of its resolved assets.
type Instrument struct {
	Pair    Pair
	Base    Asset
	Quoting Asset
}

// ReserveAsset returns the asset a resting order of the given side locks.
func (i Instrument) ReserveAsset(isBuy bool) Asset {
	if isBuy {
		return i.Quoting
	}
	return i.Base
}
