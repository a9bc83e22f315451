package order

import "fmt"

type Status uint8

const (
	Processing Status = iota
	InOrderBook
	Pending
	PartiallyMatched
	Matched
	Executed
	Cancelled
	Replaced
	Rejected
	NotEnoughFunds
	ReservedVolumeGreaterThanBalance
	NoLiquidity
	LeadToNegativeSpread
	InvalidFee
	InvalidVolumeAccuracy
	InvalidPriceAccuracy
	InvalidPrice
	InvalidVolume
	InvalidValue
	TooSmallVolume
	TooHighPriceDeviation
	TooHighMidPriceDeviation
	UnknownAsset
	DisabledAsset
)

var statusNames = [...]string{
	Processing:                       "Processing",
	InOrderBook:                      "InOrderBook",
	Pending:                          "Pending",
	PartiallyMatched:                 "PartiallyMatched",
	Matched:                          "Matched",
	Executed:                         "Executed",
	Cancelled:                        "Cancelled",
	Replaced:                         "Replaced",
	Rejected:                         "Rejected",
	NotEnoughFunds:                   "NotEnoughFunds",
	ReservedVolumeGreaterThanBalance: "ReservedVolumeGreaterThanBalance",
	NoLiquidity:                      "NoLiquidity",
	LeadToNegativeSpread:             "LeadToNegativeSpread",
	InvalidFee:                       "InvalidFee",
	InvalidVolumeAccuracy:            "InvalidVolumeAccuracy",
	InvalidPriceAccuracy:             "InvalidPriceAccuracy",
	InvalidPrice:                     "InvalidPrice",
	InvalidVolume:                    "InvalidVolume",
	InvalidValue:                     "InvalidValue",
	TooSmallVolume:                   "TooSmallVolume",
	TooHighPriceDeviation:            "TooHighPriceDeviation",
	TooHighMidPriceDeviation:         "TooHighMidPriceDeviation",
	UnknownAsset:                     "UnknownAsset",
	DisabledAsset:                    "DisabledAsset",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// IsRejection reports whether the status ends an order without it ever
// reaching the book.
func (s Status) IsRejection() bool {
	return s >= Rejected
}

// IsResting reports whether an order with this status sits in a book.
func (s Status) IsResting() bool {
	return s == InOrderBook || s == PartiallyMatched || s == Pending
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("order: unknown status %q", b)
	}
	*s = v
	return nil
}

func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return 0, false
}
