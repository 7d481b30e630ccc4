package event

import "fmt"

// FundingMultiplierPublished records one accepted funding multiplier.
// Idempotency key: market and period index, unique by construction.
type FundingMultiplierPublished struct {
	BaseAsset   string `json:"baseAsset"`
	Period      int64  `json:"period"`
	Multiplier  int64  `json:"multiplier"`
	TimestampMs int64  `json:"timestampMs"`
}

func (f *FundingMultiplierPublished) IdempotencyKey() string {
	return fmt.Sprintf("funding:%s:%d", f.BaseAsset, f.Period)
}

func (f *FundingMultiplierPublished) EventType() Type { return TypeFundingMultiplierPublished }

func (f *FundingMultiplierPublished) Market() string { return f.BaseAsset }
