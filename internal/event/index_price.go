package event

import "fmt"

// IndexPriceUpdated records one accepted index price report. Idempotency key:
// market and report timestamp; the registry rejects non-increasing reports so
// the pair is unique.
type IndexPriceUpdated struct {
	BaseAsset   string `json:"baseAsset"`
	Price       int64  `json:"price"`
	TimestampMs int64  `json:"timestampMs"`
}

func (p *IndexPriceUpdated) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", p.BaseAsset, p.TimestampMs)
}

func (p *IndexPriceUpdated) EventType() Type { return TypeIndexPriceUpdated }

func (p *IndexPriceUpdated) Market() string { return p.BaseAsset }
