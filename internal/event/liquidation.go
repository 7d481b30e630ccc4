package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidatedPosition is one closed position inside a liquidation.
type LiquidatedPosition struct {
	BaseAsset     string `json:"baseAsset"`
	BaseQuantity  int64  `json:"baseQuantity"`
	QuoteQuantity int64  `json:"quoteQuantity"`
}

// WalletLiquidated records one completed liquidation across all of a
// wallet's positions. Idempotency key: wallet, path, and timestamp; the
// engine serializes commands so the triple is unique.
type WalletLiquidated struct {
	Wallet       common.Address       `json:"wallet"`
	Path         string               `json:"path"`
	Counterparty common.Address       `json:"counterparty"`
	Closes       []LiquidatedPosition `json:"closes"`
	TimestampMs  int64                `json:"timestampMs"`
}

func (l *WalletLiquidated) IdempotencyKey() string {
	return fmt.Sprintf("liquidation:%s:%s:%d", l.Wallet.Hex(), l.Path, l.TimestampMs)
}

func (l *WalletLiquidated) EventType() Type { return TypeWalletLiquidated }

func (l *WalletLiquidated) Market() string { return "" }

// PositionDeleveraged records one forced deleveraging slice.
type PositionDeleveraged struct {
	Kind          string         `json:"kind"`
	Wallet        common.Address `json:"wallet"`
	Counterparty  common.Address `json:"counterparty"`
	BaseAsset     string         `json:"baseAsset"`
	BaseQuantity  int64          `json:"baseQuantity"`
	QuoteQuantity int64          `json:"quoteQuantity"`
	TimestampMs   int64          `json:"timestampMs"`
}

func (d *PositionDeleveraged) IdempotencyKey() string {
	return fmt.Sprintf("deleverage:%s:%s:%s:%d", d.Kind, d.Wallet.Hex(), d.Counterparty.Hex(), d.TimestampMs)
}

func (d *PositionDeleveraged) EventType() Type { return TypePositionDeleveraged }

func (d *PositionDeleveraged) Market() string { return d.BaseAsset }
