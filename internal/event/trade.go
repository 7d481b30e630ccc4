package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TradeSettled records one applied fill. Idempotency key: the fill ID minted
// by the off-engine matcher.
type TradeSettled struct {
	FillID            uuid.UUID      `json:"fillId"`
	BaseAsset         string         `json:"baseAsset"`
	BuyWallet         common.Address `json:"buyWallet"`
	SellWallet        common.Address `json:"sellWallet"`
	BuyNonce          uuid.UUID      `json:"buyNonce"`
	SellNonce         uuid.UUID      `json:"sellNonce"`
	BaseQuantity      int64          `json:"baseQuantity"`
	QuoteQuantity     int64          `json:"quoteQuantity"`
	Price             int64          `json:"price"`
	MakerFee          int64          `json:"makerFee"`
	TakerFee          int64          `json:"takerFee"`
	BuyerRealizedPnL  int64          `json:"buyerRealizedPnl"`
	SellerRealizedPnL int64          `json:"sellerRealizedPnl"`
	BuyerQuantity     int64          `json:"buyerQuantity"`
	SellerQuantity    int64          `json:"sellerQuantity"`
	TimestampMs       int64          `json:"timestampMs"`
}

func (t *TradeSettled) IdempotencyKey() string {
	return t.FillID.String()
}

func (t *TradeSettled) EventType() Type { return TypeTradeSettled }

func (t *TradeSettled) Market() string { return t.BaseAsset }
