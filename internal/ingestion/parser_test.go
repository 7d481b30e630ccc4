package ingestion_test

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/ingestion"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/liquidation"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/trade"
)

const (
	walletHex = "0x00000000000000000000000000000000000000aa"
	cpHex     = "0x00000000000000000000000000000000000000bb"
	nonceStr  = "550e8400-e29b-41d4-a716-446655440000"
)

func sigHex() string {
	return hexutil.Encode(make([]byte, 65))
}

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseIndexPrice(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"market":       "ETH",
		"price":        int64(2000_00000000),
		"timestamp_ms": int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandIndexPrice)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, ok := cmd.(*ingestion.IndexPriceCommand)
	if !ok {
		t.Fatalf("expected *IndexPriceCommand, got %T", cmd)
	}
	if p.Market != "ETH" {
		t.Errorf("market = %q, want %q", p.Market, "ETH")
	}
	if p.Price != 2000_00000000 {
		t.Errorf("price = %d, want %d", p.Price, int64(2000_00000000))
	}
	if p.TimestampMs != 1_700_000_000_000 {
		t.Errorf("timestamp = %d, want 1700000000000", p.TimestampMs)
	}
}

func TestParseFundingMultiplier(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"market":       "ETH",
		"period":       int64(59_027),
		"multiplier":   int64(-12_500),
		"timestamp_ms": int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandFundingMultiplier)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	f, ok := cmd.(*ingestion.FundingMultiplierCommand)
	if !ok {
		t.Fatalf("expected *FundingMultiplierCommand, got %T", cmd)
	}
	if f.Period != 59_027 {
		t.Errorf("period = %d, want 59027", f.Period)
	}
	if f.Multiplier != -12_500 {
		t.Errorf("multiplier = %d, want -12500", f.Multiplier)
	}
}

func TestParseTradeFill(t *testing.T) {
	order := func(side string) map[string]interface{} {
		return map[string]interface{}{
			"signature_hash_version": auth.SignatureHashVersion,
			"nonce":                  nonceStr,
			"wallet":                 walletHex,
			"market":                 "ETH",
			"side":                   side,
			"type":                   "limit",
			"time_in_force":          "gtc",
			"quantity":               int64(10_00000000),
			"limit_price":            int64(2000_00000000),
		}
	}
	data := marshal(t, map[string]interface{}{
		"fill_id":        "660e8400-e29b-41d4-a716-446655440001",
		"buy_order":      order("buy"),
		"buy_signature":  sigHex(),
		"sell_order":     order("sell"),
		"sell_signature": sigHex(),
		"base_asset":     "ETH",
		"base_quantity":  int64(10_00000000),
		"quote_quantity": int64(20000_00000000),
		"maker_fee":      int64(20_00000000),
		"taker_fee":      int64(40_00000000),
		"price":          int64(2000_00000000),
		"maker_side":     "sell",
		"timestamp_ms":   int64(1_700_000_000_000),
	})

	cmd, err := ingestion.ParseCommand(data, ingestion.CommandTrade)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tc, ok := cmd.(*ingestion.TradeCommand)
	if !ok {
		t.Fatalf("expected *TradeCommand, got %T", cmd)
	}
	if tc.Args.BuyOrder.Side != trade.Buy {
		t.Errorf("buy order side = %v, want buy", tc.Args.BuyOrder.Side)
	}
	if tc.Args.SellOrder.Side != trade.Sell {
		t.Errorf("sell order side = %v, want sell", tc.Args.SellOrder.Side)
	}
	if tc.Args.Trade.MakerSide != trade.Sell {
		t.Errorf("maker side = %v, want sell", tc.Args.Trade.MakerSide)
	}
	if tc.Args.Trade.QuoteQuantity != 20000_00000000 {
		t.Errorf("quote quantity = %d, want 2000000000000", tc.Args.Trade.QuoteQuantity)
	}
	if len(tc.Args.BuySignature) != 65 {
		t.Errorf("buy signature length = %d, want 65", len(tc.Args.BuySignature))
	}
	if tc.Args.NowMs != 1_700_000_000_000 {
		t.Errorf("now = %d, want 1700000000000", tc.Args.NowMs)
	}
}

func TestParseLiquidation(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"path":   "inMaintenance",
		"wallet": walletHex,
		"closes": []map[string]interface{}{
			{"market": "ETH", "quote_quantity": int64(3850_00000000)},
		},
		"timestamp_ms": int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandLiquidation)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lc, ok := cmd.(*ingestion.LiquidationCommand)
	if !ok {
		t.Fatalf("expected *LiquidationCommand, got %T", cmd)
	}
	if lc.Path != liquidation.InMaintenance {
		t.Errorf("path = %v, want InMaintenance", lc.Path)
	}
	if len(lc.Args.Closes) != 1 || lc.Args.Closes[0].Market != "ETH" {
		t.Errorf("closes = %+v, want one ETH close", lc.Args.Closes)
	}
}

func TestParseDeleverage(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"kind":           "insuranceFundClosure",
		"wallet":         walletHex,
		"counterparty":   cpHex,
		"market":         "ETH",
		"base_quantity":  int64(1_00000000),
		"quote_quantity": int64(2000_00000000),
		"timestamp_ms":   int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandDeleverage)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	dc, ok := cmd.(*ingestion.DeleverageCommand)
	if !ok {
		t.Fatalf("expected *DeleverageCommand, got %T", cmd)
	}
	if dc.Kind != liquidation.InsuranceFundClosure {
		t.Errorf("kind = %v, want InsuranceFundClosure", dc.Kind)
	}
	if dc.Args.Counterparty.Hex() != "0x00000000000000000000000000000000000000bB" && dc.Args.Counterparty.Hex() != "0x00000000000000000000000000000000000000bb" {
		t.Errorf("counterparty = %s", dc.Args.Counterparty.Hex())
	}
}

func TestParseWithdrawal(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"signature_hash_version": auth.SignatureHashVersion,
		"nonce":                  nonceStr,
		"wallet":                 walletHex,
		"quantity":               int64(100_00000000),
		"gas_fee":                int64(1_00000000),
		"bridge_adapter":         cpHex,
		"signature":              sigHex(),
		"timestamp_ms":           int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandWithdrawal)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	wc, ok := cmd.(*ingestion.WithdrawalCommand)
	if !ok {
		t.Fatalf("expected *WithdrawalCommand, got %T", cmd)
	}
	if wc.Withdrawal.Quantity != 100_00000000 {
		t.Errorf("quantity = %d, want 10000000000", wc.Withdrawal.Quantity)
	}
	if wc.Withdrawal.GasFee != 1_00000000 {
		t.Errorf("gas fee = %d, want 100000000", wc.Withdrawal.GasFee)
	}
	if wc.Withdrawal.Nonce.String() != nonceStr {
		t.Errorf("nonce = %s, want %s", wc.Withdrawal.Nonce, nonceStr)
	}
}

func TestParseTransfer(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"signature_hash_version": auth.SignatureHashVersion,
		"nonce":                  nonceStr,
		"source":                 walletHex,
		"destination":            cpHex,
		"quantity":               int64(50_00000000),
		"signature":              sigHex(),
		"timestamp_ms":           int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandTransfer)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tc, ok := cmd.(*ingestion.TransferCommand)
	if !ok {
		t.Fatalf("expected *TransferCommand, got %T", cmd)
	}
	if tc.Transfer.Source == tc.Transfer.Destination {
		t.Error("source and destination collapsed during parsing")
	}
	if tc.Transfer.Quantity != 50_00000000 {
		t.Errorf("quantity = %d, want 5000000000", tc.Transfer.Quantity)
	}
}

func TestParseDelegation(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"signature_hash_version": auth.SignatureHashVersion,
		"nonce":                  nonceStr,
		"wallet":                 walletHex,
		"delegated_key":          cpHex,
		"expires_at_ms":          int64(1_700_100_000_000),
		"signature":              sigHex(),
		"timestamp_ms":           int64(1_700_000_000_000),
	})
	cmd, err := ingestion.ParseCommand(data, ingestion.CommandDelegation)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	dc, ok := cmd.(*ingestion.DelegationCommand)
	if !ok {
		t.Fatalf("expected *DelegationCommand, got %T", cmd)
	}
	if dc.Authorization.ExpiresAtMs != 1_700_100_000_000 {
		t.Errorf("expires = %d, want 1700100000000", dc.Authorization.ExpiresAtMs)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name        string
		commandType string
		payload     interface{}
	}{
		{"invalid json", ingestion.CommandIndexPrice, nil},
		{"bad wallet", ingestion.CommandDeposit, map[string]interface{}{
			"deposit_id": nonceStr, "wallet": "not-an-address", "quantity": int64(1),
		}},
		{"bad uuid", ingestion.CommandDeposit, map[string]interface{}{
			"deposit_id": "nope", "wallet": walletHex, "quantity": int64(1),
		}},
		{"bad path", ingestion.CommandLiquidation, map[string]interface{}{
			"path": "fireSale", "wallet": walletHex,
		}},
		{"short signature", ingestion.CommandWithdrawal, map[string]interface{}{
			"nonce": nonceStr, "wallet": walletHex, "quantity": int64(1),
			"signature": "0x0102",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte(`{invalid`)
			if tc.payload != nil {
				data = marshal(t, tc.payload)
			}
			if _, err := ingestion.ParseCommand(data, tc.commandType); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseUnknownCommandType(t *testing.T) {
	if _, err := ingestion.ParseCommand([]byte(`{}`), "NonExistent"); err == nil {
		t.Fatal("expected error for unknown command type")
	}
}
