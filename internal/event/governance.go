package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// WalletExited records a wallet entering the terminal exit state.
type WalletExited struct {
	Wallet      common.Address `json:"wallet"`
	TimestampMs int64          `json:"timestampMs"`
}

func (w *WalletExited) IdempotencyKey() string { return "exit:" + w.Wallet.Hex() }

func (w *WalletExited) EventType() Type { return TypeWalletExited }

func (w *WalletExited) Market() string { return "" }

// NonceInvalidationScheduled records an accepted nonce invalidation request,
// effective after the propagation delay.
type NonceInvalidationScheduled struct {
	Wallet      common.Address `json:"wallet"`
	CutoffMs    int64          `json:"cutoffMs"`
	EffectiveMs int64          `json:"effectiveMs"`
	TimestampMs int64          `json:"timestampMs"`
}

func (n *NonceInvalidationScheduled) IdempotencyKey() string {
	return fmt.Sprintf("nonceInvalidation:%s:%d", n.Wallet.Hex(), n.CutoffMs)
}

func (n *NonceInvalidationScheduled) EventType() Type { return TypeNonceInvalidationScheduled }

func (n *NonceInvalidationScheduled) Market() string { return "" }

// GovernanceUpgraded records a governance phase change for one upgrade kind.
type GovernanceUpgraded struct {
	Kind        string `json:"kind"`
	Phase       string `json:"phase"` // initiated | finalized | canceled
	TimestampMs int64  `json:"timestampMs"`
}

func (g *GovernanceUpgraded) IdempotencyKey() string {
	return fmt.Sprintf("governance:%s:%s:%d", g.Kind, g.Phase, g.TimestampMs)
}

func (g *GovernanceUpgraded) EventType() Type { return TypeGovernanceUpgraded }

func (g *GovernanceUpgraded) Market() string { return "" }
