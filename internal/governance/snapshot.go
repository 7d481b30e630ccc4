package governance

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PendingSnapshot is one in-flight upgrade in serialized form. The payload is
// kept as raw JSON and decoded by kind on restore.
type PendingSnapshot struct {
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	InitiatedAtMs int64           `json:"initiatedAtMs"`
	ReadyAtMs     int64           `json:"readyAtMs"`
}

// UpgraderSnapshot is the upgrader's full serializable state.
type UpgraderSnapshot struct {
	Pending []PendingSnapshot `json:"pending,omitempty"`
}

// Snapshot serializes the pending upgrades, sorted by kind.
func (u *Upgrader) Snapshot() (*UpgraderSnapshot, error) {
	snap := &UpgraderSnapshot{Pending: make([]PendingSnapshot, 0, len(u.pending))}
	for _, p := range u.pending {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", p.Kind, err)
		}
		snap.Pending = append(snap.Pending, PendingSnapshot{
			Kind:          p.Kind,
			Payload:       raw,
			InitiatedAtMs: p.InitiatedAtMs,
			ReadyAtMs:     p.ReadyAtMs,
		})
	}
	sort.Slice(snap.Pending, func(i, j int) bool { return snap.Pending[i].Kind < snap.Pending[j].Kind })
	return snap, nil
}

// Restore replaces the upgrader's state with the snapshot's.
func (u *Upgrader) Restore(snap *UpgraderSnapshot) error {
	pending := make(map[Kind]*Pending, len(snap.Pending))
	for _, p := range snap.Pending {
		payload, err := decodePayload(p.Kind, p.Payload)
		if err != nil {
			return err
		}
		pending[p.Kind] = &Pending{
			Kind:          p.Kind,
			Payload:       payload,
			InitiatedAtMs: p.InitiatedAtMs,
			ReadyAtMs:     p.ReadyAtMs,
		}
	}
	u.pending = pending
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch kind {
	case MarketRiskParameters:
		payload = &MarketRiskParametersPayload{}
	case WalletRiskOverrides:
		payload = &WalletRiskOverridesPayload{}
	case FeeRates:
		payload = &FeeRatesPayload{}
	case BridgeAllowList:
		payload = &BridgeAllowListPayload{}
	case FundWallets:
		payload = &FundWalletsPayload{}
	default:
		return nil, fmt.Errorf("unknown upgrade kind %d", kind)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return payload, nil
}
