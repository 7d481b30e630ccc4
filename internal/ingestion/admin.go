package ingestion

import (
	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/governance"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
)

// AdminService is the operator-facing command surface: market lifecycle and
// governance upgrades. These are low-rate operations invoked from the admin
// endpoints, not from the streams.
type AdminService struct {
	engine *engine.Engine
	log    zerolog.Logger
}

func NewAdminService(e *engine.Engine, log zerolog.Logger) *AdminService {
	return &AdminService{engine: e, log: log}
}

// ListMarket registers a new market with its initial risk parameters.
func (s *AdminService) ListMarket(symbol string, risk market.RiskParameters, nowMs int64) error {
	if err := s.engine.ListMarket(symbol, risk, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("market", symbol).Msg("market listed")
	return nil
}

// DeactivateMarket freezes a market at its current index price.
func (s *AdminService) DeactivateMarket(symbol string, nowMs int64) error {
	if err := s.engine.DeactivateMarket(symbol, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("market", symbol).Msg("market deactivated")
	return nil
}

// ReactivateMarket restores trading in a deactivated market.
func (s *AdminService) ReactivateMarket(symbol string, nowMs int64) error {
	if err := s.engine.ReactivateMarket(symbol, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("market", symbol).Msg("market reactivated")
	return nil
}

// InitiateUpgrade opens the governance delay window for one upgrade.
func (s *AdminService) InitiateUpgrade(payload governance.Payload, nowMs int64) error {
	if payload == nil {
		return errs.Validation("upgrade payload must not be nil")
	}
	if err := s.engine.InitiateUpgrade(payload, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("kind", payload.UpgradeKind().String()).Msg("upgrade initiated")
	return nil
}

// CancelUpgrade discards a pending upgrade.
func (s *AdminService) CancelUpgrade(kind governance.Kind, nowMs int64) error {
	if err := s.engine.CancelUpgrade(kind, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("kind", kind.String()).Msg("upgrade canceled")
	return nil
}

// FinalizeUpgrade applies a pending upgrade once its delay has elapsed.
func (s *AdminService) FinalizeUpgrade(kind governance.Kind, nowMs int64) error {
	if err := s.engine.FinalizeUpgrade(kind, nowMs); err != nil {
		return err
	}
	s.log.Info().Str("kind", kind.String()).Msg("upgrade finalized")
	return nil
}
