// Package liquidation implements the multi-path insolvency resolution
// engine: five liquidation entry paths backed by the Insurance and Exit
// Funds, plus forced deleveraging against profitable counterparties.
package liquidation

// Path is the closed set of liquidation entry conditions. Each path has its
// own precondition and quote-quantity rule, dispatched by ResolveInsolvency.
type Path uint8

const (
	// BelowMinimum closes a dust position (0 < |q| < minimumPositionSize)
	// into the Insurance Fund at the index price.
	BelowMinimum Path = iota + 1
	// DeactivatedMarket closes a position in an inactive market at the
	// frozen deactivation price less a configurable fee.
	DeactivatedMarket
	// InMaintenance closes every position of a wallet below its maintenance
	// margin into the Insurance Fund at the bankruptcy price.
	InMaintenance
	// Exited closes every position of an exited wallet at index prices once
	// the exit delay has elapsed.
	Exited
	// InMaintenanceDuringSystemRecovery is InMaintenance with the Exit Fund
	// as counterparty, permitted only while the Insurance Fund is itself
	// under water.
	InMaintenanceDuringSystemRecovery
)

func (p Path) String() string {
	switch p {
	case BelowMinimum:
		return "belowMinimum"
	case DeactivatedMarket:
		return "deactivatedMarket"
	case InMaintenance:
		return "inMaintenance"
	case Exited:
		return "exited"
	case InMaintenanceDuringSystemRecovery:
		return "inMaintenanceDuringSystemRecovery"
	default:
		return "unknown"
	}
}

// DeleverageKind is the closed set of forced-deleveraging variants.
type DeleverageKind uint8

const (
	// WalletInMaintenanceAcquisition transfers a slice of an in-maintenance
	// wallet's position to a profitable counterparty at the bankruptcy price.
	WalletInMaintenanceAcquisition DeleverageKind = iota + 1
	// WalletExitedAcquisition transfers a slice of an exited wallet's
	// position to a counterparty at the index price.
	WalletExitedAcquisition
	// InsuranceFundClosure winds down an Insurance Fund position against a
	// counterparty at the index price.
	InsuranceFundClosure
	// ExitFundClosure winds down an Exit Fund position; the only context in
	// which a fund wallet may itself be deleveraged.
	ExitFundClosure
)

func (k DeleverageKind) String() string {
	switch k {
	case WalletInMaintenanceAcquisition:
		return "walletInMaintenanceAcquisition"
	case WalletExitedAcquisition:
		return "walletExitedAcquisition"
	case InsuranceFundClosure:
		return "insuranceFundClosure"
	case ExitFundClosure:
		return "exitFundClosure"
	default:
		return "unknown"
	}
}
