package custody

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// Config carries the custody policy knobs and reserved wallet addresses.
type Config struct {
	FeeWallet               common.Address
	InsuranceFund           common.Address
	ExitFund                common.Address
	MaxGasFeeFraction       int64 // pip fraction of the gross withdrawal
	ExitDelayMs             int64
	NoncePropagationDelayMs int64
}

// Custodian validates and applies boundary operations against the ledger.
// Withdrawal and transfer nonces are single-use and tracked forever; the
// wallet's rolling invalidation cutoff bounds how far back they can reach.
type Custodian struct {
	cfg     Config
	ledger  *account.Ledger
	margin  *margin.Calculator
	used    map[nonceKey]struct{}
	bridges map[common.Address]struct{}
}

type nonceKey struct {
	wallet common.Address
	nonce  uuid.UUID
}

func NewCustodian(cfg Config, ledger *account.Ledger, calc *margin.Calculator) *Custodian {
	return &Custodian{
		cfg:     cfg,
		ledger:  ledger,
		margin:  calc,
		used:    make(map[nonceKey]struct{}),
		bridges: make(map[common.Address]struct{}),
	}
}

// SetBridgeAllowList replaces the set of permitted bridge adapters. Written
// only by governance finalization.
func (c *Custodian) SetBridgeAllowList(adapters []common.Address) {
	c.bridges = make(map[common.Address]struct{}, len(adapters))
	for _, a := range adapters {
		c.bridges[a] = struct{}{}
	}
}

// SetMaxGasFeeFraction replaces the gas-fee cap. Written only by governance
// finalization.
func (c *Custodian) SetMaxGasFeeFraction(fraction int64) {
	c.cfg.MaxGasFeeFraction = fraction
}

// SetFundWallets replaces the reserved wallet addresses. Written only by
// governance finalization.
func (c *Custodian) SetFundWallets(feeWallet, insuranceFund, exitFund common.Address) {
	c.cfg.FeeWallet = feeWallet
	c.cfg.InsuranceFund = insuranceFund
	c.cfg.ExitFund = exitFund
}

// BridgeAllowed reports whether adapter is on the allow-list.
func (c *Custodian) BridgeAllowed(adapter common.Address) bool {
	_, ok := c.bridges[adapter]
	return ok
}

// Deposit credits quote collateral already received by external custody.
func (c *Custodian) Deposit(wallet common.Address, quantity int64) error {
	if quantity <= 0 {
		return errs.Validation("deposit quantity must be positive")
	}
	if c.ledger.Wallet(wallet).Exited() {
		return errs.Validation("exited wallet cannot deposit")
	}
	c.ledger.Adjust(wallet, quantity)
	return nil
}

// Withdraw validates a signed withdrawal and debits the gross quantity. The
// net (gross minus gas fee) leaves the engine toward external custody; the
// gas fee is credited to the fee wallet. Returns the net quantity.
func (c *Custodian) Withdraw(w *Withdrawal, sig []byte, nowMs int64) (int64, error) {
	if err := c.validateSignedMessage(w.Wallet, w.Nonce, w.SignatureHashVersion, w.Hash(), sig, nowMs); err != nil {
		return 0, err
	}
	if c.ledger.Wallet(w.Wallet).Exited() {
		return 0, errs.Validation("exited wallet must withdraw via exit")
	}
	if w.Quantity <= 0 {
		return 0, errs.Validation("withdrawal quantity must be positive")
	}
	if w.GasFee < 0 {
		return 0, errs.Validation("gas fee must not be negative")
	}
	if w.GasFee > pip.Multiply(w.Quantity, c.cfg.MaxGasFeeFraction) {
		return 0, errs.Validation("excessive withdrawal gas fee")
	}
	if w.BridgeAdapter != (common.Address{}) && !c.BridgeAllowed(w.BridgeAdapter) {
		return 0, errs.Validation("bridge adapter not allow-listed")
	}

	c.ledger.Adjust(w.Wallet, -w.Quantity)
	c.ledger.Adjust(c.cfg.FeeWallet, w.GasFee)
	ok, err := c.margin.MeetsInitialMargin(w.Wallet)
	if err == nil && !ok {
		err = errs.Insufficiency("initial margin requirement not met")
	}
	if err != nil {
		c.ledger.Adjust(w.Wallet, w.Quantity)
		c.ledger.Adjust(c.cfg.FeeWallet, -w.GasFee)
		return 0, err
	}

	c.used[nonceKey{w.Wallet, w.Nonce}] = struct{}{}
	return pip.Sub(w.Quantity, w.GasFee), nil
}

// WithdrawExit pays out an exited wallet's entire remaining balance once the
// exit delay has elapsed and every position has been closed. Returns the
// quantity paid out.
func (c *Custodian) WithdrawExit(wallet common.Address, nowMs int64) (int64, error) {
	w := c.ledger.Wallet(wallet)
	if !w.Exited() {
		return 0, errs.Validation("wallet has not exited")
	}
	if nowMs < w.ExitedAtMs+c.cfg.ExitDelayMs {
		return 0, errs.Validation("exit delay has not elapsed")
	}
	if len(c.ledger.PositionsOf(wallet)) != 0 {
		return 0, errs.Validation("exited wallet still holds positions")
	}
	balance := c.ledger.Balance(wallet)
	if balance <= 0 {
		return 0, errs.Insufficiency("no balance to withdraw")
	}
	c.ledger.Adjust(wallet, -balance)
	return balance, nil
}

// Transfer moves quote collateral between wallets inside the engine. The
// source must retain its initial margin; reserved funds and exited wallets
// cannot receive.
func (c *Custodian) Transfer(t *Transfer, sig []byte, nowMs int64) error {
	if err := c.validateSignedMessage(t.Source, t.Nonce, t.SignatureHashVersion, t.Hash(), sig, nowMs); err != nil {
		return err
	}
	if t.Quantity <= 0 {
		return errs.Validation("transfer quantity must be positive")
	}
	if t.Source == t.Destination {
		return errs.Validation("transfer source and destination must differ")
	}
	if c.ledger.Wallet(t.Source).Exited() {
		return errs.Validation("exited wallet cannot transfer")
	}
	if t.Destination == c.cfg.InsuranceFund || t.Destination == c.cfg.ExitFund {
		return errs.Validation("cannot transfer to a reserved fund wallet")
	}
	if c.ledger.Wallet(t.Destination).Exited() {
		return errs.Validation("cannot transfer to an exited wallet")
	}

	c.ledger.Adjust(t.Source, -t.Quantity)
	ok, err := c.margin.MeetsInitialMargin(t.Source)
	if err == nil && !ok {
		err = errs.Insufficiency("initial margin requirement not met")
	}
	if err != nil {
		c.ledger.Adjust(t.Source, t.Quantity)
		return err
	}
	c.ledger.Adjust(t.Destination, t.Quantity)

	c.used[nonceKey{t.Source, t.Nonce}] = struct{}{}
	return nil
}

// validateSignedMessage covers hash version, nonce reuse, the wallet's
// invalidation cutoff, and the wallet signature.
func (c *Custodian) validateSignedMessage(wallet common.Address, nonce uuid.UUID, version uint8, hash [32]byte, sig []byte, nowMs int64) error {
	if version != auth.SignatureHashVersion {
		return errs.Validation("signature hash version mismatch: got %d, want %d", version, auth.SignatureHashVersion)
	}
	if _, dup := c.used[nonceKey{wallet, nonce}]; dup {
		return errs.Conflict("nonce already used")
	}
	w := c.ledger.Wallet(wallet)
	if err := w.Nonces.ValidateNonce(nonce, nowMs, c.cfg.NoncePropagationDelayMs); err != nil {
		return err
	}
	if err := auth.VerifySignature(hash, sig, wallet); err != nil {
		return errs.Validation("invalid signature: %v", err)
	}
	return nil
}
