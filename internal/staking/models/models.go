package models

import (
	"time"

	"ccms/internal/asset"
	"ccms/internal/ledger"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

// DefaultGovernanceThreshold is the stake needed for a double vote until
// initialization sets another value.
const DefaultGovernanceThreshold uint64 = 10

const (
	VoteWeightBase   uint64 = 1
	VoteWeightStaked uint64 = 2
)

// Config is the staking ledger's global configuration.
type Config struct {
	ledger.Guard
	// Escrow holds every staked unit. It is fixed at ledger creation.
	Escrow              domain.AccountID
	AssetID             domain.AssetID
	GovernanceThreshold uint64
	TotalStaked         uint64
	TotalUsers          uint64
}

// NewConfig returns an uninitialized configuration.
func NewConfig(controller, escrow domain.AccountID) *Config {
	return &Config{
		Guard:               ledger.NewGuard(controller),
		Escrow:              escrow,
		GovernanceThreshold: DefaultGovernanceThreshold,
	}
}

// ApplyInitialization fixes the staked asset and threshold. Call only after
// CanInitialize succeeded.
func (c *Config) ApplyInitialization(assetID domain.AssetID, threshold uint64) {
	c.AssetID = assetID
	c.GovernanceThreshold = threshold
	c.Guard.ApplyInitialization()
}

// VoteWeight derives the governance multiplier for a staked balance. The
// threshold is inclusive.
func (c *Config) VoteWeight(staked uint64) uint64 {
	if staked >= c.GovernanceThreshold {
		return VoteWeightStaked
	}
	return VoteWeightBase
}

// CheckDeposit validates the shape of an inbound transfer presented by
// caller: the staked asset, sent by caller to the escrow, positive amount.
//
// Errors: CodeInvalidDeposit naming the first mismatch.
func (c *Config) CheckDeposit(caller domain.AccountID, t asset.Transfer) error {
	switch {
	case t.AssetID != c.AssetID:
		return dErrors.New(dErrors.CodeInvalidDeposit, "deposit is not the staked asset")
	case t.To != c.Escrow:
		return dErrors.New(dErrors.CodeInvalidDeposit, "deposit must be sent to the escrow")
	case t.Amount == 0:
		return dErrors.New(dErrors.CodeInvalidDeposit, "deposit amount must be positive")
	case t.From == c.Escrow:
		return dErrors.New(dErrors.CodeInvalidDeposit, "escrow cannot stake its own holding")
	case t.From != caller:
		return dErrors.New(dErrors.CodeInvalidDeposit, "deposit must be sent by the caller")
	}
	return nil
}

// Account is the per-account staking record.
type Account struct {
	ID            domain.AccountID
	StakedBalance uint64
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}

// NewAccount returns a record with nothing staked.
func NewAccount(id domain.AccountID, now time.Time) *Account {
	return &Account{ID: id, RegisteredAt: now, UpdatedAt: now}
}

// ApplyStake credits amount to the account and to cfg.TotalStaked. Neither
// is changed when an error is returned.
//
// Errors: CodeOverflow when either accumulator would exceed 64 bits.
func (a *Account) ApplyStake(cfg *Config, amount uint64, now time.Time) error {
	balance, err := ledger.AddUint64(a.StakedBalance, amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeOverflow, "staked balance overflows")
	}
	total, err := ledger.AddUint64(cfg.TotalStaked, amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeOverflow, "total staked overflows")
	}
	a.StakedBalance = balance
	a.UpdatedAt = now
	cfg.TotalStaked = total
	return nil
}

// CanWithdraw checks that amount is positive and covered by the balance.
func (a *Account) CanWithdraw(amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "withdraw amount must be positive")
	}
	if a.StakedBalance < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "withdraw amount exceeds staked balance")
	}
	return nil
}

// ApplyWithdraw debits amount from the account and cfg.TotalStaked. Call only
// after CanWithdraw succeeded.
func (a *Account) ApplyWithdraw(cfg *Config, amount uint64, now time.Time) {
	a.StakedBalance -= amount
	a.UpdatedAt = now
	cfg.TotalStaked -= amount
}

// Reconciliation compares the ledger's bookkeeping with the escrow's actual
// holding of the staked asset.
type Reconciliation struct {
	AssetID       domain.AssetID
	Escrow        domain.AccountID
	TotalStaked   uint64
	EscrowHolding uint64
}

// Balanced reports whether every held unit is accounted for and vice versa.
func (r Reconciliation) Balanced() bool {
	return r.TotalStaked == r.EscrowHolding
}

// Covered reports whether the escrow holds at least what is owed to stakers.
// A surplus is deposits that have not been staked yet.
func (r Reconciliation) Covered() bool {
	return r.EscrowHolding >= r.TotalStaked
}
