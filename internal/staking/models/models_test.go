package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccms/internal/asset"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

const (
	controller domain.AccountID = "controller"
	escrow     domain.AccountID = "escrow"
	cct        domain.AssetID   = 1001
)

func initialized(threshold uint64) *Config {
	cfg := NewConfig(controller, escrow)
	cfg.ApplyInitialization(cct, threshold)
	return cfg
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(controller, escrow)
	assert.Equal(t, DefaultGovernanceThreshold, cfg.GovernanceThreshold)
	assert.False(t, cfg.Initialized)
	assert.Zero(t, cfg.TotalStaked)
}

func TestVoteWeightBoundaryIsInclusive(t *testing.T) {
	cfg := initialized(10)
	assert.Equal(t, uint64(1), cfg.VoteWeight(0))
	assert.Equal(t, uint64(1), cfg.VoteWeight(9))
	assert.Equal(t, uint64(2), cfg.VoteWeight(10))
	assert.Equal(t, uint64(2), cfg.VoteWeight(math.MaxUint64))

	assert.Equal(t, uint64(2), initialized(0).VoteWeight(0), "zero threshold doubles everyone")
}

func TestCheckDeposit(t *testing.T) {
	cfg := initialized(10)
	valid := asset.Transfer{ID: domain.NewTransferID(), AssetID: cct, From: "alice", To: escrow, Amount: 5}
	require.NoError(t, cfg.CheckDeposit("alice", valid))

	tests := []struct {
		name   string
		mutate func(*asset.Transfer)
		want   string
	}{
		{"wrong asset", func(tr *asset.Transfer) { tr.AssetID = 7 }, "staked asset"},
		{"wrong recipient", func(tr *asset.Transfer) { tr.To = "bob" }, "escrow"},
		{"zero amount", func(tr *asset.Transfer) { tr.Amount = 0 }, "positive"},
		{"someone else's transfer", func(tr *asset.Transfer) { tr.From = "bob" }, "caller"},
		{"escrow as sender", func(tr *asset.Transfer) { tr.From = escrow }, "own holding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.mutate(&tr)
			err := cfg.CheckDeposit("alice", tr)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDeposit))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("escrow staking its own receipt", func(t *testing.T) {
		tr := valid
		tr.From = escrow
		err := cfg.CheckDeposit(escrow, tr)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDeposit))
	})
}

func TestStakeThenWithdrawRestoresBalances(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := initialized(10)
	cfg.TotalStaked = 40
	a := &Account{ID: "alice", StakedBalance: 15}

	require.NoError(t, a.ApplyStake(cfg, 7, now))
	assert.Equal(t, uint64(22), a.StakedBalance)
	assert.Equal(t, uint64(47), cfg.TotalStaked)

	require.NoError(t, a.CanWithdraw(7))
	a.ApplyWithdraw(cfg, 7, now)
	assert.Equal(t, uint64(15), a.StakedBalance)
	assert.Equal(t, uint64(40), cfg.TotalStaked)
}

func TestApplyStakeOverflowLeavesStateUnchanged(t *testing.T) {
	now := time.Now()

	t.Run("account balance", func(t *testing.T) {
		cfg := initialized(10)
		a := &Account{ID: "alice", StakedBalance: math.MaxUint64}
		err := a.ApplyStake(cfg, 1, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOverflow))
		assert.Equal(t, uint64(math.MaxUint64), a.StakedBalance)
		assert.Zero(t, cfg.TotalStaked)
	})

	t.Run("total staked", func(t *testing.T) {
		cfg := initialized(10)
		cfg.TotalStaked = math.MaxUint64
		a := &Account{ID: "alice"}
		err := a.ApplyStake(cfg, 1, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOverflow))
		assert.Zero(t, a.StakedBalance)
		assert.Equal(t, uint64(math.MaxUint64), cfg.TotalStaked)
	})
}

func TestCanWithdraw(t *testing.T) {
	a := &Account{ID: "alice", StakedBalance: 9}
	assert.True(t, dErrors.HasCode(a.CanWithdraw(0), dErrors.CodeInvalidInput))
	assert.True(t, dErrors.HasCode(a.CanWithdraw(10), dErrors.CodeInsufficientBalance))
	assert.NoError(t, a.CanWithdraw(9))
}

func TestReconciliation(t *testing.T) {
	r := Reconciliation{TotalStaked: 10, EscrowHolding: 10}
	assert.True(t, r.Balanced())
	assert.True(t, r.Covered())

	r.EscrowHolding = 12
	assert.False(t, r.Balanced())
	assert.True(t, r.Covered())

	r.EscrowHolding = 8
	assert.False(t, r.Covered())
}
