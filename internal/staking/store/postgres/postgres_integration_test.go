//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ccms/internal/asset"
	assetpostgres "ccms/internal/asset/store/postgres"
	"ccms/internal/staking/models"
	"ccms/internal/staking/ports"
	"ccms/internal/staking/service"
	"ccms/internal/staking/store/postgres"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/sentinel"
	"ccms/pkg/testutil/containers"
)

const (
	controller domain.AccountID = "controller"
	escrow     domain.AccountID = "escrow"
	issuer     domain.AccountID = "issuer"
)

const stakedAsset domain.AssetID = 7

type PostgresSuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	ledger  *postgres.Ledger
	bank    *assetpostgres.Store
	service *service.Service
	ctx     context.Context
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.ledger = postgres.New(s.pg.DB)
	s.Require().NoError(s.ledger.Migrate(s.ctx))
	s.bank = assetpostgres.New(s.pg.DB)
	s.Require().NoError(s.bank.Migrate(s.ctx))
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx,
		"staking_deposits", "staking_accounts", "staking_config",
		"asset_transfers", "asset_holdings", "asset_assets",
	))
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, controller, escrow))
	s.Require().NoError(s.bank.Mint(s.ctx, stakedAsset, issuer, math.MaxUint64))
	s.service = service.New(s.ledger, s.bank)
}

func (s *PostgresSuite) fund(id domain.AccountID, amount uint64) {
	_, err := s.service.Register(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.bank.OptIn(s.ctx, stakedAsset, id))
	_, err = s.bank.Transfer(s.ctx, stakedAsset, issuer, id, amount)
	s.Require().NoError(err)
}

func (s *PostgresSuite) deposit(from domain.AccountID, amount uint64) asset.Transfer {
	receipt, err := s.bank.Transfer(s.ctx, stakedAsset, from, escrow, amount)
	s.Require().NoError(err)
	return receipt
}

func (s *PostgresSuite) TestBootstrapRejectsDifferentIdentities() {
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, controller, escrow))
	s.ErrorIs(s.ledger.Bootstrap(s.ctx, controller, "other-escrow"), postgres.ErrIdentityMismatch)
	s.ErrorIs(s.ledger.Bootstrap(s.ctx, "someone-else", escrow), postgres.ErrIdentityMismatch)
}

func (s *PostgresSuite) TestLifecycle() {
	s.fund("alice", 100)

	early := asset.Transfer{ID: domain.NewTransferID(), AssetID: stakedAsset, From: "alice", To: escrow, Amount: 10}
	_, err := s.service.Stake(s.ctx, "alice", early)
	s.True(dErrors.HasCode(err, dErrors.CodeNotInitialized))

	_, err = s.service.Initialize(s.ctx, controller, stakedAsset, models.DefaultGovernanceThreshold)
	s.Require().NoError(err)

	balance, err := s.service.Stake(s.ctx, "alice", s.deposit("alice", 10))
	s.Require().NoError(err)
	s.Equal(uint64(10), balance)

	weight, err := s.service.VoteWeight(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(models.VoteWeightStaked, weight)

	balance, err = s.service.Withdraw(s.ctx, "alice", 1)
	s.Require().NoError(err)
	s.Equal(uint64(9), balance)

	cfg, err := s.service.Config(s.ctx)
	s.Require().NoError(err)
	s.True(cfg.Initialized)
	s.Equal(stakedAsset, cfg.AssetID)
	s.Equal(uint64(9), cfg.TotalStaked)
	s.Equal(uint64(1), cfg.TotalUsers)

	r, err := s.service.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(9), r.TotalStaked)
	s.Equal(uint64(9), r.EscrowHolding)
	s.True(r.Balanced())
}

func (s *PostgresSuite) TestReplayedDepositIsCreditedOnce() {
	_, err := s.service.Initialize(s.ctx, controller, stakedAsset, 10)
	s.Require().NoError(err)
	s.fund("alice", 100)
	receipt := s.deposit("alice", 5)

	_, err = s.service.Stake(s.ctx, "alice", receipt)
	s.Require().NoError(err)
	_, err = s.service.Stake(s.ctx, "alice", receipt)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidDeposit))

	stake, err := s.service.GetStake(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(uint64(5), stake)
}

func (s *PostgresSuite) TestLargeBalancesRoundTrip() {
	_, err := s.service.Initialize(s.ctx, controller, stakedAsset, math.MaxUint64)
	s.Require().NoError(err)
	s.fund("whale", math.MaxUint64-issuerReserve)

	balance, err := s.service.Stake(s.ctx, "whale", s.deposit("whale", math.MaxUint64-issuerReserve))
	s.Require().NoError(err)
	s.Equal(uint64(math.MaxUint64-issuerReserve), balance)

	cfg, err := s.service.Config(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(math.MaxUint64), cfg.GovernanceThreshold)
	s.Equal(uint64(math.MaxUint64-issuerReserve), cfg.TotalStaked)
}

// issuerReserve is kept by the issuer so other accounts can still be funded.
const issuerReserve = 1_000

func (s *PostgresSuite) TestConcurrentStakesSerialize() {
	_, err := s.service.Initialize(s.ctx, controller, stakedAsset, 10)
	s.Require().NoError(err)
	s.fund("alice", 1_000)

	const n = 20
	receipts := make([]asset.Transfer, n)
	for i := range receipts {
		receipts[i] = s.deposit("alice", 3)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, receipt := range receipts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
			defer cancel()
			_, err := s.service.Stake(ctx, "alice", receipt)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	stake, err := s.service.GetStake(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(uint64(3*n), stake)
	r, err := s.service.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.True(r.Balanced())
}

func (s *PostgresSuite) TestFailedUnitOfWorkRollsBack() {
	_, err := s.service.Register(s.ctx, "alice")
	s.Require().NoError(err)
	deposit := asset.Transfer{ID: domain.NewTransferID(), AssetID: stakedAsset, From: "alice", To: escrow, Amount: 3}

	err = s.ledger.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		s.Require().NoError(st.RecordDeposit(ctx, deposit))
		cfg, err := st.LoadConfig(ctx)
		s.Require().NoError(err)
		account, err := st.FindAccount(ctx, "alice")
		s.Require().NoError(err)
		s.Require().NoError(account.ApplyStake(cfg, deposit.Amount, time.Now().UTC()))
		s.Require().NoError(st.SaveAccount(ctx, account))
		s.Require().NoError(st.SaveConfig(ctx, cfg))
		return errors.New("abort")
	})
	s.Require().Error(err)

	stake, err := s.service.GetStake(s.ctx, "alice")
	s.Require().NoError(err)
	s.Zero(stake)
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		return st.RecordDeposit(ctx, deposit)
	}), "a rolled back deposit can be credited later")
}

func (s *PostgresSuite) holding(id domain.AccountID) uint64 {
	balance, err := s.bank.Balance(s.ctx, stakedAsset, id)
	s.Require().NoError(err)
	return balance
}

func (s *PostgresSuite) TestEscrowHoldingSurvivesRestart() {
	_, err := s.service.Initialize(s.ctx, controller, stakedAsset, 10)
	s.Require().NoError(err)
	s.fund("alice", 100)
	_, err = s.service.Stake(s.ctx, "alice", s.deposit("alice", 30))
	s.Require().NoError(err)

	ledger := postgres.New(s.pg.DB)
	s.Require().NoError(ledger.Bootstrap(s.ctx, controller, escrow))
	restarted := service.New(ledger, assetpostgres.New(s.pg.DB))

	balance, err := restarted.Withdraw(s.ctx, "alice", 30)
	s.Require().NoError(err)
	s.Zero(balance)
	s.Equal(uint64(100), s.holding("alice"))
	s.Zero(s.holding(escrow))

	r, err := restarted.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.True(r.Balanced())
}

func (s *PostgresSuite) TestOutboundTransferRollsBackWithBookkeeping() {
	_, err := s.service.Initialize(s.ctx, controller, stakedAsset, 10)
	s.Require().NoError(err)
	s.fund("alice", 100)
	_, err = s.service.Stake(s.ctx, "alice", s.deposit("alice", 20))
	s.Require().NoError(err)

	err = s.ledger.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		cfg, err := st.LoadConfig(ctx)
		s.Require().NoError(err)
		account, err := st.FindAccount(ctx, "alice")
		s.Require().NoError(err)
		account.ApplyWithdraw(cfg, 20, time.Now().UTC())
		s.Require().NoError(st.SaveAccount(ctx, account))
		s.Require().NoError(st.SaveConfig(ctx, cfg))
		_, err = s.bank.Transfer(ctx, stakedAsset, escrow, "alice", 20)
		s.Require().NoError(err)
		return errors.New("commit refused")
	})
	s.Require().Error(err)

	stake, err := s.service.GetStake(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(uint64(20), stake)
	s.Equal(uint64(20), s.holding(escrow), "the transfer rolled back with the stake")
	s.Equal(uint64(80), s.holding("alice"))
}

func (s *PostgresSuite) TestStoreSentinels() {
	err := s.ledger.View(s.ctx, func(ctx context.Context, st ports.Store) error {
		_, err := st.FindAccount(ctx, "nobody")
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.ledger.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		return st.SaveAccount(ctx, models.NewAccount("nobody", time.Now().UTC()))
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
