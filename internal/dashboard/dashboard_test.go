package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"ccms/internal/asset"
	repmodels "ccms/internal/reputation/models"
	repservice "ccms/internal/reputation/service"
	repmemory "ccms/internal/reputation/store/memory"
	stakeservice "ccms/internal/staking/service"
	stakememory "ccms/internal/staking/store/memory"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/testutil"
)

const (
	controller domain.AccountID = "controller"
	escrow     domain.AccountID = "escrow"
	issuer     domain.AccountID = "issuer"
)

const stakedAsset domain.AssetID = 7

type brokenStaking struct{}

func (brokenStaking) GetStake(context.Context, domain.AccountID) (uint64, error) {
	return 0, dErrors.Wrap(errors.New("connection reset"), dErrors.CodeInternal, "failed to access account")
}

func (brokenStaking) VoteWeight(context.Context, domain.AccountID) (uint64, error) {
	return 0, dErrors.New(dErrors.CodeUnknownAccount, "account is not registered")
}

type DashboardSuite struct {
	suite.Suite
	ctx        context.Context
	bank       *asset.Bank
	reputation *repservice.Service
	staking    *stakeservice.Service
	service    *Service
	router     http.Handler
}

func TestDashboardSuite(t *testing.T) {
	suite.Run(t, new(DashboardSuite))
}

func (s *DashboardSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.reputation = repservice.New(repmemory.New(controller), repservice.WithLogger(logger))
	_, err := s.reputation.Initialize(s.ctx, controller, repmodels.Weights{Attendance: 30, Voting: 25, Feedback: 20, Certification: 25})
	s.Require().NoError(err)

	s.bank = asset.NewBank()
	s.Require().NoError(s.bank.Mint(s.ctx, stakedAsset, issuer, 1_000))
	s.staking = stakeservice.New(stakememory.New(controller, escrow), s.bank, stakeservice.WithLogger(logger))
	_, err = s.staking.Initialize(s.ctx, controller, stakedAsset, 10)
	s.Require().NoError(err)

	s.service = NewService(s.reputation, s.staking)
	r := chi.NewRouter()
	NewHandler(s.service, logger).Register(r)
	s.router = r
}

func (s *DashboardSuite) stake(id domain.AccountID, amount uint64) {
	_, err := s.staking.Register(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.bank.OptIn(s.ctx, stakedAsset, id))
	_, err = s.bank.Transfer(s.ctx, stakedAsset, issuer, id, amount)
	s.Require().NoError(err)
	receipt, err := s.bank.Transfer(s.ctx, stakedAsset, id, escrow, amount)
	s.Require().NoError(err)
	_, err = s.staking.Stake(s.ctx, id, receipt)
	s.Require().NoError(err)
}

func (s *DashboardSuite) TestBothLedgers() {
	_, err := s.reputation.Register(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.reputation.UpdateScores(s.ctx, controller, "alice", repmodels.Delta{Voting: 2})
	s.Require().NoError(err)
	s.stake("alice", 12)

	view, err := s.service.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().NotNil(view.Reputation)
	s.Require().NotNil(view.Staking)
	s.Equal(uint64(50), view.Reputation.Composite)
	s.Equal(uint64(12), view.Staking.StakedBalance)
	s.Equal(uint64(2), view.Staking.VoteWeight)
}

func (s *DashboardSuite) TestPartialView() {
	s.stake("bob", 3)

	view, err := s.service.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.Nil(view.Reputation)
	s.Require().NotNil(view.Staking)
	s.Equal(uint64(1), view.Staking.VoteWeight)
}

func (s *DashboardSuite) TestUnknownEverywhere() {
	_, err := s.service.Get(s.ctx, "nobody")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownAccount))
}

func (s *DashboardSuite) TestReadFailureIsReturned() {
	_, err := s.reputation.Register(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = NewService(s.reputation, brokenStaking{}).Get(s.ctx, "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *DashboardSuite) TestHTTP() {
	s.stake("bob", 3)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard/bob"))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[Response](s.T(), rr)
	s.Nil(resp.Reputation)
	s.Require().NotNil(resp.Staking)
	s.Equal(uint64(3), resp.Staking.StakedBalance)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard/nobody"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_account")
}
