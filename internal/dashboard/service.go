// Package dashboard composes one account's view across both ledgers.
package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	repmodels "ccms/internal/reputation/models"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

// ReputationReader is the reputation read the dashboard needs.
type ReputationReader interface {
	GetAllScores(ctx context.Context, account domain.AccountID) (*repmodels.Account, error)
}

// StakingReader is the staking reads the dashboard needs.
type StakingReader interface {
	GetStake(ctx context.Context, account domain.AccountID) (uint64, error)
	VoteWeight(ctx context.Context, account domain.AccountID) (uint64, error)
}

// View is an account's dashboard. A nil section means the account is not
// registered with that ledger.
type View struct {
	Account    domain.AccountID
	Reputation *ReputationSection
	Staking    *StakingSection
}

type ReputationSection struct {
	Scores    repmodels.Scores
	Composite uint64
}

type StakingSection struct {
	StakedBalance uint64
	VoteWeight    uint64
}

// Service reads both ledgers concurrently.
type Service struct {
	reputation ReputationReader
	staking    StakingReader
}

func NewService(reputation ReputationReader, staking StakingReader) *Service {
	return &Service{reputation: reputation, staking: staking}
}

// Get returns the sections that exist for account. The stake and the vote
// weight are separate reads and may straddle a concurrent stake change.
//
// Errors: CodeUnknownAccount when neither ledger knows the account; the
// first other read error otherwise.
func (s *Service) Get(ctx context.Context, account domain.AccountID) (*View, error) {
	var (
		scores           *repmodels.Account
		stake, weight    uint64
		staked, weighted bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.reputation.GetAllScores(gctx, account)
		if err != nil {
			return ignoreUnknown(err)
		}
		scores = a
		return nil
	})
	g.Go(func() error {
		b, err := s.staking.GetStake(gctx, account)
		if err != nil {
			return ignoreUnknown(err)
		}
		stake, staked = b, true
		return nil
	})
	g.Go(func() error {
		w, err := s.staking.VoteWeight(gctx, account)
		if err != nil {
			return ignoreUnknown(err)
		}
		weight, weighted = w, true
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &View{Account: account}
	if scores != nil {
		view.Reputation = &ReputationSection{Scores: scores.Scores, Composite: scores.Composite}
	}
	if staked && weighted {
		view.Staking = &StakingSection{StakedBalance: stake, VoteWeight: weight}
	}
	if view.Reputation == nil && view.Staking == nil {
		return nil, dErrors.New(dErrors.CodeUnknownAccount, "account is not registered with any ledger")
	}
	return view, nil
}

func ignoreUnknown(err error) error {
	if dErrors.HasCode(err, dErrors.CodeUnknownAccount) {
		return nil
	}
	return err
}
