// Package memory keeps staking state in process behind a copy-then-swap
// snapshot.
package memory

import (
	"context"
	"maps"
	"time"

	"ccms/internal/asset"
	"ccms/internal/ledger"
	"ccms/internal/staking/models"
	"ccms/internal/staking/ports"
	"ccms/pkg/domain"
	"ccms/pkg/platform/sentinel"
)

type state struct {
	config   models.Config
	accounts *ledger.Registry[models.Account]
	deposits map[domain.TransferID]asset.Transfer
}

func (s *state) Clone() *state {
	return &state{
		config:   s.config,
		accounts: s.accounts.Clone(),
		deposits: maps.Clone(s.deposits),
	}
}

// Ledger is an in-memory ports.Ledger.
type Ledger struct {
	snap *ledger.Snapshot[*state]
}

type Option func(*Ledger)

// WithTxTimeout bounds operations whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.snap.SetTimeout(d)
	}
}

// New returns an uninitialized ledger owned by controller whose stake is
// held by escrow.
func New(controller, escrow domain.AccountID, opts ...Option) *Ledger {
	l := &Ledger{snap: ledger.NewSnapshot(&state{
		config:   *models.NewConfig(controller, escrow),
		accounts: ledger.NewRegistry[models.Account](),
		deposits: make(map[domain.TransferID]asset.Transfer),
	})}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return l.snap.Update(ctx, func(ctx context.Context, draft *state) error {
		return fn(ctx, &store{st: draft})
	})
}

func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return l.snap.View(ctx, func(ctx context.Context, committed *state) error {
		return fn(ctx, &store{st: committed, readOnly: true})
	})
}

type store struct {
	st       *state
	readOnly bool
}

func (s *store) LoadConfig(_ context.Context) (*models.Config, error) {
	cfg := s.st.config
	cfg.TotalUsers = s.st.accounts.Total()
	return &cfg, nil
}

func (s *store) SaveConfig(_ context.Context, cfg *models.Config) error {
	if s.readOnly {
		return sentinel.ErrInvalidState
	}
	s.st.config = *cfg
	return nil
}

func (s *store) CreateAccount(_ context.Context, account *models.Account) error {
	if s.readOnly {
		return sentinel.ErrInvalidState
	}
	return s.st.accounts.Register(account.ID, *account)
}

func (s *store) FindAccount(_ context.Context, id domain.AccountID) (*models.Account, error) {
	account, err := s.st.accounts.Lookup(id)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *store) SaveAccount(_ context.Context, account *models.Account) error {
	if s.readOnly {
		return sentinel.ErrInvalidState
	}
	return s.st.accounts.Put(account.ID, *account)
}

func (s *store) RecordDeposit(_ context.Context, transfer asset.Transfer) error {
	if s.readOnly {
		return sentinel.ErrInvalidState
	}
	if _, ok := s.st.deposits[transfer.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.st.deposits[transfer.ID] = transfer
	return nil
}
