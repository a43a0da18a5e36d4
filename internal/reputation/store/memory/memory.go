// Package memory keeps reputation state in process. Every unit of work runs
// against a clone that replaces the committed state only on success.
package memory

import (
	"context"
	"time"

	"ccms/internal/ledger"
	"ccms/internal/reputation/models"
	"ccms/internal/reputation/ports"
	"ccms/pkg/domain"
	"ccms/pkg/platform/sentinel"
)

type state struct {
	config   models.Config
	accounts *ledger.Registry[models.Account]
}

func (s *state) Clone() *state {
	return &state{config: s.config, accounts: s.accounts.Clone()}
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

// New returns an uninitialized ledger owned by controller.
func New(controller domain.AccountID, opts ...Option) *Ledger {
	l := &Ledger{snap: ledger.NewSnapshot(&state{
		config:   *models.NewConfig(controller),
		accounts: ledger.NewRegistry[models.Account](),
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

func (s *store) FindAccounts(_ context.Context, ids []domain.AccountID) ([]*models.Account, error) {
	out := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		account, err := s.st.accounts.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, &account)
	}
	return out, nil
}
