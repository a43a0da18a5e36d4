// Package ports declares the persistence contracts of the reputation ledger.
package ports

import (
	"context"

	"ccms/internal/reputation/models"
	"ccms/pkg/domain"
)

// Store is the transactional view of reputation state handed to a unit of
// work. Implementations return sentinel errors:
//   - CreateAccount: sentinel.ErrAlreadyUsed when the account exists
//   - FindAccount, SaveAccount: sentinel.ErrNotFound when the account does not
//
// CreateAccount increments the config's TotalUsers in the same unit of work;
// SaveConfig ignores TotalUsers.
type Store interface {
	LoadConfig(ctx context.Context) (*models.Config, error)
	SaveConfig(ctx context.Context, cfg *models.Config) error
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccount(ctx context.Context, id domain.AccountID) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	// FindAccounts returns the registered subset of ids; unknown ids are skipped.
	FindAccounts(ctx context.Context, ids []domain.AccountID) ([]*models.Account, error)
}

// Ledger is the atomic-operation boundary. RunInTx commits every write made
// through the store only if fn returns nil. View gives fn a consistent
// read-only store.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	View(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
