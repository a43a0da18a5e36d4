// Package ports declares the persistence and collaborator contracts of the
// staking ledger.
package ports

import (
	"context"

	"ccms/internal/asset"
	"ccms/internal/staking/models"
	"ccms/pkg/domain"
)

// Store is the transactional view of staking state handed to a unit of work.
// Implementations return sentinel errors:
//   - CreateAccount: sentinel.ErrAlreadyUsed when the account exists
//   - FindAccount, SaveAccount: sentinel.ErrNotFound when the account does not
//   - RecordDeposit: sentinel.ErrAlreadyUsed when the transfer was credited before
//
// CreateAccount increments the config's TotalUsers in the same unit of work;
// SaveConfig ignores TotalUsers.
type Store interface {
	LoadConfig(ctx context.Context) (*models.Config, error)
	SaveConfig(ctx context.Context, cfg *models.Config) error
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccount(ctx context.Context, id domain.AccountID) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	RecordDeposit(ctx context.Context, transfer asset.Transfer) error
}

// Ledger is the atomic-operation boundary. RunInTx commits every write made
// through the store only if fn returns nil. View gives fn a consistent
// read-only store.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	View(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// AssetTransferer moves the staked asset. asset.Bank and the asset Postgres
// store implement it; the store joins the transaction carried by ctx.
type AssetTransferer interface {
	OptIn(ctx context.Context, assetID domain.AssetID, holder domain.AccountID) error
	Settled(ctx context.Context, transfer asset.Transfer) (bool, error)
	Transfer(ctx context.Context, assetID domain.AssetID, from, to domain.AccountID, amount uint64) (asset.Transfer, error)
	Balance(ctx context.Context, assetID domain.AssetID, holder domain.AccountID) (uint64, error)
}
