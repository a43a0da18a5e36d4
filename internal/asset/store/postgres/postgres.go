// Package postgres persists asset holdings next to the staking tables.
// Every call joins the transaction carried by the context when there is one,
// so a withdrawal's outbound transfer commits or rolls back with the staking
// bookkeeping that caused it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ccms/internal/asset"
	"ccms/internal/ledger"
	"ccms/pkg/domain"
	txcontext "ccms/pkg/platform/tx"
)

// Schema creates the asset tables.
const Schema = `
CREATE TABLE IF NOT EXISTS asset_assets (
	asset_id   NUMERIC(20, 0) PRIMARY KEY,
	issuer     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS asset_holdings (
	asset_id NUMERIC(20, 0) NOT NULL REFERENCES asset_assets (asset_id),
	holder   TEXT NOT NULL,
	balance  NUMERIC(20, 0) NOT NULL DEFAULT 0,
	PRIMARY KEY (asset_id, holder)
);
CREATE TABLE IF NOT EXISTS asset_transfers (
	transfer_id UUID PRIMARY KEY,
	asset_id    NUMERIC(20, 0) NOT NULL,
	sender      TEXT NOT NULL,
	receiver    TEXT NOT NULL,
	amount      NUMERIC(20, 0) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store is a Postgres-backed asset.Ledger.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

var _ asset.Ledger = (*Store)(nil)

type Option func(*Store)

// WithTxTimeout bounds transactions the store opens itself.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns a store on db. Call Migrate before use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate assets: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// write runs fn in the caller's transaction, or in a new one.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, q querier) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(ctx, tx)
	}
	return txcontext.Run(ctx, s.db, nil, s.timeout, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, tx)
	})
}

func (s *Store) reader(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Mint(ctx context.Context, assetID domain.AssetID, issuer domain.AccountID, supply uint64) error {
	return s.write(ctx, func(ctx context.Context, q querier) error {
		res, err := q.ExecContext(ctx, `
			INSERT INTO asset_assets (asset_id, issuer) VALUES ($1, $2)
			ON CONFLICT (asset_id) DO NOTHING
		`, ledger.Numeric(assetID), string(issuer))
		if err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		if n == 0 {
			return asset.ErrAssetExists
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO asset_holdings (asset_id, holder, balance) VALUES ($1, $2, $3)
		`, ledger.Numeric(assetID), string(issuer), ledger.Numeric(supply)); err != nil {
			return fmt.Errorf("insert issuer holding: %w", err)
		}
		return nil
	})
}

func (s *Store) OptIn(ctx context.Context, assetID domain.AssetID, holder domain.AccountID) error {
	return s.write(ctx, func(ctx context.Context, q querier) error {
		if err := requireAsset(ctx, q, assetID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO asset_holdings (asset_id, holder) VALUES ($1, $2)
			ON CONFLICT (asset_id, holder) DO NOTHING
		`, ledger.Numeric(assetID), string(holder)); err != nil {
			return fmt.Errorf("opt in: %w", err)
		}
		return nil
	})
}

// Transfer locks both holdings in holder order, so transfers in opposite
// directions cannot deadlock.
func (s *Store) Transfer(ctx context.Context, assetID domain.AssetID, from, to domain.AccountID, amount uint64) (asset.Transfer, error) {
	if amount == 0 {
		return asset.Transfer{}, asset.ErrInvalidAmount
	}
	if from == to {
		return asset.Transfer{}, asset.ErrSelfTransfer
	}
	t := asset.Transfer{
		ID:      domain.NewTransferID(),
		AssetID: assetID,
		From:    from,
		To:      to,
		Amount:  amount,
	}
	err := s.write(ctx, func(ctx context.Context, q querier) error {
		if err := requireAsset(ctx, q, assetID); err != nil {
			return err
		}
		order := []domain.AccountID{from, to}
		if to < from {
			order = []domain.AccountID{to, from}
		}
		balances := make(map[domain.AccountID]uint64, 2)
		for _, holder := range order {
			var balance ledger.Numeric
			err := q.QueryRowContext(ctx, `
				SELECT balance FROM asset_holdings
				WHERE asset_id = $1 AND holder = $2
				FOR UPDATE
			`, ledger.Numeric(assetID), string(holder)).Scan(&balance)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("lock holding: %w", err)
			}
			balances[holder] = uint64(balance)
		}

		toBalance, opted := balances[to]
		if !opted {
			return asset.ErrNotOptedIn
		}
		fromBalance, err := ledger.SubUint64(balances[from], amount)
		if err != nil {
			return asset.ErrInsufficientFunds
		}
		if toBalance, err = ledger.AddUint64(toBalance, amount); err != nil {
			return asset.ErrSupplyOverflow
		}

		for holder, balance := range map[domain.AccountID]uint64{from: fromBalance, to: toBalance} {
			if _, err := q.ExecContext(ctx, `
				UPDATE asset_holdings SET balance = $3 WHERE asset_id = $1 AND holder = $2
			`, ledger.Numeric(assetID), string(holder), ledger.Numeric(balance)); err != nil {
				return fmt.Errorf("update holding: %w", err)
			}
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO asset_transfers (transfer_id, asset_id, sender, receiver, amount)
			VALUES ($1, $2, $3, $4, $5)
		`, t.ID.String(), ledger.Numeric(assetID), string(from), string(to), ledger.Numeric(amount)); err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return asset.Transfer{}, err
	}
	return t, nil
}

// Settled reports whether t matches a recorded transfer, field for field.
func (s *Store) Settled(ctx context.Context, t asset.Transfer) (bool, error) {
	if t.ID.IsNil() {
		return false, nil
	}
	var (
		assetID, amount  ledger.Numeric
		sender, receiver string
	)
	err := s.reader(ctx).QueryRowContext(ctx, `
		SELECT asset_id, sender, receiver, amount FROM asset_transfers WHERE transfer_id = $1
	`, t.ID.String()).Scan(&assetID, &sender, &receiver, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find transfer: %w", err)
	}
	recorded := asset.Transfer{
		ID:      t.ID,
		AssetID: domain.AssetID(assetID),
		From:    domain.AccountID(sender),
		To:      domain.AccountID(receiver),
		Amount:  uint64(amount),
	}
	return recorded == t, nil
}

// Balance returns holder's holding of assetID. Holders that never opted in
// hold zero.
func (s *Store) Balance(ctx context.Context, assetID domain.AssetID, holder domain.AccountID) (uint64, error) {
	q := s.reader(ctx)
	if err := requireAsset(ctx, q, assetID); err != nil {
		return 0, err
	}
	var balance ledger.Numeric
	err := q.QueryRowContext(ctx, `
		SELECT balance FROM asset_holdings WHERE asset_id = $1 AND holder = $2
	`, ledger.Numeric(assetID), string(holder)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read holding: %w", err)
	}
	return uint64(balance), nil
}

func requireAsset(ctx context.Context, q querier, assetID domain.AssetID) error {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM asset_assets WHERE asset_id = $1)`,
		ledger.Numeric(assetID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("find asset: %w", err)
	}
	if !exists {
		return asset.ErrUnknownAsset
	}
	return nil
}
