// Package postgres persists staking state. Every mutation runs in one
// transaction that first locks the config row, so writers are serialized.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ccms/internal/asset"
	"ccms/internal/ledger"
	"ccms/internal/staking/models"
	"ccms/internal/staking/ports"
	"ccms/pkg/domain"
	"ccms/pkg/platform/sentinel"
	txcontext "ccms/pkg/platform/tx"
)

// Schema creates the staking tables.
const Schema = `
CREATE TABLE IF NOT EXISTS staking_config (
	id                   SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	controller           TEXT NOT NULL,
	escrow               TEXT NOT NULL,
	initialized          BOOLEAN NOT NULL DEFAULT FALSE,
	asset_id             NUMERIC(20, 0) NOT NULL DEFAULT 0,
	governance_threshold NUMERIC(20, 0) NOT NULL DEFAULT 10,
	total_staked         NUMERIC(20, 0) NOT NULL DEFAULT 0,
	total_users          NUMERIC(20, 0) NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS staking_accounts (
	account        TEXT PRIMARY KEY,
	staked_balance NUMERIC(20, 0) NOT NULL DEFAULT 0,
	registered_at  TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS staking_deposits (
	transfer_id UUID PRIMARY KEY,
	account     TEXT NOT NULL,
	asset_id    NUMERIC(20, 0) NOT NULL,
	amount      NUMERIC(20, 0) NOT NULL,
	credited_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// ErrIdentityMismatch is returned by Bootstrap when the persisted ledger was
// created for a different controller or escrow.
var ErrIdentityMismatch = errors.New("persisted staking identities differ from configured identities")

// Ledger is a Postgres-backed ports.Ledger.
type Ledger struct {
	db      *sql.DB
	timeout time.Duration
}

type Option func(*Ledger)

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.timeout = d
	}
}

// New returns a ledger on db. Call Migrate and Bootstrap before use.
func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Migrate creates the tables if needed.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate staking: %w", err)
	}
	return nil
}

// Bootstrap creates the config row on first start and checks that an
// existing row has the same controller and escrow.
func (l *Ledger) Bootstrap(ctx context.Context, controller, escrow domain.AccountID) error {
	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO staking_config (id, controller, escrow, governance_threshold)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, string(controller), string(escrow), ledger.Numeric(models.DefaultGovernanceThreshold)); err != nil {
		return fmt.Errorf("bootstrap staking config: %w", err)
	}
	var persistedController, persistedEscrow string
	if err := l.db.QueryRowContext(ctx,
		`SELECT controller, escrow FROM staking_config WHERE id = 1`,
	).Scan(&persistedController, &persistedEscrow); err != nil {
		return fmt.Errorf("read staking identities: %w", err)
	}
	if domain.AccountID(persistedController) != controller || domain.AccountID(persistedEscrow) != escrow {
		return ErrIdentityMismatch
	}
	return nil
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return txcontext.Run(ctx, l.db, nil, l.timeout, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM staking_config WHERE id = 1 FOR UPDATE`); err != nil {
			return fmt.Errorf("lock staking config: %w", err)
		}
		return fn(ctx, &store{q: tx})
	})
}

func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return txcontext.Run(ctx, l.db, opts, l.timeout, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &store{q: tx})
	})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type store struct {
	q querier
}

func (s *store) LoadConfig(ctx context.Context) (*models.Config, error) {
	var (
		controller, escrow               string
		assetID, threshold, total, users ledger.Numeric
		cfg                              models.Config
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT controller, escrow, initialized, asset_id, governance_threshold,
			   total_staked, total_users
		FROM staking_config WHERE id = 1
	`).Scan(&controller, &escrow, &cfg.Initialized, &assetID, &threshold, &total, &users)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load staking config: %w", err)
	}
	cfg.Controller = domain.AccountID(controller)
	cfg.Escrow = domain.AccountID(escrow)
	cfg.AssetID = domain.AssetID(assetID)
	cfg.GovernanceThreshold = uint64(threshold)
	cfg.TotalStaked = uint64(total)
	cfg.TotalUsers = uint64(users)
	return &cfg, nil
}

// SaveConfig writes the lifecycle fields and the staked total. Identities and
// the user count are never updated here.
func (s *store) SaveConfig(ctx context.Context, cfg *models.Config) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE staking_config
		SET initialized = $1, asset_id = $2, governance_threshold = $3, total_staked = $4
		WHERE id = 1
	`,
		cfg.Initialized,
		ledger.Numeric(cfg.AssetID),
		ledger.Numeric(cfg.GovernanceThreshold),
		ledger.Numeric(cfg.TotalStaked),
	)
	if err != nil {
		return fmt.Errorf("save staking config: %w", err)
	}
	return nil
}

func (s *store) CreateAccount(ctx context.Context, account *models.Account) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO staking_accounts (account, registered_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO NOTHING
	`, string(account.ID), account.RegisteredAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert staking account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert staking account: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE staking_config SET total_users = total_users + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("count staking user: %w", err)
	}
	return nil
}

func (s *store) FindAccount(ctx context.Context, id domain.AccountID) (*models.Account, error) {
	account := models.Account{ID: id}
	var balance ledger.Numeric
	err := s.q.QueryRowContext(ctx, `
		SELECT staked_balance, registered_at, updated_at
		FROM staking_accounts WHERE account = $1
	`, string(id)).Scan(&balance, &account.RegisteredAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find staking account: %w", err)
	}
	account.StakedBalance = uint64(balance)
	return &account, nil
}

func (s *store) SaveAccount(ctx context.Context, account *models.Account) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE staking_accounts SET staked_balance = $2, updated_at = $3 WHERE account = $1
	`, string(account.ID), ledger.Numeric(account.StakedBalance), account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save staking account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save staking account: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *store) RecordDeposit(ctx context.Context, transfer asset.Transfer) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO staking_deposits (transfer_id, account, asset_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transfer_id) DO NOTHING
	`, transfer.ID.String(), string(transfer.From), ledger.Numeric(transfer.AssetID), ledger.Numeric(transfer.Amount))
	if err != nil {
		return fmt.Errorf("record staking deposit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record staking deposit: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
