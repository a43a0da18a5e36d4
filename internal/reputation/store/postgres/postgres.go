// Package postgres persists reputation state. Writers serialize on the
// config row lock; readers use a read-only repeatable-read snapshot.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ccms/internal/ledger"
	"ccms/internal/reputation/models"
	"ccms/internal/reputation/ports"
	"ccms/pkg/domain"
	"ccms/pkg/platform/sentinel"
	txcontext "ccms/pkg/platform/tx"
)

// Schema creates the reputation tables.
const Schema = `
CREATE TABLE IF NOT EXISTS reputation_config (
	id                   SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	controller           TEXT NOT NULL,
	initialized          BOOLEAN NOT NULL DEFAULT FALSE,
	weight_attendance    NUMERIC(20, 0) NOT NULL DEFAULT 0,
	weight_voting        NUMERIC(20, 0) NOT NULL DEFAULT 0,
	weight_feedback      NUMERIC(20, 0) NOT NULL DEFAULT 0,
	weight_certification NUMERIC(20, 0) NOT NULL DEFAULT 0,
	total_users          NUMERIC(20, 0) NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS reputation_accounts (
	account       TEXT PRIMARY KEY,
	attendance    NUMERIC(20, 0) NOT NULL DEFAULT 0,
	voting        NUMERIC(20, 0) NOT NULL DEFAULT 0,
	feedback      NUMERIC(20, 0) NOT NULL DEFAULT 0,
	certification NUMERIC(20, 0) NOT NULL DEFAULT 0,
	composite     NUMERIC(20, 0) NOT NULL DEFAULT 0,
	registered_at TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
`

// ErrControllerMismatch is returned by Bootstrap when the persisted ledger is
// owned by a different controller.
var ErrControllerMismatch = errors.New("persisted reputation controller differs from configured controller")

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
		return fmt.Errorf("migrate reputation: %w", err)
	}
	return nil
}

// Bootstrap creates the config row for controller on first start and checks
// that an existing row belongs to the same controller.
func (l *Ledger) Bootstrap(ctx context.Context, controller domain.AccountID) error {
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO reputation_config (id, controller) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		string(controller),
	); err != nil {
		return fmt.Errorf("bootstrap reputation config: %w", err)
	}
	var persisted string
	if err := l.db.QueryRowContext(ctx, `SELECT controller FROM reputation_config WHERE id = 1`).Scan(&persisted); err != nil {
		return fmt.Errorf("read reputation controller: %w", err)
	}
	if domain.AccountID(persisted) != controller {
		return ErrControllerMismatch
	}
	return nil
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return txcontext.Run(ctx, l.db, nil, l.timeout, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM reputation_config WHERE id = 1 FOR UPDATE`); err != nil {
			return fmt.Errorf("lock reputation config: %w", err)
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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type store struct {
	q querier
}

func (s *store) LoadConfig(ctx context.Context) (*models.Config, error) {
	var (
		controller    string
		attendance    ledger.Numeric
		voting        ledger.Numeric
		feedback      ledger.Numeric
		certification ledger.Numeric
		totalUsers    ledger.Numeric
		cfg           models.Config
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT controller, initialized, weight_attendance, weight_voting,
			   weight_feedback, weight_certification, total_users
		FROM reputation_config WHERE id = 1
	`).Scan(&controller, &cfg.Initialized, &attendance, &voting, &feedback, &certification, &totalUsers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reputation config: %w", err)
	}
	cfg.Controller = domain.AccountID(controller)
	cfg.Weights = models.Weights{
		Attendance:    uint64(attendance),
		Voting:        uint64(voting),
		Feedback:      uint64(feedback),
		Certification: uint64(certification),
	}
	cfg.TotalUsers = uint64(totalUsers)
	return &cfg, nil
}

// SaveConfig writes the lifecycle flag and weights. The controller column is
// never updated.
func (s *store) SaveConfig(ctx context.Context, cfg *models.Config) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE reputation_config
		SET initialized = $1, weight_attendance = $2, weight_voting = $3,
			weight_feedback = $4, weight_certification = $5
		WHERE id = 1
	`,
		cfg.Initialized,
		ledger.Numeric(cfg.Weights.Attendance),
		ledger.Numeric(cfg.Weights.Voting),
		ledger.Numeric(cfg.Weights.Feedback),
		ledger.Numeric(cfg.Weights.Certification),
	)
	if err != nil {
		return fmt.Errorf("save reputation config: %w", err)
	}
	return nil
}

func (s *store) CreateAccount(ctx context.Context, account *models.Account) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO reputation_accounts (account, registered_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO NOTHING
	`, string(account.ID), account.RegisteredAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reputation account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert reputation account: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE reputation_config SET total_users = total_users + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("count reputation user: %w", err)
	}
	return nil
}

const selectAccount = `
	SELECT account, attendance, voting, feedback, certification, composite,
		   registered_at, updated_at
	FROM reputation_accounts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		id                                    string
		attendance, voting, feedback, cert, c ledger.Numeric
		account                               models.Account
	)
	if err := row.Scan(&id, &attendance, &voting, &feedback, &cert, &c, &account.RegisteredAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	account.ID = domain.AccountID(id)
	account.Scores = models.Scores{
		Attendance:    uint64(attendance),
		Voting:        uint64(voting),
		Feedback:      uint64(feedback),
		Certification: uint64(cert),
	}
	account.Composite = uint64(c)
	return &account, nil
}

func (s *store) FindAccount(ctx context.Context, id domain.AccountID) (*models.Account, error) {
	account, err := scanAccount(s.q.QueryRowContext(ctx, selectAccount+` WHERE account = $1`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reputation account: %w", err)
	}
	return account, nil
}

func (s *store) SaveAccount(ctx context.Context, account *models.Account) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE reputation_accounts
		SET attendance = $2, voting = $3, feedback = $4, certification = $5,
			composite = $6, updated_at = $7
		WHERE account = $1
	`,
		string(account.ID),
		ledger.Numeric(account.Scores.Attendance),
		ledger.Numeric(account.Scores.Voting),
		ledger.Numeric(account.Scores.Feedback),
		ledger.Numeric(account.Scores.Certification),
		ledger.Numeric(account.Composite),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save reputation account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save reputation account: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *store) FindAccounts(ctx context.Context, ids []domain.AccountID) ([]*models.Account, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.q.QueryContext(ctx, selectAccount+` WHERE account = ANY($1) ORDER BY account`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find reputation accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reputation account: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reputation accounts: %w", err)
	}
	return out, nil
}
