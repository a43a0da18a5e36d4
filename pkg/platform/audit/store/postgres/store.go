package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"ccms/pkg/domain"
	audit "ccms/pkg/platform/audit"
	txcontext "ccms/pkg/platform/tx"
)

// Schema creates the ledger_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	ledger      TEXT NOT NULL,
	action      TEXT NOT NULL,
	account     TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(20, 0) NOT NULL DEFAULT 0,
	value       NUMERIC(20, 0) NOT NULL DEFAULT 0,
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ledger_events_account_idx ON ledger_events (account, timestamp);
`

// Store implements audit.Store on the ledger_events table. Appends join the
// caller's transaction when one is present in the context.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger_events: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an event. Duplicate IDs are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO ledger_events (
			id, category, timestamp, ledger, action,
			account, actor_id, amount, value, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		string(event.Ledger),
		event.Action,
		string(event.Account),
		string(event.ActorID),
		strconv.FormatUint(event.Amount, 10),
		strconv.FormatUint(event.Value, 10),
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// ListByAccount returns events for one account in commit order.
func (s *Store) ListByAccount(ctx context.Context, account domain.AccountID) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, ledger, action,
			   account, actor_id, amount::TEXT, value::TEXT, request_id
		FROM ledger_events
		WHERE account = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(account))
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, ledger, action,
			   account, actor_id, amount::TEXT, value::TEXT, request_id
		FROM ledger_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event                 audit.Event
			category, ledger      string
			account, actor        string
			amountText, valueText string
		)
		if err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&ledger,
			&event.Action,
			&account,
			&actor,
			&amountText,
			&valueText,
			&event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Ledger = audit.Ledger(ledger)
		event.Account = domain.AccountID(account)
		event.ActorID = domain.AccountID(actor)
		var err error
		if event.Amount, err = strconv.ParseUint(amountText, 10, 64); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if event.Value, err = strconv.ParseUint(valueText, 10, 64); err != nil {
			return nil, fmt.Errorf("parse value: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}
