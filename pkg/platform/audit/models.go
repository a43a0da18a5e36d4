package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ccms/pkg/domain"
)

// EventCategory classifies ledger events by what they change.
type EventCategory string

const (
	// CategoryLifecycle covers one-time configuration of a ledger.
	CategoryLifecycle EventCategory = "lifecycle"

	// CategoryRegistry covers account slot allocation.
	CategoryRegistry EventCategory = "registry"

	// CategoryBalance covers pillar and escrow balance movements.
	CategoryBalance EventCategory = "balance"
)

// Ledger names the state machine that committed an event.
type Ledger string

const (
	LedgerReputation Ledger = "reputation"
	LedgerStaking    Ledger = "staking"
)

// Event is emitted after a ledger operation commits. It is transport-agnostic
// so stores and feeds can fan out.
type Event struct {
	ID        uuid.UUID        `json:"id"`
	Category  EventCategory    `json:"category"`
	Timestamp time.Time        `json:"timestamp"`
	Ledger    Ledger           `json:"ledger"`
	Action    string           `json:"action"`
	Account   domain.AccountID `json:"account,omitempty"`
	// ActorID is the authenticated caller when it differs from Account, such
	// as the controller updating another account's scores.
	ActorID domain.AccountID `json:"actor_id,omitempty"`
	// Amount is the moved quantity: staked or withdrawn units.
	Amount uint64 `json:"amount,omitempty"`
	// Value is the resulting figure: composite score or staked balance.
	Value     uint64 `json:"value,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventAccountRegistered AuditEvent = "account_registered"
	EventLedgerInitialized AuditEvent = "ledger_initialized"
	EventScoresUpdated     AuditEvent = "scores_updated"
	EventStaked            AuditEvent = "staked"
	EventWithdrawn         AuditEvent = "withdrawn"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountRegistered: CategoryRegistry,
	EventLedgerInitialized: CategoryLifecycle,
	EventScoresUpdated:     CategoryBalance,
	EventStaked:            CategoryBalance,
	EventWithdrawn:         CategoryBalance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryBalance.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryBalance
}

// Store persists committed ledger events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account domain.AccountID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
