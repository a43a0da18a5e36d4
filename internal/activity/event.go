// Package activity turns campus activity events from Kafka into reputation
// score updates.
package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ccms/internal/reputation/models"
	"ccms/pkg/domain"
)

// Event is the JSON payload of an activity record. Points are already
// aggregated by the producer.
type Event struct {
	EventID    uuid.UUID `json:"event_id"`
	Account    string    `json:"account"`
	Pillar     string    `json:"pillar"`
	Points     uint64    `json:"points"`
	OccurredAt time.Time `json:"occurred_at"`
}

// update is a decoded event ready to apply.
type update struct {
	eventID uuid.UUID
	account domain.AccountID
	pillar  domain.Pillar
	points  uint64
	delta   models.Delta
}

func decode(value []byte) (update, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return update{}, fmt.Errorf("unmarshal activity event: %w", err)
	}
	if e.EventID == uuid.Nil {
		return update{}, fmt.Errorf("activity event has no event_id")
	}
	account, err := domain.ParseAccountID(e.Account)
	if err != nil {
		return update{}, fmt.Errorf("activity event %s: %w", e.EventID, err)
	}
	pillar, err := domain.ParsePillar(e.Pillar)
	if err != nil {
		return update{}, fmt.Errorf("activity event %s: %w", e.EventID, err)
	}
	delta, err := models.DeltaFor(pillar, e.Points)
	if err != nil {
		return update{}, fmt.Errorf("activity event %s: %w", e.EventID, err)
	}
	return update{eventID: e.EventID, account: account, pillar: pillar, points: e.Points, delta: delta}, nil
}
