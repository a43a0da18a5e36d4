package models

import (
	"time"

	"ccms/internal/ledger"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

// Weights are the per-pillar multipliers fixed at initialization.
type Weights struct {
	Attendance    uint64 `json:"attendance"`
	Voting        uint64 `json:"voting"`
	Feedback      uint64 `json:"feedback"`
	Certification uint64 `json:"certification"`
}

// Scores are the four pillar accumulators of one account.
type Scores struct {
	Attendance    uint64 `json:"attendance"`
	Voting        uint64 `json:"voting"`
	Feedback      uint64 `json:"feedback"`
	Certification uint64 `json:"certification"`
}

// Delta is a non-negative increment per pillar.
type Delta Scores

// DeltaFor returns a delta that adds points to a single pillar.
func DeltaFor(p domain.Pillar, points uint64) (Delta, error) {
	var d Delta
	switch p {
	case domain.PillarAttendance:
		d.Attendance = points
	case domain.PillarVoting:
		d.Voting = points
	case domain.PillarFeedback:
		d.Feedback = points
	case domain.PillarCertification:
		d.Certification = points
	default:
		return Delta{}, dErrors.New(dErrors.CodeInvalidInput, "invalid pillar")
	}
	return d, nil
}

func (s Scores) values() []uint64 {
	return []uint64{s.Attendance, s.Voting, s.Feedback, s.Certification}
}

func (w Weights) values() []uint64 {
	return []uint64{w.Attendance, w.Voting, w.Feedback, w.Certification}
}

// Composite returns Σ pillar × weight.
//
// Errors: CodeOverflow when the weighted sum exceeds 64 bits.
func (w Weights) Composite(s Scores) (uint64, error) {
	c, err := ledger.WeightedSum(s.values(), w.values())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeOverflow, "composite score overflows")
	}
	return c, nil
}

// Add returns s+d pillar by pillar.
//
// Errors: CodeOverflow naming the first pillar whose accumulator would wrap.
func (s Scores) Add(d Delta) (Scores, error) {
	var out Scores
	fields := []struct {
		pillar domain.Pillar
		cur    uint64
		inc    uint64
		dst    *uint64
	}{
		{domain.PillarAttendance, s.Attendance, d.Attendance, &out.Attendance},
		{domain.PillarVoting, s.Voting, d.Voting, &out.Voting},
		{domain.PillarFeedback, s.Feedback, d.Feedback, &out.Feedback},
		{domain.PillarCertification, s.Certification, d.Certification, &out.Certification},
	}
	for _, f := range fields {
		sum, err := ledger.AddUint64(f.cur, f.inc)
		if err != nil {
			return Scores{}, dErrors.Wrap(err, dErrors.CodeOverflow, string(f.pillar)+" score overflows")
		}
		*f.dst = sum
	}
	return out, nil
}

// Config is the reputation ledger's global configuration.
type Config struct {
	ledger.Guard
	Weights    Weights
	TotalUsers uint64
}

// NewConfig returns an uninitialized configuration owned by controller.
func NewConfig(controller domain.AccountID) *Config {
	return &Config{Guard: ledger.NewGuard(controller)}
}

// ApplyInitialization stores the weights verbatim and flips the lifecycle
// flag. Call only after CanInitialize succeeded.
func (c *Config) ApplyInitialization(w Weights) {
	c.Weights = w
	c.Guard.ApplyInitialization()
}

// Account is the per-account reputation record.
type Account struct {
	ID           domain.AccountID
	Scores       Scores
	Composite    uint64
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// NewAccount returns a zeroed record.
func NewAccount(id domain.AccountID, now time.Time) *Account {
	return &Account{ID: id, RegisteredAt: now, UpdatedAt: now}
}

// ApplyDelta adds d to the pillars and recomputes the composite from scratch.
// The account is unchanged when an error is returned.
func (a *Account) ApplyDelta(d Delta, w Weights, now time.Time) error {
	next, err := a.Scores.Add(d)
	if err != nil {
		return err
	}
	composite, err := w.Composite(next)
	if err != nil {
		return err
	}
	a.Scores = next
	a.Composite = composite
	a.UpdatedAt = now
	return nil
}
