package activity

import (
	"context"
	"fmt"
	"log/slog"

	"ccms/internal/platform/kafka/consumer"
	"ccms/internal/reputation/models"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

// ScoreUpdater applies a delta to an account's reputation.
type ScoreUpdater interface {
	UpdateScores(ctx context.Context, caller, account domain.AccountID, delta models.Delta) (uint64, error)
}

// Deduplicator remembers which events were applied. Claim reports false when
// id was claimed before and not released.
type Deduplicator interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Handler applies activity records as the reputation controller.
type Handler struct {
	scores     ScoreUpdater
	controller domain.AccountID
	dedup      Deduplicator
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler returns a handler that updates scores on behalf of controller.
func NewHandler(scores ScoreUpdater, controller domain.AccountID, dedup Deduplicator, opts ...Option) *Handler {
	h := &Handler{
		scores:     scores,
		controller: controller,
		dedup:      dedup,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements consumer.Handler. Only dedup store failures and
// transient ledger failures are returned; every other bad record is logged
// and acknowledged.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	u, err := decode(msg.Value)
	if err != nil {
		h.metrics.observe(OutcomeMalformed)
		h.logger.WarnContext(ctx, "skipping malformed activity event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	id := u.eventID.String()
	claimed, err := h.dedup.Claim(ctx, id)
	if err != nil {
		return fmt.Errorf("claim activity event %s: %w", id, err)
	}
	if !claimed {
		h.metrics.observe(OutcomeDuplicate)
		h.logger.DebugContext(ctx, "activity event already applied", "event_id", id)
		return nil
	}

	composite, err := h.scores.UpdateScores(ctx, h.controller, u.account, u.delta)
	if err != nil {
		if relErr := h.dedup.Release(ctx, id); relErr != nil {
			h.logger.ErrorContext(ctx, "failed to release activity event claim",
				"event_id", id,
				"error", relErr,
			)
		}
		if permanent(err) {
			h.metrics.observe(OutcomeRejected)
			h.logger.WarnContext(ctx, "skipping rejected activity event",
				"event_id", id,
				"account", u.account,
				"pillar", u.pillar,
				"error", err,
			)
			return nil
		}
		h.metrics.observe(OutcomeFailed)
		return fmt.Errorf("apply activity event %s: %w", id, err)
	}

	h.metrics.observe(OutcomeApplied)
	h.metrics.observePoints(string(u.pillar), u.points)
	h.logger.InfoContext(ctx, "applied activity event",
		"event_id", id,
		"account", u.account,
		"pillar", u.pillar,
		"points", u.points,
		"composite", composite,
	)
	return nil
}

// permanent reports whether redelivering the event could never succeed.
func permanent(err error) bool {
	for _, code := range []dErrors.Code{
		dErrors.CodeUnknownAccount,
		dErrors.CodeOverflow,
		dErrors.CodeInvalidInput,
		dErrors.CodeUnauthorized,
	} {
		if dErrors.HasCode(err, code) {
			return true
		}
	}
	return false
}
