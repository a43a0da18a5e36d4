// Package service implements the reputation ledger: registration, one-time
// weight initialization, controller-only score updates and pure reads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	repmetrics "ccms/internal/reputation/metrics"
	"ccms/internal/reputation/models"
	"ccms/internal/reputation/ports"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/audit"
	"ccms/pkg/platform/sentinel"
	"ccms/pkg/requestcontext"
)

// AuditPublisher receives an event for every committed mutation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the reputation ledger.
type Service struct {
	ledger         ports.Ledger
	logger         *slog.Logger
	metrics        *repmetrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *repmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service over l.
func New(l ports.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: slog.Default(),
		tracer: otel.Tracer("ccms/reputation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register allocates a zeroed record for caller. It does not require the
// ledger to be initialized.
//
// Errors: CodeInvalidInput for an empty caller, CodeAlreadyRegistered when a
// record exists (the existing record is untouched).
func (s *Service) Register(ctx context.Context, caller domain.AccountID) (account *models.Account, err error) {
	ctx, done := s.begin(ctx, "register", caller)
	defer func() { done(err) }()

	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "caller is required")
	}

	var totalUsers uint64
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		a := models.NewAccount(caller, requestcontext.Now(ctx))
		if err := store.CreateAccount(ctx, a); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeAlreadyRegistered, "account is already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register account")
		}
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		totalUsers = cfg.TotalUsers
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SetTotalUsers(totalUsers)
	}
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventAccountRegistered),
		Account: caller,
	})
	return account, nil
}

// Initialize stores the four weights once.
//
// Errors: CodeUnauthorized unless caller is the controller, then
// CodeAlreadyInitialized on any later call.
func (s *Service) Initialize(ctx context.Context, caller domain.AccountID, weights models.Weights) (cfg *models.Config, err error) {
	ctx, done := s.begin(ctx, "initialize", caller)
	defer func() { done(err) }()

	err = s.ledger.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		c, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		if err := c.CanInitialize(caller); err != nil {
			return err
		}
		c.ApplyInitialization(weights)
		if err := store.SaveConfig(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
		}
		cfg = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Action:  string(audit.EventLedgerInitialized),
		ActorID: caller,
	})
	return cfg, nil
}

// UpdateScores adds deltas to account's pillars and returns the recomputed
// composite. Checks run in order: Unauthorized, NotInitialized,
// UnknownAccount, Overflow. Nothing is written when any check fails.
func (s *Service) UpdateScores(ctx context.Context, caller, account domain.AccountID, delta models.Delta) (composite uint64, err error) {
	ctx, done := s.begin(ctx, "update_scores", account)
	defer func() { done(err) }()

	err = s.ledger.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		if err := cfg.RequirePrivileged(caller); err != nil {
			return err
		}
		a, err := store.FindAccount(ctx, account)
		if err != nil {
			return wrapAccountErr(err)
		}
		if err := a.ApplyDelta(delta, cfg.Weights, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := store.SaveAccount(ctx, a); err != nil {
			return wrapAccountErr(err)
		}
		composite = a.Composite
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.emit(ctx, audit.Event{
		Action:  string(audit.EventScoresUpdated),
		Account: account,
		ActorID: caller,
		Value:   composite,
	})
	return composite, nil
}

// GetComposite returns the stored composite of account.
func (s *Service) GetComposite(ctx context.Context, account domain.AccountID) (uint64, error) {
	a, err := s.GetAllScores(ctx, account)
	if err != nil {
		return 0, err
	}
	return a.Composite, nil
}

// GetAllScores returns the pillars and composite of account.
//
// Errors: CodeUnknownAccount when account never registered.
func (s *Service) GetAllScores(ctx context.Context, account domain.AccountID) (*models.Account, error) {
	var out *models.Account
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		a, err := store.FindAccount(ctx, account)
		if err != nil {
			return wrapAccountErr(err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetComposites returns the composites of the registered subset of ids.
func (s *Service) GetComposites(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]uint64, error) {
	out := make(map[domain.AccountID]uint64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		accounts, err := store.FindAccounts(ctx, ids)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accounts")
		}
		for _, a := range accounts {
			out[a.ID] = a.Composite
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Config returns the global configuration including TotalUsers.
func (s *Service) Config(ctx context.Context) (*models.Config, error) {
	var cfg *models.Config
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		c, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		cfg = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func wrapAccountErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnknownAccount, "account is not registered")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access account")
}

// begin opens a span for a mutation and returns a completion func that ends
// it and records metrics and a log line.
func (s *Service) begin(ctx context.Context, op string, account domain.AccountID) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "reputation."+op,
		trace.WithAttributes(attribute.String("ccms.account", string(account))),
	)
	return ctx, func(err error) {
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeTimeout) {
				s.logger.ErrorContext(ctx, "reputation operation failed",
					"operation", op,
					"account", account,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		}
		span.End()
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.Ledger = audit.LedgerReputation
	s.logger.InfoContext(ctx, event.Action,
		"account", event.Account,
		"actor_id", event.ActorID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
