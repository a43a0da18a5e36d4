// Package service implements the staking ledger: escrowed deposits and
// withdrawals of one fungible asset, and the governance weight derived from
// each account's stake.
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

	"ccms/internal/asset"
	stakemetrics "ccms/internal/staking/metrics"
	"ccms/internal/staking/models"
	"ccms/internal/staking/ports"
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

// Service orchestrates the staking ledger.
type Service struct {
	ledger         ports.Ledger
	assets         ports.AssetTransferer
	logger         *slog.Logger
	metrics        *stakemetrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *stakemetrics.Metrics) Option {
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

// New constructs a Service over l that moves funds through assets.
func New(l ports.Ledger, assets ports.AssetTransferer, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		assets: assets,
		logger: slog.Default(),
		tracer: otel.Tracer("ccms/staking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register allocates a zero-balance record for caller. It does not require
// the ledger to be initialized.
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

// Initialize fixes the staked asset and governance threshold once and opts
// the escrow in to the asset. A failed opt-in leaves the ledger
// uninitialized.
//
// Errors: CodeUnauthorized, then CodeAlreadyInitialized, then
// CodeInvalidInput for a zero or unknown asset.
func (s *Service) Initialize(ctx context.Context, caller domain.AccountID, assetID domain.AssetID, threshold uint64) (cfg *models.Config, err error) {
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
		if assetID == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "asset id cannot be zero")
		}
		c.ApplyInitialization(assetID, threshold)
		if err := store.SaveConfig(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
		}
		if err := s.assets.OptIn(ctx, assetID, c.Escrow); err != nil {
			return wrapAssetErr(err, "escrow opt-in failed")
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
		Value:   threshold,
	})
	return cfg, nil
}

// Stake credits a settled deposit to caller and returns the new balance.
// Checks run in order: NotInitialized, InvalidDeposit for the transfer's
// shape, UnknownAccount, InvalidDeposit for an unsettled or already credited
// transfer, Overflow.
func (s *Service) Stake(ctx context.Context, caller domain.AccountID, deposit asset.Transfer) (balance uint64, err error) {
	ctx, done := s.begin(ctx, "stake", caller)
	defer func() { done(err) }()

	var totalStaked uint64
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		if err := cfg.RequireInitialized(); err != nil {
			return err
		}
		if err := cfg.CheckDeposit(caller, deposit); err != nil {
			return err
		}
		a, err := store.FindAccount(ctx, caller)
		if err != nil {
			return wrapAccountErr(err)
		}
		settled, err := s.assets.Settled(ctx, deposit)
		if err != nil {
			return wrapAssetErr(err, "failed to verify deposit")
		}
		if !settled {
			return dErrors.New(dErrors.CodeInvalidDeposit, "deposit transfer has not settled")
		}
		if err := store.RecordDeposit(ctx, deposit); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeInvalidDeposit, "deposit transfer was already credited")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record deposit")
		}
		if err := a.ApplyStake(cfg, deposit.Amount, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := store.SaveAccount(ctx, a); err != nil {
			return wrapAccountErr(err)
		}
		if err := store.SaveConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
		}
		balance = a.StakedBalance
		totalStaked = cfg.TotalStaked
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.SetTotalStaked(totalStaked)
		s.metrics.ObserveMovement("in", deposit.Amount)
	}
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventStaked),
		Account: caller,
		Amount:  deposit.Amount,
		Value:   balance,
	})
	return balance, nil
}

// Withdraw returns amount from escrow to caller and returns the remaining
// balance. Bookkeeping is applied first and the outbound transfer last; if
// the transfer fails nothing is committed.
//
// Errors: CodeNotInitialized, CodeInvalidInput for a zero amount,
// CodeUnknownAccount, CodeInsufficientBalance.
func (s *Service) Withdraw(ctx context.Context, caller domain.AccountID, amount uint64) (balance uint64, err error) {
	ctx, done := s.begin(ctx, "withdraw", caller)
	defer func() { done(err) }()

	var totalStaked uint64
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		if err := cfg.RequireInitialized(); err != nil {
			return err
		}
		if amount == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "withdraw amount must be positive")
		}
		a, err := store.FindAccount(ctx, caller)
		if err != nil {
			return wrapAccountErr(err)
		}
		if err := a.CanWithdraw(amount); err != nil {
			return err
		}
		a.ApplyWithdraw(cfg, amount, requestcontext.Now(ctx))
		if err := store.SaveAccount(ctx, a); err != nil {
			return wrapAccountErr(err)
		}
		if err := store.SaveConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
		}
		if _, err := s.assets.Transfer(ctx, cfg.AssetID, cfg.Escrow, caller, amount); err != nil {
			return wrapAssetErr(err, "withdraw transfer failed")
		}
		balance = a.StakedBalance
		totalStaked = cfg.TotalStaked
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.SetTotalStaked(totalStaked)
		s.metrics.ObserveMovement("out", amount)
	}
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventWithdrawn),
		Account: caller,
		Amount:  amount,
		Value:   balance,
	})
	return balance, nil
}

// GetStake returns account's staked balance.
//
// Errors: CodeUnknownAccount when account never registered.
func (s *Service) GetStake(ctx context.Context, account domain.AccountID) (uint64, error) {
	var balance uint64
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		a, err := store.FindAccount(ctx, account)
		if err != nil {
			return wrapAccountErr(err)
		}
		balance = a.StakedBalance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// VoteWeight returns 2 when account's stake reaches the governance threshold
// and 1 otherwise, from the current balance.
//
// Errors: CodeUnknownAccount when account never registered.
func (s *Service) VoteWeight(ctx context.Context, account domain.AccountID) (uint64, error) {
	var weight uint64
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		a, err := store.FindAccount(ctx, account)
		if err != nil {
			return wrapAccountErr(err)
		}
		weight = cfg.VoteWeight(a.StakedBalance)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return weight, nil
}

// Config returns the global configuration.
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

// Reconcile compares total staked with the escrow's holding of the staked
// asset. Deposits sent but not yet staked show up as a surplus.
//
// Errors: CodeNotInitialized before an asset is fixed.
func (s *Service) Reconcile(ctx context.Context) (models.Reconciliation, error) {
	var r models.Reconciliation
	err := s.ledger.View(ctx, func(ctx context.Context, store ports.Store) error {
		cfg, err := store.LoadConfig(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
		}
		if err := cfg.RequireInitialized(); err != nil {
			return err
		}
		holding, err := s.assets.Balance(ctx, cfg.AssetID, cfg.Escrow)
		if err != nil {
			return wrapAssetErr(err, "failed to read escrow holding")
		}
		r = models.Reconciliation{
			AssetID:       cfg.AssetID,
			Escrow:        cfg.Escrow,
			TotalStaked:   cfg.TotalStaked,
			EscrowHolding: holding,
		}
		return nil
	})
	if err != nil {
		return models.Reconciliation{}, err
	}

	if s.metrics != nil {
		s.metrics.SetReconcileDrift(r.EscrowHolding, r.TotalStaked)
	}
	if !r.Covered() {
		s.logger.ErrorContext(ctx, "escrow holds less than total staked",
			"asset_id", r.AssetID,
			"total_staked", r.TotalStaked,
			"escrow_holding", r.EscrowHolding,
		)
	}
	return r, nil
}

func wrapAccountErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnknownAccount, "account is not registered")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access account")
}

func wrapAssetErr(err error, msg string) error {
	switch {
	case errors.Is(err, asset.ErrUnknownAsset):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "asset does not exist")
	case errors.Is(err, asset.ErrNotOptedIn):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "receiver has not opted in to the asset")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// begin opens a span for a mutation and returns a completion func that ends
// it and records metrics and a log line.
func (s *Service) begin(ctx context.Context, op string, account domain.AccountID) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "staking."+op,
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
				s.logger.ErrorContext(ctx, "staking operation failed",
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
	event.Ledger = audit.LedgerStaking
	s.logger.InfoContext(ctx, event.Action,
		"account", event.Account,
		"actor_id", event.ActorID,
		"amount", event.Amount,
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
