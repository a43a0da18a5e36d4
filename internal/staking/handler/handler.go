// Package handler exposes the staking ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ccms/internal/asset"
	"ccms/internal/staking/models"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
)

// Service defines the staking operations the handler calls.
type Service interface {
	Register(ctx context.Context, caller domain.AccountID) (*models.Account, error)
	Initialize(ctx context.Context, caller domain.AccountID, assetID domain.AssetID, threshold uint64) (*models.Config, error)
	Stake(ctx context.Context, caller domain.AccountID, deposit asset.Transfer) (uint64, error)
	Withdraw(ctx context.Context, caller domain.AccountID, amount uint64) (uint64, error)
	GetStake(ctx context.Context, account domain.AccountID) (uint64, error)
	VoteWeight(ctx context.Context, account domain.AccountID) (uint64, error)
	Config(ctx context.Context) (*models.Config, error)
	Reconcile(ctx context.Context) (models.Reconciliation, error)
}

// Handler wires staking endpoints to the service.
type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

// New constructs a handler. requireAuth guards the mutating routes and must
// place the caller in the request context.
func New(service Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:     service,
		logger:      logger,
		requireAuth: requireAuth,
	}
}

// Register mounts staking endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/staking/config", h.HandleConfig)
	r.Get("/staking/reconcile", h.HandleReconcile)
	r.Get("/staking/accounts/{account}/stake", h.HandleGetStake)
	r.Get("/staking/accounts/{account}/vote-weight", h.HandleVoteWeight)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/staking/accounts", h.HandleRegister)
		r.Post("/staking/initialize", h.HandleInitialize)
		r.Post("/staking/stake", h.HandleStake)
		r.Post("/staking/withdraw", h.HandleWithdraw)
	})
}

// HandleRegister handles POST /staking/accounts.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	account, err := h.service.Register(ctx, caller)
	if err != nil {
		h.writeServiceError(ctx, w, "register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// HandleInitialize handles POST /staking/initialize.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InitializeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	cfg, err := h.service.Initialize(ctx, caller, domain.AssetID(req.AssetID), req.threshold())
	if err != nil {
		h.writeServiceError(ctx, w, "initialize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// HandleStake handles POST /staking/stake.
func (h *Handler) HandleStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StakeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	balance, err := h.service.Stake(ctx, caller, *req.Transfer)
	if err != nil {
		h.writeServiceError(ctx, w, "stake", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StakeResponse{Account: caller, StakedBalance: balance})
}

// HandleWithdraw handles POST /staking/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[WithdrawRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	balance, err := h.service.Withdraw(ctx, caller, req.Amount)
	if err != nil {
		h.writeServiceError(ctx, w, "withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StakeResponse{Account: caller, StakedBalance: balance})
}

// HandleGetStake handles GET /staking/accounts/{account}/stake.
func (h *Handler) HandleGetStake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetStake(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "get_stake", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StakeResponse{Account: account, StakedBalance: balance})
}

// HandleVoteWeight handles GET /staking/accounts/{account}/vote-weight.
func (h *Handler) HandleVoteWeight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	weight, err := h.service.VoteWeight(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "vote_weight", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VoteWeightResponse{Account: account, VoteWeight: weight})
}

// HandleConfig handles GET /staking/config.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.service.Config(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "config", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// HandleReconcile handles GET /staking/reconcile.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.Reconcile(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "reconcile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReconcileResponse(rec))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	caller := requestcontext.Caller(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func accountParam(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return account, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "staking request failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
