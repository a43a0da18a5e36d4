// Package handler exposes the reputation ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ccms/internal/reputation/models"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/httputil"
	pstrings "ccms/pkg/platform/strings"
	"ccms/pkg/requestcontext"
)

// Service defines the reputation operations the handler calls.
type Service interface {
	Register(ctx context.Context, caller domain.AccountID) (*models.Account, error)
	Initialize(ctx context.Context, caller domain.AccountID, weights models.Weights) (*models.Config, error)
	UpdateScores(ctx context.Context, caller, account domain.AccountID, delta models.Delta) (uint64, error)
	GetComposite(ctx context.Context, account domain.AccountID) (uint64, error)
	GetAllScores(ctx context.Context, account domain.AccountID) (*models.Account, error)
	GetComposites(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]uint64, error)
	Config(ctx context.Context) (*models.Config, error)
}

// Handler wires reputation endpoints to the service.
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

// Register mounts reputation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reputation/config", h.HandleConfig)
	r.Get("/reputation/composites", h.HandleGetComposites)
	r.Get("/reputation/accounts/{account}/composite", h.HandleGetComposite)
	r.Get("/reputation/accounts/{account}/scores", h.HandleGetScores)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/reputation/accounts", h.HandleRegister)
		r.Post("/reputation/initialize", h.HandleInitialize)
		r.Post("/reputation/accounts/{account}/scores", h.HandleUpdateScores)
	})
}

// HandleRegister handles POST /reputation/accounts.
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

// HandleInitialize handles POST /reputation/initialize.
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

	cfg, err := h.service.Initialize(ctx, caller, *req.Weights)
	if err != nil {
		h.writeServiceError(ctx, w, "initialize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// HandleUpdateScores handles POST /reputation/accounts/{account}/scores.
func (h *Handler) HandleUpdateScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateScoresRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	composite, err := h.service.UpdateScores(ctx, caller, account, req.delta())
	if err != nil {
		h.writeServiceError(ctx, w, "update_scores", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CompositeResponse{Account: account, Composite: composite})
}

// HandleGetComposite handles GET /reputation/accounts/{account}/composite.
func (h *Handler) HandleGetComposite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	composite, err := h.service.GetComposite(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "get_composite", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CompositeResponse{Account: account, Composite: composite})
}

// HandleGetScores handles GET /reputation/accounts/{account}/scores.
func (h *Handler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	a, err := h.service.GetAllScores(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "get_all_scores", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(a))
}

// HandleGetComposites handles GET /reputation/composites?account=a&account=b.
// Repeated accounts are read once and unregistered ones are omitted.
func (h *Handler) HandleGetComposites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := pstrings.DedupeAndTrim(r.URL.Query()["account"])
	if len(raw) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one account is required"))
		return
	}
	if len(raw) > maxBatchAccounts {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "at most %d accounts per request", maxBatchAccounts))
		return
	}
	ids := make([]domain.AccountID, 0, len(raw))
	for _, s := range raw {
		id, err := domain.ParseAccountID(s)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ids = append(ids, id)
	}

	composites, err := h.service.GetComposites(ctx, ids)
	if err != nil {
		h.writeServiceError(ctx, w, "get_composites", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CompositesResponse{Composites: composites})
}

// HandleConfig handles GET /reputation/config.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.service.Config(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "config", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
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
		h.logger.ErrorContext(ctx, "reputation request failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
