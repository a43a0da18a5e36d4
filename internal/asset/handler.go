package asset

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
)

// Handler lets token holders move assets so they can produce deposit
// receipts for the staking ledger.
type Handler struct {
	bank        Ledger
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

func NewHandler(bank Ledger, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{bank: bank, logger: logger, requireAuth: requireAuth}
}

// Register mounts asset endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/assets/{asset}/holders/{account}", h.HandleBalance)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/assets/{asset}/opt-in", h.HandleOptIn)
		r.Post("/assets/{asset}/transfers", h.HandleTransfer)
	})
}

// TransferRequest is the body of POST /assets/{asset}/transfers. The sender
// is always the caller.
type TransferRequest struct {
	To     domain.AccountID `json:"to"`
	Amount uint64           `json:"amount"`
}

// Validate implements httputil.Validatable.
func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if _, err := domain.ParseAccountID(string(r.To)); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "to must be a valid account id")
	}
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	return nil
}

type BalanceResponse struct {
	AssetID domain.AssetID   `json:"asset_id"`
	Holder  domain.AccountID `json:"holder"`
	Balance uint64           `json:"balance"`
}

// HandleOptIn handles POST /assets/{asset}/opt-in.
func (h *Handler) HandleOptIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, assetID, ok := h.callerAndAsset(w, r)
	if !ok {
		return
	}
	if err := h.bank.OptIn(ctx, assetID, caller); err != nil {
		h.writeBankError(ctx, w, "opt_in", err)
		return
	}
	balance, err := h.bank.Balance(ctx, assetID, caller)
	if err != nil {
		h.writeBankError(ctx, w, "opt_in", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{AssetID: assetID, Holder: caller, Balance: balance})
}

// HandleTransfer handles POST /assets/{asset}/transfers and returns the
// receipt.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, assetID, ok := h.callerAndAsset(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	receipt, err := h.bank.Transfer(ctx, assetID, caller, req.To, req.Amount)
	if err != nil {
		h.writeBankError(ctx, w, "transfer", err)
		return
	}
	h.logger.InfoContext(ctx, "asset transferred",
		"request_id", requestcontext.RequestID(ctx),
		"transfer_id", receipt.ID.String(),
		"asset_id", uint64(assetID),
		"from", caller,
		"to", req.To,
		"amount", req.Amount,
	)
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

// HandleBalance handles GET /assets/{asset}/holders/{account}.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := domain.ParseAssetID(chi.URLParam(r, "asset"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	holder, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.bank.Balance(ctx, assetID, holder)
	if err != nil {
		h.writeBankError(ctx, w, "balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{AssetID: assetID, Holder: holder, Balance: balance})
}

func (h *Handler) callerAndAsset(w http.ResponseWriter, r *http.Request) (domain.AccountID, domain.AssetID, bool) {
	caller := requestcontext.Caller(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", 0, false
	}
	assetID, err := domain.ParseAssetID(chi.URLParam(r, "asset"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return caller, assetID, true
}

func (h *Handler) writeBankError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownAsset):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, err.Error()))
	case errors.Is(err, ErrNotOptedIn), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, err.Error()))
	case errors.Is(err, ErrInsufficientFunds):
		httputil.WriteError(w, dErrors.New(dErrors.CodeInsufficientBalance, err.Error()))
	case errors.Is(err, ErrSupplyOverflow):
		httputil.WriteError(w, dErrors.New(dErrors.CodeOverflow, err.Error()))
	default:
		h.logger.ErrorContext(ctx, "asset operation failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "asset operation failed"))
	}
}
