package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	repmodels "ccms/internal/reputation/models"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
)

// Reader is the composed read the handler serves.
type Reader interface {
	Get(ctx context.Context, account domain.AccountID) (*View, error)
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// Register mounts GET /dashboard/{account}.
func (h *Handler) Register(r chi.Router) {
	r.Get("/dashboard/{account}", h.HandleGet)
}

type Response struct {
	Account    domain.AccountID    `json:"account"`
	Reputation *ReputationResponse `json:"reputation,omitempty"`
	Staking    *StakingResponse    `json:"staking,omitempty"`
}

type ReputationResponse struct {
	Scores    repmodels.Scores `json:"scores"`
	Composite uint64           `json:"composite"`
}

type StakingResponse struct {
	StakedBalance uint64 `json:"staked_balance"`
	VoteWeight    uint64 `json:"vote_weight"`
}

func toResponse(v *View) Response {
	resp := Response{Account: v.Account}
	if v.Reputation != nil {
		resp.Reputation = &ReputationResponse{Scores: v.Reputation.Scores, Composite: v.Reputation.Composite}
	}
	if v.Staking != nil {
		resp.Staking = &StakingResponse{StakedBalance: v.Staking.StakedBalance, VoteWeight: v.Staking.VoteWeight}
	}
	return resp
}

// HandleGet handles GET /dashboard/{account}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.reader.Get(ctx, account)
	if err != nil {
		if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "dashboard request failed",
				"account", account,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(view))
}
