package feed

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/audit"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// EventLister reads persisted events.
type EventLister interface {
	ListByAccount(ctx context.Context, account domain.AccountID) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// History serves persisted events for clients that missed the live stream.
type History struct {
	events EventLister
	logger *slog.Logger
}

func NewHistory(events EventLister, logger *slog.Logger) *History {
	return &History{events: events, logger: logger}
}

// Register mounts GET /events/history.
func (h *History) Register(r chi.Router) {
	r.Get("/events/history", h.HandleList)
}

type HistoryResponse struct {
	Events []audit.Event `json:"events"`
}

// HandleList returns an account's events oldest first when account is set,
// otherwise the most recent events newest first.
func (h *History) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		events []audit.Event
		err    error
	)
	if raw := q.Get("account"); raw != "" {
		account, perr := domain.ParseAccountID(raw)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		events, err = h.events.ListByAccount(ctx, account)
	} else {
		limit := defaultHistoryLimit
		if raw := q.Get("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n <= 0 || n > maxHistoryLimit {
				httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "limit must be between 1 and %d", maxHistoryLimit))
				return
			}
			limit = n
		}
		events, err = h.events.ListRecent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Events: events})
}
