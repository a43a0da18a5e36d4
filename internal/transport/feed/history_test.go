package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccms/pkg/domain"
	"ccms/pkg/platform/audit"
	"ccms/pkg/platform/audit/store/memory"
	"ccms/pkg/testutil"
)

type failingLister struct{}

func (failingLister) ListByAccount(context.Context, domain.AccountID) ([]audit.Event, error) {
	return nil, errors.New("connection refused")
}

func (failingLister) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, errors.New("connection refused")
}

func historyRouter(events EventLister) http.Handler {
	r := chi.NewRouter()
	NewHistory(events, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHistoryListsEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	for _, e := range []audit.Event{
		{Ledger: audit.LedgerStaking, Action: string(audit.EventStaked), Account: "alice", Amount: 5},
		{Ledger: audit.LedgerReputation, Action: string(audit.EventScoresUpdated), Account: "bob"},
		{Ledger: audit.LedgerStaking, Action: string(audit.EventWithdrawn), Account: "alice", Amount: 1},
	} {
		require.NoError(t, store.Append(ctx, e))
	}
	router := historyRouter(store)

	t.Run("by account oldest first", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/history?account=alice"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[HistoryResponse](t, rr)
		require.Len(t, resp.Events, 2)
		assert.Equal(t, string(audit.EventStaked), resp.Events[0].Action)
		assert.Equal(t, string(audit.EventWithdrawn), resp.Events[1].Action)
	})

	t.Run("recent newest first", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/history?limit=2"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[HistoryResponse](t, rr)
		require.Len(t, resp.Events, 2)
		assert.Equal(t, string(audit.EventWithdrawn), resp.Events[0].Action)
		assert.Equal(t, string(audit.EventScoresUpdated), resp.Events[1].Action)
	})

	t.Run("unknown account is empty", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/history?account=nobody"))
		testutil.AssertStatusOK(t, rr)
		assert.Empty(t, testutil.UnmarshalResponse[HistoryResponse](t, rr).Events)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"0", "-1", "abc", "501"} {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/history?limit="+q))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		}
	})

	t.Run("bad account", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/history?account=a%20b"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}

func TestHistoryStoreFailure(t *testing.T) {
	rr := testutil.DoRequest(historyRouter(failingLister{}), testutil.NewRequest(t, http.MethodGet, "/events/history"))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}
