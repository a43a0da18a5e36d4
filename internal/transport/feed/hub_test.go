package feed

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccms/pkg/platform/audit"
)

func newTestHub(opts ...Option) *Hub {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewHub(opts...)
}

func dial(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	hub.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFeedStreamsEvents(t *testing.T) {
	hub := newTestHub()
	conn := dial(t, hub, "")
	require.Equal(t, 1, hub.Len())

	hub.Deliver(audit.Event{Ledger: audit.LedgerStaking, Action: string(audit.EventStaked), Account: "alice", Amount: 10, Value: 10})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got audit.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, string(audit.EventStaked), got.Action)
	assert.Equal(t, uint64(10), got.Amount)
}

func TestFeedFiltersByLedgerAndAccount(t *testing.T) {
	hub := newTestHub()
	conn := dial(t, hub, "?ledger=reputation&account=bob")

	hub.Deliver(audit.Event{Ledger: audit.LedgerStaking, Action: string(audit.EventStaked), Account: "bob"})
	hub.Deliver(audit.Event{Ledger: audit.LedgerReputation, Action: string(audit.EventScoresUpdated), Account: "alice"})
	hub.Deliver(audit.Event{Ledger: audit.LedgerReputation, Action: string(audit.EventScoresUpdated), Account: "bob", Value: 25})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got audit.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, audit.LedgerReputation, got.Ledger)
	assert.Equal(t, uint64(25), got.Value)
}

func TestFeedRejectsInvalidAccountFilter(t *testing.T) {
	hub := newTestHub()
	rr := httptest.NewRecorder()
	hub.HandleSubscribe(rr, httptest.NewRequest(http.MethodGet, "/events?account=a%20b", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, hub.Len())
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newTestHub(WithBuffer(1), WithRegisterer(reg))
	slow := hub.subscribe(filter{})
	fast := hub.subscribe(filter{})

	hub.Deliver(audit.Event{Action: "first"})
	<-fast.send
	hub.Deliver(audit.Event{Action: "second"})

	assert.Equal(t, 1, hub.Len())
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "dropped subscriber's channel is closed")
	assert.Equal(t, float64(1), promtest.ToFloat64(hub.dropped))
	assert.Equal(t, float64(1), promtest.ToFloat64(hub.connected))

	hub.unsubscribe(slow)
	hub.Close()
	assert.Zero(t, hub.Len())
	assert.Equal(t, float64(0), promtest.ToFloat64(hub.connected))
}

func TestCloseDisconnectsWebsocketClients(t *testing.T) {
	hub := newTestHub()
	conn := dial(t, hub, "")

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	hub.Close()
}

func TestDroppedWebsocketClientIsToldToRetry(t *testing.T) {
	hub := newTestHub()
	conn := dial(t, hub, "")

	hub.mu.Lock()
	for sub := range hub.subscribers {
		hub.removeLocked(sub)
	}
	hub.mu.Unlock()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
}
