// Package feed streams committed ledger events to websocket subscribers.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ccms/pkg/domain"
	"ccms/pkg/platform/audit"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongTimeout   = 2 * pingInterval
)

// filter narrows a subscription. Zero fields match everything.
type filter struct {
	ledger  audit.Ledger
	account domain.AccountID
}

func (f filter) matches(e audit.Event) bool {
	if f.ledger != "" && f.ledger != e.Ledger {
		return false
	}
	if f.account != "" && f.account != e.Account {
		return false
	}
	return true
}

type subscriber struct {
	filter filter
	send   chan []byte
}

// Hub fans events out to subscribers. It implements publisher.Sink; a
// subscriber whose buffer is full is disconnected instead of blocking.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	buffer      int
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	done        chan struct{}
	closeOnce   sync.Once

	connected prometheus.Gauge
	dropped   prometheus.Counter
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithBuffer sets how many undelivered events a subscriber may lag behind.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithRegisterer exports subscriber gauges on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Hub) {
		f := promauto.With(reg)
		h.connected = f.NewGauge(prometheus.GaugeOpts{
			Name: "ccms_feed_subscribers",
			Help: "Connected event feed subscribers",
		})
		h.dropped = f.NewCounter(prometheus.CounterOpts{
			Name: "ccms_feed_dropped_subscribers_total",
			Help: "Subscribers disconnected for falling behind",
		})
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]struct{}),
		buffer:      defaultBuffer,
		logger:      slog.Default(),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deliver implements publisher.Sink.
func (h *Hub) Deliver(event audit.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode feed event", "action", event.Action, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.removeLocked(sub)
			if h.dropped != nil {
				h.dropped.Inc()
			}
			h.logger.Warn("dropping slow feed subscriber", "buffer", h.buffer)
		}
	}
}

func (h *Hub) subscribe(f filter) *subscriber {
	sub := &subscriber{filter: f, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	if h.connected != nil {
		h.connected.Inc()
	}
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// removeLocked closes sub's channel once. Callers hold mu.
func (h *Hub) removeLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	if h.connected != nil {
		h.connected.Dec()
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber with a going-away close frame.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		h.removeLocked(sub)
	}
}

// Register mounts GET /events.
func (h *Hub) Register(r chi.Router) {
	r.Get("/events", h.HandleSubscribe)
}

// HandleSubscribe upgrades to a websocket and streams events as JSON text
// frames. Optional query parameters ledger and account filter the stream.
func (h *Hub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	f := filter{ledger: audit.Ledger(r.URL.Query().Get("ledger"))}
	if raw := r.URL.Query().Get("account"); raw != "" {
		account, err := domain.ParseAccountID(raw)
		if err != nil {
			http.Error(w, "invalid account", http.StatusBadRequest)
			return
		}
		f.account = account
	}

	sub := h.subscribe(f)
	defer h.unsubscribe(sub)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case data, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, h.closeFrame())
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-h.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, h.closeFrame())
			return
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// closeFrame explains why the server ended a stream: shutdown, or a
// subscriber removed for falling behind.
func (h *Hub) closeFrame() []byte {
	select {
	case <-h.done:
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	default:
		return websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind")
	}
}

// readPump discards client frames so control frames are processed, and
// signals closed when the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
