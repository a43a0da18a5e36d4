package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
)

// Limiter applies one limit per caller.
type Limiter struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	rejected prometheus.Counter
	now      func() time.Time
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRegisterer exports the rejection counter.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Limiter) {
		l.rejected = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ccms_rate_limited_requests_total",
			Help: "Requests rejected by the per-caller rate limit",
		})
	}
}

// New builds a limiter allowing limit requests per window for each caller.
func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PerCaller keys the limit on the authenticated caller, falling back to the
// client address. Store failures let the request through.
func (l *Limiter) PerCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "caller:" + string(requestcontext.Caller(ctx))
		if requestcontext.Caller(ctx).IsZero() {
			key = "addr:" + clientAddr(r)
		}

		res, err := l.store.Allow(ctx, key, l.limit, l.window)
		if err != nil {
			l.logger.WarnContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			if l.rejected != nil {
				l.rejected.Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter(l.now())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
