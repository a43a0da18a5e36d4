// Package publisher emits ledger events into an audit store and forwards
// them to live subscribers.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"ccms/pkg/domain"
	audit "ccms/pkg/platform/audit"
	"ccms/pkg/requestcontext"
)

// Sink receives every event after it is stored. Deliver must not block.
type Sink interface {
	Deliver(event audit.Event)
}

// Publisher captures ledger events. In sync mode Emit persists before
// returning; with WithAsyncBuffer events are queued and a background
// goroutine drains them, dropping events when the buffer is full.
type Publisher struct {
	store  audit.Store
	sinks  []Sink
	logger *slog.Logger

	queue chan audit.Event
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan audit.Event, n)
		}
	}
}

// WithSinks registers subscribers that receive stored events.
func WithSinks(sinks ...Sink) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sinks...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit fills in ID, timestamp, category and request ID, then stores the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.queue == nil {
		return p.write(ctx, event)
	}

	select {
	case p.queue <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"account", event.Account,
		)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, account domain.AccountID) ([]audit.Event, error) {
	return p.store.ListByAccount(ctx, account)
}

// Close stops the async worker after draining queued events. It is a no-op
// in sync mode and safe to call more than once.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.queue != nil {
			close(p.queue)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.queue {
		if err := p.write(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"account", event.Account,
				"error", err,
			)
		}
	}
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		sink.Deliver(event)
	}
	return nil
}
