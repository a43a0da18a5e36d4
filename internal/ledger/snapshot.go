package ledger

import (
	"context"
	"sync"
	"time"

	dErrors "ccms/pkg/domain-errors"
)

// DefaultTxTimeout bounds an operation when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// Cloner is state that can produce an independent deep copy of itself.
type Cloner[S any] interface {
	Clone() S
}

// Snapshot serializes access to one ledger's state. Update applies a
// mutation to a clone and swaps it in only when the mutation succeeds, so a
// failed operation leaves the committed state exactly as it was.
type Snapshot[S Cloner[S]] struct {
	mu      sync.RWMutex
	state   S
	timeout time.Duration
}

// NewSnapshot wraps the initial state.
func NewSnapshot[S Cloner[S]](initial S) *Snapshot[S] {
	return &Snapshot[S]{state: initial, timeout: DefaultTxTimeout}
}

// SetTimeout changes the default operation bound. Non-positive values are
// ignored.
func (s *Snapshot[S]) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Update runs fn against a draft copy under the write lock and commits the
// draft if fn returns nil.
func (s *Snapshot[S]) Update(ctx context.Context, fn func(ctx context.Context, draft S) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	draft := s.state.Clone()
	if err := fn(ctx, draft); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// View runs fn against the committed state under the read lock. fn must not
// mutate or retain the state.
func (s *Snapshot[S]) View(ctx context.Context, fn func(ctx context.Context, state S) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "read aborted: context cancelled")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, s.state)
}
