// Package dedup records which activity events were already applied.
package dedup

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many successful claims pass between expiry sweeps.
const sweepEvery = 256

// Memory is a process-local claim set with expiry. Expired claims are
// reclaimable at once and removed from the map by a periodic sweep.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	claims     map[string]time.Time
	claimed    int
	sweepEvery int
}

type MemoryOption func(*Memory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory keeps claims for ttl.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:        ttl,
		now:        time.Now,
		claims:     make(map[string]time.Time),
		sweepEvery: sweepEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if expires, ok := m.claims[id]; ok && now.Before(expires) {
		return false, nil
	}
	m.claims[id] = now.Add(m.ttl)
	m.claimed++
	if m.claimed%m.sweepEvery == 0 {
		m.sweep(now)
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, id)
	return nil
}

// sweep drops expired claims. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	for id, expires := range m.claims {
		if !now.Before(expires) {
			delete(m.claims, id)
		}
	}
}
