package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccms/pkg/domain"
	audit "ccms/pkg/platform/audit"
	"ccms/pkg/platform/audit/store/memory"
	"ccms/pkg/requestcontext"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Deliver(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &recordingSink{}
	pub := NewPublisher(store, WithSinks(sink))
	defer pub.Close()

	account := domain.AccountID("alice")
	err := pub.Emit(context.Background(), audit.Event{
		Ledger:  audit.LedgerReputation,
		Account: account,
		Action:  string(audit.EventAccountRegistered),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), account)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventAccountRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryRegistry, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 1, sink.len())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	account := domain.AccountID("bob")
	err := pub.Emit(context.Background(), audit.Event{
		Ledger:  audit.LedgerStaking,
		Account: account,
		Action:  string(audit.EventStaked),
		Amount:  10,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), account)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	account := domain.AccountID("carol")
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Account: account,
			Action:  string(audit.EventScoresUpdated),
		})
		require.NoError(t, err)
	}

	pub.Close()
	pub.Close()

	events, err := store.ListByAccount(context.Background(), account)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pub.Emit(context.Background(), audit.Event{
				Account: "dave",
				Action:  string(audit.EventStaked),
			}))
		}()
	}
	wg.Wait()
}

func TestPublisher_UsesRequestContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)
	ctx = requestcontext.WithRequestID(ctx, "req-42")

	require.NoError(t, pub.Emit(ctx, audit.Event{Account: "erin", Action: string(audit.EventWithdrawn)}))

	events, err := pub.List(context.Background(), "erin")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "req-42", events[0].RequestID)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Account:   "frank",
		Action:    string(audit.EventLedgerInitialized),
		Timestamp: customTime,
	}))

	events, err := pub.List(context.Background(), "frank")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
	assert.Equal(t, audit.CategoryLifecycle, events[0].Category)
}
