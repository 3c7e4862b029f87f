package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/gateway/internal/util"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_IncrementWithTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	count, remaining, err := s.IncrementWithTTL(ctx, "Production:ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, remaining)

	clock.Advance(15 * time.Second)

	count, remaining, err = s.IncrementWithTTL(ctx, "Production:ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 45*time.Second, remaining)
}

func TestMemoryStore_ResetsAtExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	for range 3 {
		_, _, err := s.IncrementWithTTL(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)

	count, remaining, err := s.IncrementWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, remaining)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_, _, err := s.IncrementWithTTL(ctx, "Production:ip:1.1.1.1", time.Minute)
	require.NoError(t, err)
	count, _, err := s.IncrementWithTTL(ctx, "Production:user:1.1.1.1", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	defer s.Close()
	const n = 500

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.IncrementWithTTL(context.Background(), "k", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, _, err := s.IncrementWithTTL(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), count)
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.IncrementWithTTL(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), util.ErrStoreUnavailable)
}

func TestMemoryStore_Closed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err := s.IncrementWithTTL(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, util.ErrStoreUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}

func TestMemoryStore_Cleanup(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(5*time.Millisecond))
	defer s.Close()

	_, _, err := s.IncrementWithTTL(context.Background(), "short", time.Second)
	require.NoError(t, err)
	_, _, err = s.IncrementWithTTL(context.Background(), "long", time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
}
