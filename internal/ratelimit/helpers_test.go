package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

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

// failingStore fails every call like an unreachable backend.
type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) IncrementWithTTL(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return 0, 0, util.NewStoreError("increment", key, 0, errors.New("dial tcp 10.0.0.5:6379: connect: connection refused"))
}

func (s *failingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// hangingStore blocks until the call's context is done.
type hangingStore struct{}

func (hangingStore) IncrementWithTTL(ctx context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	<-ctx.Done()
	return 0, 0, util.NewStoreError("increment", key, 0, ctx.Err())
}

// fixedStore answers every call with the same values.
type fixedStore struct {
	count int64
	ttl   time.Duration

	mu      sync.Mutex
	lastCtx context.Context
	lastKey string
}

func (s *fixedStore) IncrementWithTTL(ctx context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCtx = ctx
	s.lastKey = key
	return s.count, s.ttl, nil
}

type recordedDecision struct {
	tier    string
	outcome string
}

type fakeRecorder struct {
	mu          sync.Mutex
	decisions   []recordedDecision
	storeErrors int
	degraded    map[string]int
}

func (r *fakeRecorder) RecordDecision(tier, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, recordedDecision{tier: tier, outcome: outcome})
}

func (r *fakeRecorder) RecordStoreError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrors++
}

func (r *fakeRecorder) RecordDegraded(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.degraded == nil {
		r.degraded = make(map[string]int)
	}
	r.degraded[mode]++
}
