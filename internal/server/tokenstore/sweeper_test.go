package tokenstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records DeleteExpired calls and optionally fails them.
type countingStore struct {
	Store
	calls atomic.Int64
	err   error
}

func (c *countingStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute, WithClock(fixedClock(t0)))
	_, err := s.Issue(ctx, "u1")
	require.NoError(t, err)

	sw := NewSweeper(s, time.Second, fixedClock(t0.Add(time.Hour)), logging.Nop{})
	assert.Equal(t, int64(1), sw.Sweep(ctx))
	assert.Equal(t, int64(0), sw.Sweep(ctx))
}

func TestSweeper_SweepError(t *testing.T) {
	store := &countingStore{err: errors.New("boom")}
	sw := NewSweeper(store, time.Second, fixedClock(t0), logging.Nop{})

	assert.Equal(t, int64(0), sw.Sweep(context.Background()))
	assert.Equal(t, int64(1), store.calls.Load())
}

func TestSweeper_RunDisabled(t *testing.T) {
	store := &countingStore{}
	sw := NewSweeper(store, 0, fixedClock(t0), logging.Nop{})

	done := make(chan struct{})
	go func() {
		sw.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval should return immediately")
	}
	assert.Zero(t, store.calls.Load())
}

func TestSweeper_RunTicksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &countingStore{}
	sw := NewSweeper(store, 5*time.Millisecond, fixedClock(t0), logging.Nop{})

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
