// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AllowsBurstThenBlocks(t *testing.T) {
	m := NewMemory(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "203.0.113.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := m.Allow(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Allow(ctx, "203.0.113.2")
	require.NoError(t, err)
	assert.True(t, ok, "other clients keep their own bucket")
}

func TestMemory_FixedWindow(t *testing.T) {
	m := NewMemory(3, time.Hour)
	clock := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	allowedIn := func(d time.Duration, step time.Duration) int {
		n := 0
		for end := clock.Add(d); clock.Before(end); clock = clock.Add(step) {
			if ok, _ := m.Allow(ctx, "203.0.113.1"); ok {
				n++
			}
		}
		return n
	}

	// One request every minute for the first window never exceeds the limit.
	assert.Equal(t, 3, allowedIn(time.Hour, time.Minute))

	// The next window starts with a full budget.
	assert.Equal(t, 3, allowedIn(time.Hour, time.Minute))
}

func TestMemory_WindowStartsAtFirstRequest(t *testing.T) {
	m := NewMemory(1, time.Hour)
	clock := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "k")
	assert.True(t, ok)

	clock = clock.Add(59 * time.Minute)
	ok, _ = m.Allow(ctx, "k")
	assert.False(t, ok)

	clock = clock.Add(time.Minute)
	ok, _ = m.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_ClearIfExceeds(t *testing.T) {
	m := NewMemory(1, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = m.Allow(ctx, fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 5, m.Size())

	assert.False(t, m.ClearIfExceeds(10))
	assert.Equal(t, 5, m.Size())

	assert.True(t, m.ClearIfExceeds(4))
	assert.Equal(t, 0, m.Size())

	ok, _ := m.Allow(ctx, "10.0.0.0")
	assert.True(t, ok)
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory(50, time.Hour)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(ctx, "same"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func newTestRedis(t *testing.T, limit int, window time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	opts := DefaultRedisOptions()
	opts.URL = "redis://" + mr.Addr()
	opts.Prefix = "test:"
	opts.Limit = limit
	opts.Window = window

	r, err := NewRedis(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedis_FixedWindow(t *testing.T) {
	r, mr := newTestRedis(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, "198.51.100.7")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := r.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("test:ratelimit:198.51.100.7"))

	mr.FastForward(time.Minute + time.Second)

	ok, err = r.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ErrorWhenUnavailable(t *testing.T) {
	r, mr := newTestRedis(t, 2, time.Minute)
	mr.Close()

	_, err := r.Allow(context.Background(), "198.51.100.7")
	assert.Error(t, err)
}

func TestNewRedis_Validation(t *testing.T) {
	_, err := NewRedis(RedisOptions{})
	assert.Error(t, err)

	_, err = NewRedis(RedisOptions{URL: "redis://localhost:6379", Limit: 0, Window: time.Minute})
	assert.Error(t, err)

	_, err = NewRedis(RedisOptions{URL: "://bad", Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}
