// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ratelimit limits webhook deliveries per client, either in memory
// (one instance) or in Redis (shared between instances).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowLimiter is one key's budget for the current window. Its bucket
// never refills; a new one is issued when the window ends.
type windowLimiter struct {
	*rate.Limiter
	expires time.Time
}

// limiterCache is a generic rate limiter cache with double-check locking.
type limiterCache[K comparable] struct {
	limiters map[K]*windowLimiter
	mu       sync.RWMutex
	burst    int
	window   time.Duration
}

func newLimiterCache[K comparable](burst int, window time.Duration) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*windowLimiter),
		burst:    burst,
		window:   window,
	}
}

// get returns the rate limiter for a specific key, creating one if needed
// or if the key's window has ended.
func (lc *limiterCache[K]) get(key K, now time.Time) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()

	if exists && now.Before(limiter.expires) {
		return limiter.Limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = lc.limiters[key]; exists && now.Before(limiter.expires) {
		return limiter.Limiter
	}

	limiter = &windowLimiter{
		Limiter: rate.NewLimiter(0, lc.burst),
		expires: now.Add(lc.window),
	}
	lc.limiters[key] = limiter
	return limiter.Limiter
}

func (lc *limiterCache[K]) size() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.limiters)
}

// clearIfExceeds clears all entries if the cache exceeds maxSize.
func (lc *limiterCache[K]) clearIfExceeds(maxSize int) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.limiters) > maxSize {
		lc.limiters = make(map[K]*windowLimiter)
		return true
	}
	return false
}

// Memory is a per-key fixed window: limit requests per window, counted
// from the key's first request, the same as the Redis backend.
type Memory struct {
	cache *limiterCache[string]
	now   func() time.Time
}

// NewMemory creates an in-memory limiter allowing limit requests per window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		cache: newLimiterCache[string](limit, window),
		now:   time.Now,
	}
}

// Allow implements Limiter. It never fails.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()
	return m.cache.get(key, now).AllowN(now, 1), nil
}

// Size returns the number of tracked keys.
func (m *Memory) Size() int {
	return m.cache.size()
}

// ClearIfExceeds forgets every key once more than maxSize are tracked.
// Clients get a fresh window afterwards.
func (m *Memory) ClearIfExceeds(maxSize int) bool {
	return m.cache.clearIfExceeds(maxSize)
}
