// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis limiter.
type RedisOptions struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// Prefix is prepended to all keys (e.g., "afida:")
	Prefix string

	Limit  int
	Window time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultRedisOptions returns sensible defaults.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:         "afida:",
		Limit:          100,
		Window:         time.Hour,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
	}
}

// Redis is a fixed-window counter shared by every instance using the
// same Redis and prefix.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedis connects to opts.URL and verifies the connection.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if opts.Limit <= 0 || opts.Window <= 0 {
		return nil, errors.New("redis limiter needs a positive limit and window")
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}

	client := redis.NewClient(redisOpts)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisWithClient(client, opts.Prefix, opts.Limit, opts.Window), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

func (r *Redis) key(key string) string {
	return r.prefix + "ratelimit:" + key
}

// Allow implements Limiter. The first hit of a window sets its expiry.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.key(key)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing %s: %w", k, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("setting expiry on %s: %w", k, err)
		}
	}

	return count <= r.limit, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
