// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/afida/ingest/internal/util"
)

// Fetch limits.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 10 * 1024 * 1024
	UserAgent       = "AfidaIngest/1.0"
)

// Fetch errors. All of them leave the draft without a cover.
var (
	ErrInvalidURL = errors.New("invalid image url")
	ErrBadStatus  = errors.New("unexpected response status")
	ErrTooLarge   = errors.New("image exceeds size limit")
)

// FetcherConfig holds download limits.
type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// Download is a fetched image body. URL is the address that was asked
// for; FinalURL is where redirects ended up.
type Download struct {
	URL         *url.URL
	FinalURL    *url.URL
	Data        []byte
	ContentType string
}

// Fetcher downloads remote images with a timeout and a size cap.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a fetcher. A nil client gets an SSRF-safe client
// that refuses private and reserved addresses.
func NewFetcher(client *http.Client, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = util.SafeHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

// Fetch GETs rawURL and returns its body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	u, err := util.ParseRemoteURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &Download{
		URL:         u,
		FinalURL:    resp.Request.URL,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
