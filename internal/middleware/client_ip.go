// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/afida/ingest/internal/util"
)

// ClientIP returns the host part of r.RemoteAddr. Behind a trusted proxy,
// RealIP has already replaced RemoteAddr with the forwarded address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RealIP rewrites r.RemoteAddr from X-Forwarded-For or X-Real-IP, but only
// when the connecting peer is inside trusted. Headers from any other peer
// are ignored, so clients cannot choose their own address.
func RealIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := forwardedIP(r, trusted); ip != "" {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedIP walks X-Forwarded-For from the right and returns the first
// hop that is not a trusted proxy. A malformed hop ends the walk.
func forwardedIP(r *http.Request, trusted []*net.IPNet) string {
	if len(trusted) == 0 || !util.IPInNets(net.ParseIP(ClientIP(r)), trusted) {
		return ""
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		leftmost := ""
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !util.IPInNets(ip, trusted) {
				return ip.String()
			}
			leftmost = ip.String()
		}
		if leftmost != "" {
			return leftmost
		}
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}
