package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/metrics"
	"github.com/rs/zerolog"
)

// WindowStore counts requests inside fixed time windows. Hit records one request for key in the window
// containing now and returns the number of requests recorded in that window before it.
type WindowStore interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Requests  int              // Requests allowed per window and client
	Window    time.Duration    // Window length
	Whitelist []string         // IPs or CIDRs exempt from rate limiting
	Now       func() time.Time // Clock, time.Now when nil
}

// WindowIndex numbers the fixed window of length window that contains now. Windows are counted from the
// Unix epoch so every store and every server instance agrees on their boundaries.
func WindowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / windowMillis(window)
}

// WindowEnd returns the instant the window containing now closes.
func WindowEnd(now time.Time, window time.Duration) time.Time {
	ms := windowMillis(window)
	return time.UnixMilli((now.UnixMilli()/ms + 1) * ms)
}

func windowMillis(window time.Duration) int64 {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return ms
}

// RateLimiter implements fixed window rate limiting keyed by client IP.
type RateLimiter struct {
	store        WindowStore
	requests     int
	window       time.Duration
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
	now          func() time.Time
	logger       zerolog.Logger
}

// NewRateLimiter creates a new rate limiter backed by store.
func NewRateLimiter(store WindowStore, cfg RateLimiterConfig, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		store:        store,
		requests:     cfg.Requests,
		window:       cfg.Window,
		whitelistIPs: make(map[string]bool),
		now:          time.Now,
		logger:       logger.With().Str("module", "ratelimit").Logger(),
	}
	if cfg.Now != nil {
		rl.now = cfg.Now
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				rl.logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP extracts the client IP from the request's remote address. Proxy headers are expected to be
// resolved earlier by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware. A store failure lets the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		count, err := rl.store.Hit(r.Context(), "ip:"+ip, rl.window, now)
		if err != nil {
			rl.logger.Error().Err(err).Str("ip", ip).Msg("Failed to record request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requests - int(count) - 1
		if remaining < 0 {
			remaining = 0
		}
		resetAt := WindowEnd(now, rl.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count >= int64(rl.requests) {
			retryAfter := int(math.Ceil(resetAt.Sub(now).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			rl.logger.Warn().
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Int64("count", count).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
