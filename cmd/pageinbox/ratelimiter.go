package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/metrics"
	"pageinbox/internal/middleware"
	"pageinbox/internal/service"
)

// RateLimiter is a fixed window limiter keyed by client address.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	windows   map[string]*rateWindow
	lastPurge time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		windows:   make(map[string]*rateWindow),
		lastPurge: time.Now(),
	}
}

// Allow counts one request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastPurge) >= rl.window {
		rl.purge(now)
	}

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.windows[key] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// purge drops expired windows. Callers hold mu.
func (rl *RateLimiter) purge(now time.Time) {
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.window {
			delete(rl.windows, key)
		}
	}
	rl.lastPurge = now
}

// Middleware answers 429 once a client exceeds the limit.
func (rl *RateLimiter) Middleware(tr *i18n.Translator, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := middleware.ClientIP(r)
			if !rl.Allow(ip) {
				metrics.IncrementCounter("rate_limited_total", map[string]string{"path": r.URL.Path}, "Requests rejected by the rate limiter")
				logger.WithFields(logrus.Fields{
					service.LogFieldRemoteIP: ip,
					service.LogFieldURL:      r.URL.Path,
				}).Warn("Rate limit exceeded")
				writeJSON(w, http.StatusTooManyRequests, errors.Envelope{Success: false, Message: tr.T(i18n.KeyTooManyRequests)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
