package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pageinbox/internal/i18n"
)

func TestRateLimiter_BurstTraffic(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)

	allowed, limited := 0, 0
	for i := 0; i < 20; i++ {
		if rl.Allow("127.0.0.1") {
			allowed++
		} else {
			limited++
		}
	}

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 10, limited)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(5, 100*time.Millisecond)
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "request %d", i+1)
	}
	assert.False(t, rl.Allow(ip))

	time.Sleep(110 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "request %d after reset", i+1)
	}
}

func TestRateLimiter_MultipleIPs(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)

	for _, ip := range []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		assert.True(t, rl.Allow(ip))
		assert.True(t, rl.Allow(ip))
		assert.False(t, rl.Allow(ip), ip)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(10, time.Second)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if rl.Allow(fmt.Sprintf("10.0.0.%d", g%5)) {
					allowed.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int32(50), allowed.Load())
}

func TestRateLimiter_PurgesExpiredWindows(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("10.1.0.%d", i))
	}
	time.Sleep(30 * time.Millisecond)
	rl.Allow("10.2.0.1")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.windows, 1)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(i18n.New("en"), quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "203.0.113.7:4000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests.")
}
