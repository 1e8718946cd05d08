package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil)
		req.RemoteAddr = "10.0.0.1:50000"
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests should pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third request throttled, got %v", statuses)
	}

	// A different client has its own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil)
	req.RemoteAddr = "10.0.0.2:50000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client should not be throttled, got %d", rec.Code)
	}
}

func TestRateLimiterHonoursForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil)
		req.RemoteAddr = "127.0.0.1:50000"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: got %d, want %d", i, rec.Code, want)
		}
	}
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	limiter.obtainLimiter("stale")
	now = now.Add(visitorTTL + time.Second)
	limiter.obtainLimiter("fresh")

	limiter.mu.Lock()
	_, staleKept := limiter.visitors["stale"]
	_, freshKept := limiter.visitors["fresh"]
	limiter.mu.Unlock()
	if staleKept {
		t.Fatal("idle visitor should have been pruned")
	}
	if !freshKept {
		t.Fatal("active visitor missing")
	}
}

func TestRateLimitedRoutesReturn429(t *testing.T) {
	f := newFixtureWithConfig(t, Config{RateLimit: RateLimit{RequestsPerSecond: 1, Burst: 1}})

	first := f.get(t, "/v1/leaderboard")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request status: %d", first.StatusCode)
	}
	second := f.get(t, "/v1/leaderboard")
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}

	// Admin endpoints sit outside the public budget.
	doAdmin(t, f, adminToken(t, "test-secret"), "/admin/pause")
}
