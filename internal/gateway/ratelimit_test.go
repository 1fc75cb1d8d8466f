package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("10.0.0.1:1234") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	rl := NewRateLimiter(1) // burst 2
	if !rl.Allow("10.0.0.1:1234") || !rl.Allow("10.0.0.1:5678") {
		t.Fatal("burst requests rejected")
	}
	if rl.Allow("10.0.0.1:9999") {
		t.Error("third immediate request allowed past the burst")
	}
	// A different host has its own bucket.
	if !rl.Allow("10.0.0.2:1234") {
		t.Error("fresh host rejected")
	}
}

// Hitting the key cap must not reset the bucket of a host that is
// already tracked; eviction only happens for a genuinely new host.
func TestRateLimiterFullMapKeepsTrackedBuckets(t *testing.T) {
	rl := NewRateLimiter(1) // burst 2
	rl.maxKeys = 2

	if !rl.Allow("10.0.0.1:1") || !rl.Allow("10.0.0.1:2") {
		t.Fatal("burst requests rejected")
	}
	if rl.Allow("10.0.0.1:3") {
		t.Fatal("third immediate request allowed past the burst")
	}
	if !rl.Allow("10.0.0.2:1") {
		t.Fatal("second host rejected")
	}

	// Map is at capacity. The exhausted host keeps its empty bucket.
	if rl.Allow("10.0.0.1:4") {
		t.Error("tracked host regained its burst at capacity")
	}
	// A new host still gets a slot by evicting someone else.
	if !rl.Allow("10.0.0.3:1") {
		t.Error("new host rejected at capacity")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1)
	calls := 0
	h := rl.Middleware(func(w http.ResponseWriter, r *http.Request) { calls++ })

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}
