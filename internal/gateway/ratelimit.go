package gateway

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked remote addresses so rotating
// source IPs cannot exhaust memory.
const maxTrackedKeys = 4096

// RateLimiter holds a token bucket per remote address. rps <= 0 disables
// limiting entirely.
type RateLimiter struct {
	rps     float64
	maxKeys int
	mu      sync.Mutex
	limit   map[string]*rate.Limiter
}

func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{rps: rps, maxKeys: maxTrackedKeys, limit: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) Enabled() bool { return r.rps > 0 }

// Allow reports whether the remote address may proceed.
func (r *RateLimiter) Allow(remoteAddr string) bool {
	if !r.Enabled() {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limit[host]
	if !ok {
		// Evict only when a new host needs a slot, so a tracked
		// bucket is never reset by its own traffic. The victim is
		// an arbitrary map entry; at worst one rotated-away host
		// regains its burst.
		if len(r.limit) >= r.maxKeys {
			for k := range r.limit {
				delete(r.limit, k)
				break
			}
		}
		burst := int(r.rps * 2)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(r.rps), burst)
		r.limit[host] = lim
	}
	return lim.Allow()
}

// Middleware rejects over-limit requests with 429.
func (r *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(req.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, req)
	}
}
