package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients caps the client table so an address-spoofing flood
// cannot exhaust memory. Requests beyond the cap are rejected outright.
const maxTrackedClients = 100000

// RateLimiter throttles decision requests per client address with token
// buckets. A decide call is cheap to issue and expensive to serve (it
// fans out to every registered critic), so the limiter sits in front of
// the API to keep one noisy caller from monopolizing the critic pool.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	rate    float64 // sustained decisions per second per client
	burst   int
}

// tokenBucket holds one client's remaining allowance.
type tokenBucket struct {
	tokens   float64
	refilled time.Time
	lastSeen time.Time
}

// take refills the bucket for the elapsed time and consumes one token.
// When the bucket is empty it reports the wait until the next token.
func (b *tokenBucket) take(now time.Time, rate float64, burst int) (remaining int, wait float64, ok bool) {
	b.tokens += now.Sub(b.refilled).Seconds() * rate
	if b.tokens > float64(burst) {
		b.tokens = float64(burst)
	}
	b.refilled = now
	b.lastSeen = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rate, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// NewRateLimiter creates a limiter allowing the given sustained rate
// (decisions per second) with the given burst per client address.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   burst,
	}
}

// Handler enforces the per-client limit, answering 429 with a
// Retry-After hint when a bucket runs dry.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, wait, allowed := rl.allow(clientAddr(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(addr string) (remaining int, wait float64, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.clients[addr]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			return 0, 1.0 / rl.rate, false
		}
		b = &tokenBucket{tokens: float64(rl.burst), refilled: now}
		rl.clients[addr] = b
	}
	return b.take(now, rl.rate, rl.burst)
}

// StartCleanup evicts buckets idle longer than maxIdle every interval,
// so clients that stopped issuing decisions do not pin memory. The
// returned function stops the sweep.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for addr, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, addr)
		}
	}
}

// Len reports the number of tracked client buckets for the health
// surface and tests.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientAddr keys buckets by the connection's remote address only.
// X-Forwarded-For and X-Real-Ip are spoofable, so trusting them would
// let a caller mint fresh buckets per request.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
