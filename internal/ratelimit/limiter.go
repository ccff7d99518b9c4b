// Package ratelimit implements a per-IP token-bucket limiter for the HTTP
// transport, adapted from the same pattern used for per-token limiting
// elsewhere in the ecosystem but keyed by remote address instead of an API
// token, since this service has no token-authenticated callers.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerMinute is the steady-state rate allowed per IP.
	DefaultRequestsPerMinute = 300
	// DefaultBurstSize is the bucket depth, absorbing a POS terminal's
	// momentary burst of polling requests.
	DefaultBurstSize = 30
	// cleanupInterval is how often the sweep goroutine runs.
	cleanupInterval = 5 * time.Minute
	// entryTTL is how long an idle IP's bucket is kept before eviction.
	entryTTL = 10 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages one token bucket per client IP.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	rateLimit float64
	burstSize int
	skip      []string
	stopCh    chan struct{}
}

// New creates a Limiter with the given steady-state rate and burst, skipping
// any request whose path starts with one of skipPrefixes (health checks,
// the signage display's high-frequency poll, and the swagger UI are not
// worth gating).
func New(requestsPerMinute, burstSize int, skipPrefixes ...string) *Limiter {
	l := &Limiter{
		entries:   make(map[string]*entry),
		rateLimit: float64(requestsPerMinute) / 60.0,
		burstSize: burstSize,
		skip:      skipPrefixes,
		stopCh:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.rateLimit), l.burstSize)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for ip, e := range l.entries {
				if now.Sub(e.lastSeen) > entryTTL {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stopCh)
}

func (l *Limiter) skipped(path string) bool {
	for _, prefix := range l.skip {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware wraps next with per-IP rate limiting.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !l.Allow(ip) {
			log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
