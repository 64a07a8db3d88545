package router

import (
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"termfolio/internal/logging"
)

const (
	defaultPerMinute = 30
	defaultBurst     = 10
)

type ipBucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-key token bucket. The SSH chain keys it by client IP and
// the HTTP contact relay reuses it the same way.
type Limiter struct {
	ratePerSecond float64
	burst         float64

	mu      sync.Mutex
	buckets map[string]ipBucket
}

// NewLimiter allows burst immediate events per key, refilled at
// limitPerMinute. Non-positive values fall back to 30/min and a burst of 10.
func NewLimiter(limitPerMinute, burst int) *Limiter {
	if limitPerMinute <= 0 {
		limitPerMinute = defaultPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Limiter{
		ratePerSecond: float64(limitPerMinute) / 60.0,
		burst:         float64(burst),
		buckets:       make(map[string]ipBucket),
	}
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[key]
	if bucket.last.IsZero() {
		bucket = ipBucket{tokens: l.burst, last: now}
	}

	elapsed := now.Sub(bucket.last).Seconds()
	if elapsed > 0 {
		bucket.tokens += elapsed * l.ratePerSecond
		if bucket.tokens > l.burst {
			bucket.tokens = l.burst
		}
		bucket.last = now
	}

	if bucket.tokens < 1 {
		l.buckets[key] = bucket
		return false
	}

	bucket.tokens--
	l.buckets[key] = bucket
	return true
}

// RateLimit enforces per-IP connection limits using l.
func RateLimit(l *Limiter) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			now := time.Now().UTC()
			ip := RemoteIP(s)
			if !l.Allow(ip, now) {
				logging.For("router").Warn("connection throttled", "event", "rate_limit_throttled", "remote_ip", ip)
				_, _ = s.Write([]byte("rate limit exceeded\n"))
				return
			}
			next(s)
		}
	}
}

// RemoteIP is the host part of the session's remote address.
func RemoteIP(s ssh.Session) string {
	remote := s.RemoteAddr()
	if remote == nil {
		return "unknown"
	}
	return HostOnly(remote.String())
}

// HostOnly strips the port from addr, keeping addr when it has none.
func HostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
