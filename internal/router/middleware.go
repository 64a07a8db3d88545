package router

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"termfolio/internal/logging"
)

type contextKey string

const sessionMetadataKey contextKey = "termfolio.session"

// Descriptor names a middleware so the startup log can list the chain.
type Descriptor struct {
	Name       string
	Middleware wish.Middleware
}

// Limits configures DefaultChain.
type Limits struct {
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxSessions        int
}

// SessionInfo is attached to every session context that passed the chain.
type SessionInfo struct {
	User       string
	RemoteIP   string
	ObserverID string
	StartedAt  time.Time
}

// DefaultChain wires the startup middleware chain in order: rate limiting,
// the concurrent session cap and session metadata.
func DefaultChain(limits Limits, observer func(remoteAddr string) string) []Descriptor {
	return []Descriptor{
		{Name: "rate-limit", Middleware: RateLimit(NewLimiter(limits.RateLimitPerMinute, limits.RateLimitBurst))},
		{Name: "max-sessions", Middleware: MaxSessions(limits.MaxSessions)},
		{Name: "session-metadata", Middleware: sessionMetadata(observer)},
	}
}

// MiddlewareFromDescriptors returns the middleware outermost first.
func MiddlewareFromDescriptors(chain []Descriptor) []wish.Middleware {
	out := make([]wish.Middleware, 0, len(chain))
	for _, d := range chain {
		out = append(out, d.Middleware)
	}
	return out
}

// Compose wraps h so chain[0] runs first.
func Compose(h ssh.Handler, chain []Descriptor) ssh.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i].Middleware(h)
	}
	return h
}

// MaxSessions turns away connections beyond limit concurrent sessions. A
// non-positive limit disables the cap.
func MaxSessions(limit int) wish.Middleware {
	var active atomic.Int64
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			if limit <= 0 {
				next(s)
				return
			}
			if n := active.Add(1); n > int64(limit) {
				active.Add(-1)
				logging.For("router").Warn("session rejected", "event", "max_sessions_reached", "remote_ip", RemoteIP(s), "limit", limit)
				_, _ = s.Write([]byte("too many active sessions, try again later\n"))
				_ = s.Exit(1)
				return
			}
			defer active.Add(-1)
			next(s)
		}
	}
}

func sessionMetadata(observer func(string) string) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			info := SessionInfo{User: s.User(), RemoteIP: RemoteIP(s), StartedAt: time.Now().UTC()}
			if observer != nil && s.RemoteAddr() != nil {
				info.ObserverID = observer(s.RemoteAddr().String())
			}
			s.Context().SetValue(sessionMetadataKey, info)
			next(s)
		}
	}
}

// Info returns the metadata stored by the chain.
func Info(s ssh.Session) (SessionInfo, bool) {
	info, ok := s.Context().Value(sessionMetadataKey).(SessionInfo)
	return info, ok
}
