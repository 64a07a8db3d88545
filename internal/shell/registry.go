package shell

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"termfolio/internal/logging"
)

// ErrRegistryFull is returned by Add once the session cap is reached.
var ErrRegistryFull = errors.New("session limit reached")

// Registry tracks HTTP-driven sessions by opaque id and forgets the ones
// left idle longer than the configured timeout.
type Registry struct {
	idle time.Duration
	max  int
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry returns an empty registry holding at most max sessions. A
// non-positive idle timeout keeps sessions until they are deleted; a
// non-positive max leaves the registry unbounded.
func NewRegistry(idle time.Duration, max int) *Registry {
	return &Registry{idle: idle, max: max, now: time.Now, sessions: map[string]*entry{}}
}

// Add stores s under a new random id.
func (r *Registry) Add(s *Session) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return "", ErrRegistryFull
	}
	id := uuid.NewString()
	r.sessions[id] = &entry{session: s, lastSeen: r.now()}
	return id, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops idle sessions and returns how many it removed.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logger := logging.For("shell")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("idle sessions expired", "event", "sessions_expired", "count", n, "remaining", r.Len())
			}
		}
	}
}
