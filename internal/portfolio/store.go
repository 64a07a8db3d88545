package portfolio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultKey names the single portfolio document.
const DefaultKey = "portfolio"

// AnyVersion disables the compare-and-swap check in WriteWhole.
const AnyVersion int64 = -1

var (
	ErrNotFound          = errors.New("document not found")
	ErrVersionConflict   = errors.New("document version changed")
	ErrRemoteUnavailable = errors.New("document store unavailable")
)

// Snapshot is a document at a specific version. Version 0 means the
// document has never been written.
type Snapshot struct {
	Doc       Document
	Version   int64
	UpdatedAt time.Time
}

// Store is the remote document store.
//
// WriteWhole replaces the document if its current version equals
// expectVersion (0 when absent) and returns the new version. Subscribers
// receive every written snapshot; slow subscribers miss updates rather than
// block writers.
type Store interface {
	Read(ctx context.Context, key string) (Snapshot, error)
	WriteWhole(ctx context.Context, key string, doc Document, expectVersion int64) (int64, error)
	Subscribe(key string, ch chan<- Snapshot) (cancel func(), err error)
}

// Broadcaster fans snapshots out to subscriber channels per key.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string][]chan<- Snapshot
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{topics: make(map[string][]chan<- Snapshot)}
}

// Publish delivers snap to every subscriber of key without blocking.
func (b *Broadcaster) Publish(key string, snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[key] {
		select {
		case ch <- Snapshot{Doc: snap.Doc.Clone(), Version: snap.Version, UpdatedAt: snap.UpdatedAt}:
		default:
		}
	}
}

// Subscribe registers ch for key.
func (b *Broadcaster) Subscribe(key string, ch chan<- Snapshot) (func(), error) {
	if ch == nil {
		return nil, errors.New("portfolio: channel must not be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[key] = append(b.topics[key], ch)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.topics[key]
			for i := range subs {
				if subs[i] == ch {
					b.topics[key] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.topics[key]) == 0 {
				delete(b.topics, key)
			}
		})
	}, nil
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	*Broadcaster

	now  func() time.Time
	mu   sync.Mutex
	docs map[string]Snapshot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Broadcaster: NewBroadcaster(), now: time.Now, docs: map[string]Snapshot{}}
}

func (m *MemoryStore) Read(ctx context.Context, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.docs[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Doc = snap.Doc.Clone()
	return snap, nil
}

func (m *MemoryStore) WriteWhole(ctx context.Context, key string, doc Document, expectVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	current := m.docs[key]
	if expectVersion != AnyVersion && current.Version != expectVersion {
		m.mu.Unlock()
		return 0, ErrVersionConflict
	}
	snap := Snapshot{Doc: doc.Clone(), Version: current.Version + 1, UpdatedAt: m.now().UTC()}
	m.docs[key] = snap
	m.mu.Unlock()

	m.Publish(key, snap)
	return snap.Version, nil
}
