package portfolio

import (
	"context"
	"errors"

	"termfolio/internal/logging"
)

// Source reports where a document came from.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceDefault Source = "default"
)

// Loader reads the current document for anonymous viewers.
type Loader struct {
	store Store
	key   string
}

// NewLoader reads key from store; a nil store always serves the default.
func NewLoader(store Store, key string) *Loader {
	if key == "" {
		key = DefaultKey
	}
	return &Loader{store: store, key: key}
}

// Current never fails: an absent or unreachable document degrades to the
// packaged default.
func (l *Loader) Current(ctx context.Context) (Document, Source) {
	if l == nil || l.store == nil {
		return Default(), SourceDefault
	}
	snap, err := l.store.Read(ctx, l.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.For("portfolio").Warn("read failed, serving default", "event", "portfolio_read_failed", "key", l.key, "err", err)
		}
		return Default(), SourceDefault
	}
	return snap.Doc, SourceRemote
}

// Store returns the underlying store, nil when none is configured.
func (l *Loader) Store() Store {
	if l == nil {
		return nil
	}
	return l.store
}

// Key returns the document key.
func (l *Loader) Key() string {
	if l == nil {
		return DefaultKey
	}
	return l.key
}
