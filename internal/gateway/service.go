// Package gateway applies privileged edits to the portfolio document.
//
// Every operation reads the current document, applies a change to its JSON
// tree, re-validates the result against the typed schema and writes the
// whole document back with a compare-and-swap on the version it read.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"termfolio/internal/auth"
	"termfolio/internal/logging"
	"termfolio/internal/portfolio"
)

var ErrNotAuthenticated = errors.New("Not authenticated. Use: sudo login")

var (
	ErrInvalidPath      = portfolio.ErrInvalidPath
	ErrUnknownField     = portfolio.ErrUnknownField
	ErrNotAnArray       = portfolio.ErrNotAnArray
	ErrIndexOutOfBounds = portfolio.ErrIndexOutOfBounds
	ErrInvalidValue     = portfolio.ErrInvalidValue
	ErrVersionConflict  = portfolio.ErrVersionConflict
)

const (
	maxWriteAttempts = 3
	// lastUpdatedLayout matches the ISO-8601 form browsers produce.
	lastUpdatedLayout = "2006-01-02T15:04:05.000Z"
)

type Service struct {
	store portfolio.Store
	key   string
	now   func() time.Time

	idMu   sync.Mutex
	lastID int64
}

func NewService(store portfolio.Store, key string) (*Service, error) {
	if store == nil {
		return nil, errors.New("gateway: document store is required")
	}
	if key == "" {
		key = portfolio.DefaultKey
	}
	return &Service{store: store, key: key, now: time.Now}, nil
}

// EditField replaces the value at a dot path such as "profile.name" or
// "projects.0.featured".
func (s *Service) EditField(ctx context.Context, who *auth.Identity, path string, value any) error {
	segs, err := s.authorizePath(who, "edit_field", path)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, "edit_field", func(tree map[string]any) (any, error) {
		return portfolio.SetPath(tree, segs, value)
	})
	if errors.Is(err, ErrInvalidValue) {
		// Numbers and booleans typed into a text field keep their literal text.
		if text, ok := scalarText(value); ok {
			return s.mutate(ctx, "edit_field", func(tree map[string]any) (any, error) {
				return portfolio.SetPath(tree, segs, text)
			})
		}
	}
	return err
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

// AddToArray appends item to the array at path. Object items without an id
// get "<last segment>-<epoch millis>".
func (s *Service) AddToArray(ctx context.Context, who *auth.Identity, path string, item any) error {
	segs, err := s.authorizePath(who, "add_to_array", path)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "add_to_array", func(tree map[string]any) (any, error) {
		arr, err := lookupArray(tree, segs)
		if err != nil {
			return nil, err
		}
		next := make([]any, len(arr), len(arr)+1)
		copy(next, arr)
		next = append(next, s.withID(item, segs[len(segs)-1]))
		return portfolio.SetPath(tree, segs, next)
	})
}

// RemoveFromArray deletes the element at index, keeping the order of the rest.
func (s *Service) RemoveFromArray(ctx context.Context, who *auth.Identity, path string, index int) error {
	segs, err := s.authorizePath(who, "remove_from_array", path)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "remove_from_array", func(tree map[string]any) (any, error) {
		arr, err := lookupArray(tree, segs)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(arr) {
			return nil, fmt.Errorf("Index %d %w", index, ErrIndexOutOfBounds)
		}
		next := make([]any, 0, len(arr)-1)
		next = append(next, arr[:index]...)
		next = append(next, arr[index+1:]...)
		return portfolio.SetPath(tree, segs, next)
	})
}

// Initialize overwrites the stored document with the packaged default.
// It does not check versions: the last writer wins.
func (s *Service) Initialize(ctx context.Context, who *auth.Identity) error {
	if who == nil {
		s.reject("initialize", "not_authenticated", "")
		return ErrNotAuthenticated
	}
	doc := portfolio.Default()
	doc.LastUpdated = s.stamp()
	if _, err := s.store.WriteWhole(ctx, s.key, doc, portfolio.AnyVersion); err != nil {
		s.reject("initialize", "store_write_failed", err.Error())
		return mapStoreError(err)
	}
	logging.For("gateway").Info("document initialized", "event", "gateway_document_initialized", "key", s.key, "uid", who.UID)
	return nil
}

func (s *Service) authorizePath(who *auth.Identity, op, path string) ([]string, error) {
	if who == nil {
		s.reject(op, "not_authenticated", path)
		return nil, ErrNotAuthenticated
	}
	segs, err := portfolio.ParsePath(path)
	if err != nil {
		s.reject(op, "invalid_path", path)
		return nil, err
	}
	return segs, nil
}

// mutate runs apply against the current document and writes the result,
// re-reading and re-applying when another writer got there first.
func (s *Service) mutate(ctx context.Context, op string, apply func(map[string]any) (any, error)) error {
	logger := logging.For("gateway")
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		doc, version, err := s.current(ctx)
		if err != nil {
			s.reject(op, "store_read_failed", err.Error())
			return mapStoreError(err)
		}
		tree, err := portfolio.Tree(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		changed, err := apply(tree)
		if err != nil {
			s.reject(op, "rejected", err.Error())
			return err
		}
		root, ok := changed.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: document root must be an object", ErrInvalidValue)
		}
		next, err := portfolio.FromTree(root)
		if err != nil {
			s.reject(op, "schema_mismatch", err.Error())
			return err
		}
		next.LastUpdated = s.stamp()

		_, err = s.store.WriteWhole(ctx, s.key, next, version)
		if errors.Is(err, portfolio.ErrVersionConflict) {
			logger.Debug("version moved, retrying", "event", "gateway_write_conflict", "op", op, "attempt", attempt, "read_version", version)
			continue
		}
		if err != nil {
			s.reject(op, "store_write_failed", err.Error())
			return mapStoreError(err)
		}
		return nil
	}
	s.reject(op, "version_conflict", strconv.Itoa(maxWriteAttempts)+" attempts")
	return ErrVersionConflict
}

// current returns the stored document, or the packaged default at version 0
// when nothing has been written yet.
func (s *Service) current(ctx context.Context) (portfolio.Document, int64, error) {
	snap, err := s.store.Read(ctx, s.key)
	if errors.Is(err, portfolio.ErrNotFound) {
		return portfolio.Default(), 0, nil
	}
	if err != nil {
		return portfolio.Document{}, 0, err
	}
	return snap.Doc, snap.Version, nil
}

func (s *Service) withID(item any, prefix string) any {
	obj, ok := item.(map[string]any)
	if !ok {
		return item
	}
	if id, ok := obj["id"]; ok && id != nil && id != "" && id != false {
		return item
	}
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out["id"] = prefix + "-" + strconv.FormatInt(s.nextID(), 10)
	return out
}

// nextID is the current epoch millisecond, bumped so it never repeats
// within the process.
func (s *Service) nextID() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return ms
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(lastUpdatedLayout)
}

func (s *Service) reject(op, reason, details string) {
	logging.For("gateway").Warn("edit rejected", "event", "gateway_edit_rejected", "op", op, "reason", reason, "details", details)
}

func lookupArray(tree map[string]any, segs []string) ([]any, error) {
	target, err := portfolio.Lookup(tree, segs)
	if err != nil {
		return nil, err
	}
	arr, ok := target.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is %w", strings.Join(segs, "."), ErrNotAnArray)
	}
	return arr, nil
}

