// Package file stores portfolio documents and visitor preferences as JSON
// files in one directory. Every write replaces its file atomically.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"termfolio/internal/portfolio"
	"termfolio/internal/session"
)

const (
	documentsFile = "documents.json"
	prefsFile     = "prefs.json"
)

// Store is a directory holding documents.json and prefs.json.
type Store struct {
	dir   string
	docs  *Documents
	prefs *Preferences
}

// Open uses dir, or a termfolio directory under the user config directory
// when dir is empty.
func Open(dir string) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "termfolio")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}
	return &Store{
		dir: dir,
		docs: &Documents{
			Broadcaster: portfolio.NewBroadcaster(),
			path:        filepath.Join(dir, documentsFile),
			now:         time.Now,
		},
		prefs: &Preferences{path: filepath.Join(dir, prefsFile)},
	}, nil
}

func (s *Store) Dir() string               { return s.dir }
func (s *Store) Documents() *Documents     { return s.docs }
func (s *Store) Preferences() *Preferences { return s.prefs }

type record struct {
	Body      portfolio.Document `json:"body"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Documents implements portfolio.Store.
type Documents struct {
	*portfolio.Broadcaster

	path string
	now  func() time.Time
	mu   sync.Mutex
}

var _ portfolio.Store = (*Documents)(nil)

func (d *Documents) Read(_ context.Context, key string) (portfolio.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := map[string]record{}
	if err := readJSON(d.path, &rows); err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("%w: %v", portfolio.ErrRemoteUnavailable, err)
	}
	rec, ok := rows[key]
	if !ok {
		return portfolio.Snapshot{}, portfolio.ErrNotFound
	}
	return portfolio.Snapshot{Doc: rec.Body.Clone(), Version: rec.Version, UpdatedAt: rec.UpdatedAt}, nil
}

func (d *Documents) WriteWhole(_ context.Context, key string, doc portfolio.Document, expectVersion int64) (int64, error) {
	d.mu.Lock()
	rows := map[string]record{}
	if err := readJSON(d.path, &rows); err != nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", portfolio.ErrRemoteUnavailable, err)
	}
	current := rows[key]
	if expectVersion != portfolio.AnyVersion && current.Version != expectVersion {
		d.mu.Unlock()
		return 0, portfolio.ErrVersionConflict
	}
	rec := record{Body: doc.Clone(), Version: current.Version + 1, UpdatedAt: d.now().UTC()}
	rows[key] = rec
	if err := writeAtomic(d.path, rows); err != nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", portfolio.ErrRemoteUnavailable, err)
	}
	d.mu.Unlock()

	d.Publish(key, portfolio.Snapshot{Doc: rec.Body, Version: rec.Version, UpdatedAt: rec.UpdatedAt})
	return rec.Version, nil
}

// Preferences implements session.Persister.
type Preferences struct {
	path string
	mu   sync.Mutex
}

var _ session.Persister = (*Preferences)(nil)

func (p *Preferences) Load(_ context.Context, id string) (session.Prefs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := map[string]session.Prefs{}
	if err := readJSON(p.path, &rows); err != nil {
		return session.Prefs{}, err
	}
	prefs, ok := rows[id]
	if !ok {
		return session.Prefs{}, session.ErrNoPrefs
	}
	return prefs, nil
}

func (p *Preferences) Save(_ context.Context, id string, prefs session.Prefs) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := map[string]session.Prefs{}
	if err := readJSON(p.path, &rows); err != nil {
		return err
	}
	rows[id] = prefs
	return writeAtomic(p.path, rows)
}

// readJSON leaves target untouched when the file is missing or empty.
func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeAtomic(path string, rows any) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".termfolio-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
