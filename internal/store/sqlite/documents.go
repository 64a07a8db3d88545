package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"termfolio/internal/portfolio"
)

// Documents implements portfolio.Store.
type Documents struct {
	*portfolio.Broadcaster

	store *Store
	now   func() time.Time
}

var _ portfolio.Store = (*Documents)(nil)

func newDocuments(s *Store) *Documents {
	return &Documents{Broadcaster: portfolio.NewBroadcaster(), store: s, now: time.Now}
}

func (d *Documents) Read(ctx context.Context, key string) (portfolio.Snapshot, error) {
	var (
		body    string
		version int64
		updated timestamp
	)
	err := d.store.db.QueryRowContext(ctx, `SELECT body, version, updated_at FROM documents WHERE key = ?`, key).
		Scan(&body, &version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return portfolio.Snapshot{}, portfolio.ErrNotFound
	}
	if err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("%w: read %s: %v", portfolio.ErrRemoteUnavailable, key, err)
	}

	var doc portfolio.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("%w: decode %s: %v", portfolio.ErrRemoteUnavailable, key, err)
	}
	return portfolio.Snapshot{Doc: doc.Clone(), Version: version, UpdatedAt: updated.Time}, nil
}

func (d *Documents) WriteWhole(ctx context.Context, key string, doc portfolio.Document, expectVersion int64) (int64, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	now := d.now().UTC()

	var next int64
	err = d.store.WithTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE key = ?`, key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: read version: %v", portfolio.ErrRemoteUnavailable, err)
		}
		if expectVersion != portfolio.AnyVersion && current != expectVersion {
			return portfolio.ErrVersionConflict
		}
		next = current + 1
		_, err = tx.ExecContext(ctx, `INSERT INTO documents(key, body, version, updated_at) VALUES(?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET body = excluded.body, version = excluded.version, updated_at = excluded.updated_at`,
			key, string(body), next, formatTime(now))
		if err != nil {
			return fmt.Errorf("%w: write: %v", portfolio.ErrRemoteUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.Publish(key, portfolio.Snapshot{Doc: doc, Version: next, UpdatedAt: now})
	return next, nil
}
