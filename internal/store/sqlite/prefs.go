package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"termfolio/internal/session"
	"termfolio/internal/theme"
)

// Preferences implements session.Persister.
type Preferences struct {
	db *sql.DB
}

var _ session.Persister = (*Preferences)(nil)

func (p *Preferences) Load(ctx context.Context, id string) (session.Prefs, error) {
	var (
		history, aliases, variant string
		sound                     bool
	)
	err := p.db.QueryRowContext(ctx, `SELECT history, aliases, theme, sound FROM session_prefs WHERE session_id = ?`, id).
		Scan(&history, &aliases, &variant, &sound)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Prefs{}, session.ErrNoPrefs
	}
	if err != nil {
		return session.Prefs{}, fmt.Errorf("select prefs: %w", err)
	}

	out := session.Prefs{Theme: theme.Variant(variant), SoundEnabled: sound}
	if err := json.Unmarshal([]byte(history), &out.History); err != nil {
		return session.Prefs{}, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal([]byte(aliases), &out.Aliases); err != nil {
		return session.Prefs{}, fmt.Errorf("decode aliases: %w", err)
	}
	return out, nil
}

func (p *Preferences) Save(ctx context.Context, id string, prefs session.Prefs) error {
	if prefs.History == nil {
		prefs.History = []string{}
	}
	if prefs.Aliases == nil {
		prefs.Aliases = map[string]string{}
	}
	history, err := json.Marshal(prefs.History)
	if err != nil {
		return err
	}
	aliases, err := json.Marshal(prefs.Aliases)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO session_prefs(session_id, history, aliases, theme, sound, updated_at) VALUES(?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET history = excluded.history, aliases = excluded.aliases,
            theme = excluded.theme, sound = excluded.sound, updated_at = excluded.updated_at`,
		id, string(history), string(aliases), string(prefs.Theme), prefs.SoundEnabled, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert prefs: %w", err)
	}
	return nil
}
