// Package session holds one visitor's terminal state: command history,
// scrollback, aliases and display preferences.
package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"termfolio/internal/logging"
	"termfolio/internal/theme"
)

// MaxHistory bounds the persisted command history.
const MaxHistory = 100

const persistTimeout = 2 * time.Second

// Kind classifies a scrollback line for rendering.
type Kind string

const (
	KindInput   Kind = "input"
	KindOutput  Kind = "output"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
	KindASCII   Kind = "ascii"
)

// Line is one scrollback entry. Glitch marks lines rendered with the
// distorted effect.
type Line struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text"`
	Glitch bool   `json:"glitch,omitempty"`
}

// Direction selects history navigation.
type Direction int

const (
	Up Direction = iota
	Down
)

// ErrNoPrefs is returned by a Persister that has nothing stored for an id.
var ErrNoPrefs = errors.New("no stored preferences")

// Prefs is the persisted subset of State.
type Prefs struct {
	History      []string          `json:"history"`
	Aliases      map[string]string `json:"aliases"`
	Theme        theme.Variant     `json:"theme"`
	SoundEnabled bool              `json:"sound_enabled"`
}

// DefaultPrefs is what a first-time visitor starts with.
func DefaultPrefs() Prefs {
	return Prefs{Aliases: map[string]string{}, Theme: theme.Default, SoundEnabled: true}
}

// Persister stores Prefs between visits.
type Persister interface {
	Load(ctx context.Context, id string) (Prefs, error)
	Save(ctx context.Context, id string, prefs Prefs) error
}

// State is safe for concurrent use.
type State struct {
	id        string
	persister Persister
	logger    *log.Logger

	mu           sync.Mutex
	history      []string
	historyIndex int
	output       []Line
	aliases      map[string]string
	theme        theme.Variant
	soundEnabled bool
	fullscreen   bool

	hooksMu    sync.Mutex
	themeHooks map[int]func(theme.Variant)
	nextHook   int
}

// New loads the stored preferences for id. A nil persister keeps state in
// memory only; a failed load starts from defaults.
func New(ctx context.Context, id string, persister Persister) *State {
	s := &State{
		id:           id,
		persister:    persister,
		logger:       logging.For("session"),
		historyIndex: -1,
		themeHooks:   map[int]func(theme.Variant){},
	}

	prefs := DefaultPrefs()
	if persister != nil {
		loaded, err := persister.Load(ctx, id)
		switch {
		case err == nil:
			prefs = normalize(loaded)
		case errors.Is(err, ErrNoPrefs):
		default:
			s.logger.Warn("load preferences failed", "event", "prefs_load_failed", "session", id, "err", err)
		}
	}

	s.history = prefs.History
	s.aliases = prefs.Aliases
	s.theme = prefs.Theme
	s.soundEnabled = prefs.SoundEnabled
	return s
}

func normalize(p Prefs) Prefs {
	if len(p.History) > MaxHistory {
		p.History = p.History[len(p.History)-MaxHistory:]
	}
	p.History = append([]string(nil), p.History...)
	aliases := make(map[string]string, len(p.Aliases))
	for k, v := range p.Aliases {
		aliases[k] = v
	}
	p.Aliases = aliases
	if !p.Theme.Valid() {
		p.Theme = theme.Default
	}
	return p
}

// ID returns the key preferences are stored under.
func (s *State) ID() string { return s.id }

// AddToHistory appends cmd unless it is blank and stops history browsing.
func (s *State) AddToHistory(cmd string) {
	if strings.TrimSpace(cmd) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, cmd)
	if len(s.history) > MaxHistory {
		s.history = append([]string(nil), s.history[len(s.history)-MaxHistory:]...)
	}
	s.historyIndex = -1
	s.persistLocked()
}

// History returns a copy of the history, oldest first.
func (s *State) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// HistoryIndex returns the browse position, -1 when not browsing.
func (s *State) HistoryIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyIndex
}

// NavigateHistory steps through history and returns the selected entry, or
// "" when the step leaves browsing mode.
func (s *State) NavigateHistory(dir Direction) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if n == 0 {
		return ""
	}

	switch dir {
	case Up:
		if s.historyIndex == -1 {
			s.historyIndex = n - 1
		} else if s.historyIndex > 0 {
			s.historyIndex--
		}
	case Down:
		if s.historyIndex == -1 {
			return ""
		}
		if s.historyIndex >= n-1 {
			s.historyIndex = -1
			return ""
		}
		s.historyIndex++
	}
	return s.history[s.historyIndex]
}

// AddOutput appends scrollback lines.
func (s *State) AddOutput(lines ...Line) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = append(s.output, lines...)
}

// ClearOutput empties the scrollback.
func (s *State) ClearOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = nil
}

// Output returns a copy of the scrollback.
func (s *State) Output() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.output...)
}

// OutputLen returns the scrollback length.
func (s *State) OutputLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.output)
}

// Theme returns the active scheme.
func (s *State) Theme() theme.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme switches the scheme and notifies theme hooks.
func (s *State) SetTheme(v theme.Variant) error {
	if !v.Valid() {
		return theme.ErrUnknownVariant
	}
	s.mu.Lock()
	s.theme = v
	s.persistLocked()
	s.mu.Unlock()

	s.hooksMu.Lock()
	hooks := make([]func(theme.Variant), 0, len(s.themeHooks))
	for _, fn := range s.themeHooks {
		hooks = append(hooks, fn)
	}
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(v)
	}
	return nil
}

// OnThemeChange registers fn to run after every SetTheme.
func (s *State) OnThemeChange(fn func(theme.Variant)) (unsubscribe func()) {
	s.hooksMu.Lock()
	id := s.nextHook
	s.nextHook++
	s.themeHooks[id] = fn
	s.hooksMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.hooksMu.Lock()
			delete(s.themeHooks, id)
			s.hooksMu.Unlock()
		})
	}
}

// SoundEnabled reports the typing-sound preference.
func (s *State) SoundEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soundEnabled
}

func (s *State) SetSoundEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.soundEnabled = on
	s.persistLocked()
}

// SetAlias defines or replaces an alias.
func (s *State) SetAlias(name, cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[name] = cmd
	s.persistLocked()
}

// RemoveAlias deletes an alias; unknown names are ignored.
func (s *State) RemoveAlias(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aliases[name]; !ok {
		return
	}
	delete(s.aliases, name)
	s.persistLocked()
}

func (s *State) Alias(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.aliases[name]
	return cmd, ok
}

// Aliases returns a copy of the alias table.
func (s *State) Aliases() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// AliasNames returns alias names in sorted order.
func (s *State) AliasNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.aliases))
	for k := range s.aliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *State) Fullscreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullscreen
}

// SetFullscreen is session-local and never persisted.
func (s *State) SetFullscreen(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullscreen = on
}

func (s *State) persistLocked() {
	if s.persister == nil {
		return
	}
	aliases := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		aliases[k] = v
	}
	prefs := Prefs{
		History:      append([]string(nil), s.history...),
		Aliases:      aliases,
		Theme:        s.theme,
		SoundEnabled: s.soundEnabled,
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.id, prefs); err != nil {
		s.logger.Warn("save preferences failed", "event", "prefs_save_failed", "session", s.id, "err", err)
	}
}
