package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termfolio/internal/theme"
)

type failingPersister struct{ loadErr, saveErr error }

func (f failingPersister) Load(context.Context, string) (Prefs, error) { return Prefs{}, f.loadErr }
func (f failingPersister) Save(context.Context, string, Prefs) error  { return f.saveErr }

func TestNewDefaults(t *testing.T) {
	s := New(context.Background(), "visitor", NewMemoryPersister())

	assert.Equal(t, theme.VariantGreen, s.Theme())
	assert.True(t, s.SoundEnabled())
	assert.False(t, s.Fullscreen())
	assert.Empty(t, s.History())
	assert.Equal(t, -1, s.HistoryIndex())
	assert.Empty(t, s.Aliases())
}

func TestNewLoadFailureFallsBackToDefaults(t *testing.T) {
	s := New(context.Background(), "visitor", failingPersister{loadErr: errors.New("disk gone")})
	assert.Equal(t, theme.VariantGreen, s.Theme())
	assert.True(t, s.SoundEnabled())

	s.SetAlias("ll", "ls")
	cmd, ok := s.Alias("ll")
	assert.True(t, ok)
	assert.Equal(t, "ls", cmd)
}

func TestAddToHistoryIgnoresBlank(t *testing.T) {
	s := New(context.Background(), "v", nil)
	s.AddToHistory("")
	s.AddToHistory("   \t")
	assert.Empty(t, s.History())

	s.AddToHistory("help")
	assert.Equal(t, []string{"help"}, s.History())
}

func TestAddToHistoryEvictsOldest(t *testing.T) {
	s := New(context.Background(), "v", nil)
	for i := 0; i < MaxHistory+25; i++ {
		s.AddToHistory(fmt.Sprintf("cmd-%d", i))
	}

	h := s.History()
	require.Len(t, h, MaxHistory)
	assert.Equal(t, "cmd-25", h[0])
	assert.Equal(t, fmt.Sprintf("cmd-%d", MaxHistory+24), h[len(h)-1])
}

func TestAddToHistoryResetsIndex(t *testing.T) {
	s := New(context.Background(), "v", nil)
	s.AddToHistory("a")
	s.AddToHistory("b")
	s.NavigateHistory(Up)
	require.Equal(t, 1, s.HistoryIndex())

	s.AddToHistory("c")
	assert.Equal(t, -1, s.HistoryIndex())
}

func TestNavigateHistory(t *testing.T) {
	s := New(context.Background(), "v", nil)
	assert.Equal(t, "", s.NavigateHistory(Up), "empty history")
	assert.Equal(t, "", s.NavigateHistory(Down), "empty history")

	for _, c := range []string{"one", "two", "three"} {
		s.AddToHistory(c)
	}

	assert.Equal(t, "", s.NavigateHistory(Down), "down while not browsing")
	assert.Equal(t, -1, s.HistoryIndex())

	assert.Equal(t, "three", s.NavigateHistory(Up))
	assert.Equal(t, "two", s.NavigateHistory(Up))
	assert.Equal(t, "one", s.NavigateHistory(Up))
	assert.Equal(t, "one", s.NavigateHistory(Up), "clamped at oldest")
	assert.Equal(t, 0, s.HistoryIndex())

	assert.Equal(t, "two", s.NavigateHistory(Down))
	assert.Equal(t, "three", s.NavigateHistory(Down))
	assert.Equal(t, "", s.NavigateHistory(Down), "past newest")
	assert.Equal(t, -1, s.HistoryIndex())
	assert.Equal(t, "", s.NavigateHistory(Down))
	assert.Equal(t, -1, s.HistoryIndex())
}

func TestNavigateHistoryNeverLeavesContents(t *testing.T) {
	s := New(context.Background(), "v", nil)
	entries := map[string]bool{"": true}
	for i := 0; i < 5; i++ {
		c := fmt.Sprintf("c%d", i)
		entries[c] = true
		s.AddToHistory(c)
	}

	moves := []Direction{Up, Up, Down, Up, Up, Up, Up, Up, Up, Down, Down, Down, Down, Down, Down, Down, Up, Down, Down}
	for _, m := range moves {
		got := s.NavigateHistory(m)
		assert.True(t, entries[got], "unexpected entry %q", got)
	}
}

func TestOutputLifecycle(t *testing.T) {
	s := New(context.Background(), "v", nil)
	s.AddOutput(Line{Kind: KindInput, Text: "$ help"}, Line{Kind: KindASCII, Text: "box"})
	s.AddOutput()
	require.Equal(t, 2, s.OutputLen())

	out := s.Output()
	out[0].Text = "mutated"
	assert.Equal(t, "$ help", s.Output()[0].Text)

	s.ClearOutput()
	assert.Zero(t, s.OutputLen())
}

func TestSetThemeFiresHooks(t *testing.T) {
	s := New(context.Background(), "v", nil)
	var seen []theme.Variant
	unsubscribe := s.OnThemeChange(func(v theme.Variant) { seen = append(seen, v) })

	require.NoError(t, s.SetTheme(theme.VariantAmber))
	assert.ErrorIs(t, s.SetTheme(theme.Variant("magenta")), theme.ErrUnknownVariant)
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.SetTheme(theme.VariantCyan))

	assert.Equal(t, []theme.Variant{theme.VariantAmber}, seen)
	assert.Equal(t, theme.VariantCyan, s.Theme())
}

func TestPreferencesSurviveReload(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()

	s := New(ctx, "visitor", p)
	s.AddToHistory("help")
	s.SetAlias("ll", "ls -la ./projects/")
	require.NoError(t, s.SetTheme(theme.VariantWhite))
	s.SetSoundEnabled(false)
	s.SetFullscreen(true)
	s.AddOutput(Line{Kind: KindOutput, Text: "x"})

	reloaded := New(ctx, "visitor", p)
	assert.Equal(t, []string{"help"}, reloaded.History())
	assert.Equal(t, map[string]string{"ll": "ls -la ./projects/"}, reloaded.Aliases())
	assert.Equal(t, theme.VariantWhite, reloaded.Theme())
	assert.False(t, reloaded.SoundEnabled())
	assert.False(t, reloaded.Fullscreen(), "fullscreen is session-local")
	assert.Zero(t, reloaded.OutputLen(), "output is session-local")

	other := New(ctx, "someone-else", p)
	assert.Empty(t, other.History())
}

func TestRemoveAlias(t *testing.T) {
	s := New(context.Background(), "v", nil)
	s.SetAlias("h", "help")
	s.SetAlias("c", "clear")
	s.RemoveAlias("h")
	s.RemoveAlias("missing")

	_, ok := s.Alias("h")
	assert.False(t, ok)
	assert.Equal(t, []string{"c"}, s.AliasNames())
}

func TestLoadTrimsOversizedHistory(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	long := make([]string, MaxHistory+10)
	for i := range long {
		long[i] = fmt.Sprintf("c%d", i)
	}
	require.NoError(t, p.Save(ctx, "v", Prefs{History: long, Theme: "bogus", SoundEnabled: true}))

	s := New(ctx, "v", p)
	assert.Len(t, s.History(), MaxHistory)
	assert.Equal(t, "c10", s.History()[0])
	assert.Equal(t, theme.VariantGreen, s.Theme())
}
