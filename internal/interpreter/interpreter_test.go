package interpreter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termfolio/internal/portfolio"
	"termfolio/internal/session"
	"termfolio/internal/theme"
)

type stubContent struct{ doc portfolio.Document }

func (s stubContent) Current(context.Context) (portfolio.Document, portfolio.Source) {
	return s.doc, portfolio.SourceRemote
}

func newTest(t *testing.T) (*Interpreter, *session.State) {
	t.Helper()
	in := New(Options{Host: "test", Intn: func(int) int { return 9 }})
	return in, session.New(context.Background(), "visitor", nil)
}

func run(in *Interpreter, st *session.State, line string) Outcome {
	return in.Execute(context.Background(), st, line)
}

func TestEchoAndHistory(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "help")

	require.Len(t, out.Lines, 2)
	assert.Equal(t, session.Line{Kind: session.KindInput, Text: "guest@test:~$ help"}, out.Lines[0])
	assert.Equal(t, session.KindASCII, out.Lines[1].Kind)
	assert.Contains(t, out.Lines[1].Text, "AVAILABLE COMMANDS")
	assert.Equal(t, TagOutput, out.Tag)
	assert.Equal(t, []string{"help"}, st.History())
	assert.Equal(t, out.Lines, st.Output())
}

func TestBlankInputOnlyEchoes(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "   ")
	require.Len(t, out.Lines, 1)
	assert.Equal(t, session.KindInput, out.Lines[0].Kind)
	assert.Empty(t, st.History())
}

func TestNotFoundSuggestions(t *testing.T) {
	in, st := newTest(t)

	out := run(in, st, "claer")
	require.Len(t, out.Lines, 2)
	assert.Equal(t, session.Line{
		Kind:   session.KindError,
		Text:   "claer: command not found\n\nDid you mean 'clear'?\nType 'help' for available commands.",
		Glitch: true,
	}, out.Lines[1])

	out = run(in, st, "xyzzy now")
	assert.Equal(t, "xyzzy: command not found\nType 'help' for available commands.", out.Lines[1].Text)
	assert.True(t, out.Lines[1].Glitch)
}

func TestAliasExpandsToSameOutput(t *testing.T) {
	in, st := newTest(t)
	created := run(in, st, "alias ll='ls -la ./projects/'")
	assert.Equal(t, "Alias created: ll='ls -la ./projects/'", created.Lines[1].Text)
	assert.Equal(t, TagMutate, created.Tag)

	viaAlias := run(in, st, "ll")
	direct := run(in, st, "ls -la ./projects/")

	assert.Equal(t, "guest@test:~$ ll", viaAlias.Lines[0].Text, "echo shows what was typed")
	assert.Equal(t, direct.Lines[1:], viaAlias.Lines[1:])
	assert.Equal(t, TagNavigate, viaAlias.Tag)
	assert.Equal(t, "projects", viaAlias.Section)
}

func TestAliasCommands(t *testing.T) {
	in, st := newTest(t)
	assert.Equal(t, "No aliases defined. Use: alias name=command", run(in, st, "alias").Lines[1].Text)

	bad := run(in, st, "alias nothing")
	assert.Equal(t, session.KindError, bad.Lines[1].Kind)
	assert.Equal(t, "Usage: alias name=command", bad.Lines[1].Text)

	run(in, st, `alias h="help"`)
	run(in, st, "alias c=clear")
	assert.Equal(t, "Defined aliases:\n  c='clear'\n  h='help'", run(in, st, "alias").Lines[1].Text)

	removed := run(in, st, "unalias H")
	assert.Equal(t, "Alias 'h' removed", removed.Lines[1].Text)
	_, ok := st.Alias("h")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	in, st := newTest(t)
	run(in, st, "help")
	out := run(in, st, "clear")

	assert.True(t, out.Cleared)
	assert.Empty(t, out.Lines)
	assert.Zero(t, st.OutputLen())
	assert.Equal(t, []string{"help", "clear"}, st.History())
}

func TestThemeCommands(t *testing.T) {
	in, st := newTest(t)

	out := run(in, st, "THEME Amber")
	assert.Equal(t, TagMutate, out.Tag)
	assert.Equal(t, "Theme changed to amber", out.Lines[1].Text)
	assert.Equal(t, theme.VariantAmber, st.Theme())

	out = run(in, st, "theme magenta")
	assert.Equal(t, session.KindError, out.Lines[1].Kind)
	assert.Equal(t, "Invalid theme. Available: green, amber, cyan, white", out.Lines[1].Text)
	assert.Equal(t, theme.VariantAmber, st.Theme())

	out = run(in, st, "theme")
	assert.Equal(t, "Current theme: amber\nAvailable: green, amber, cyan, white", out.Lines[1].Text)
}

func TestToggles(t *testing.T) {
	in, st := newTest(t)
	run(in, st, "mute")
	assert.False(t, st.SoundEnabled())
	run(in, st, "unmute")
	assert.True(t, st.SoundEnabled())

	out := run(in, st, "fs")
	assert.True(t, st.Fullscreen())
	assert.Equal(t, []Effect{{Kind: EffectFullscreen}}, out.Effects)
}

func TestNavigation(t *testing.T) {
	in, st := newTest(t)

	out := run(in, st, "cd Projects")
	assert.Equal(t, TagNavigate, out.Tag)
	assert.Equal(t, "projects", out.Section)
	assert.Equal(t, "Navigating to projects...", out.Lines[1].Text)

	out = run(in, st, "cd nowhere")
	assert.Equal(t, TagOutput, out.Tag)
	assert.Equal(t, "cd: nowhere: No such directory", out.Lines[1].Text)

	out = run(in, st, "ls")
	assert.Equal(t, "Available sections: home  about  experience  projects  skills  achievements  contact", out.Lines[1].Text)
}

func TestCatMissingFileGlitches(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "cat ./Secrets.txt")
	assert.Equal(t, session.Line{Kind: session.KindError, Text: "cat: ./secrets.txt: No such file or directory", Glitch: true}, out.Lines[1])
}

func TestContentRendersCurrentDocument(t *testing.T) {
	doc := portfolio.Default()
	doc.Profile.Name = "Stub Person"
	doc.Profile.Roles = []string{"Tester"}
	in := New(Options{Host: "test", Content: stubContent{doc: doc}})
	st := session.New(context.Background(), "v", nil)

	tests := []struct {
		line    string
		section string
		want    string
	}{
		{"cat ./identity.txt", "home", "Stub Person"},
		{"cat about", "about", doc.About.University},
		{"whoami", "skills", `"user": "stub-person"`},
		{"cat achievements.log", "achievements", doc.Achievements[0].Title},
		{"ls ./projects", "projects", doc.Projects[0].ID + "/"},
		{"history -w", "experience", doc.Experiences[0].Company},
		{"./send_message.sh", "contact", doc.Profile.Socials[0].Label},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out := run(in, st, tt.line)
			assert.Equal(t, TagNavigate, out.Tag)
			assert.Equal(t, tt.section, out.Section)
			require.Len(t, out.Lines, 2)
			assert.Contains(t, out.Lines[1].Text, tt.want)
		})
	}
}

func TestSkillsIsValidJSON(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "cat ./skills.json")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Lines[1].Text), &decoded))
	assert.Equal(t, "sam-rivera", decoded["user"])
	assert.Contains(t, decoded, "languages")
}

func TestHistoryListsEarlierCommands(t *testing.T) {
	in, st := newTest(t)
	assert.Equal(t, "No commands in history.", run(in, st, "history").Lines[1].Text)

	run(in, st, "tree")
	out := run(in, st, "history")
	assert.Equal(t, "  1  history\n  2  tree", out.Lines[1].Text)
}

func TestFortuneUsesPicker(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "fortune")
	assert.Equal(t, "\n🔮 \"Talk is cheap. Show me the code.\" - Linus Torvalds\n", out.Lines[1].Text)
}

func TestEffects(t *testing.T) {
	in, st := newTest(t)
	assert.Equal(t, []Effect{{Kind: EffectMatrix}}, run(in, st, "matrix").Effects)
	assert.Equal(t, []Effect{{Kind: EffectDownloadResume}}, run(in, st, "wget resume").Effects)

	mail := run(in, st, "mail me")
	assert.Equal(t, []Effect{{Kind: EffectMailto, Target: "mailto:" + portfolio.Default().Profile.Email}}, mail.Effects)
	assert.Equal(t, "Opening mail client...", mail.Lines[1].Text)
}

func TestEasterEggs(t *testing.T) {
	in, st := newTest(t)
	assert.Contains(t, run(in, st, "hack NASA").Lines[1].Text, "[*] Target: NASA")
	assert.Contains(t, run(in, st, "hack NASA").Lines[1].Text, "100%\n")

	for _, line := range []string{"rm -rf /", "sudo rm -rf /"} {
		out := run(in, st, line)
		assert.Equal(t, session.KindError, out.Lines[1].Kind, line)
		assert.Contains(t, out.Lines[1].Text, "Permission denied", line)
	}
	assert.Contains(t, run(in, st, "exit").Lines[1].Text, "you can never leave")
	assert.Contains(t, run(in, st, "man theme").Lines[1].Text, "theme - change terminal color theme")
	assert.Equal(t, "No manual entry for ls", run(in, st, "man ls").Lines[1].Text)
}

func TestSudoRequests(t *testing.T) {
	tests := []struct {
		line string
		tag  Tag
		auth AuthAction
		edit *EditRequest
		err  string
	}{
		{line: "sudo login", tag: TagNeedsAuthFlow, auth: AuthLogin},
		{line: "SUDO LOGOUT", tag: TagNeedsAuthFlow, auth: AuthLogout},
		{line: "sudo status", tag: TagNeedsAuthFlow, auth: AuthStatus},
		{line: "sudo init", tag: TagNeedsEdit, edit: &EditRequest{Op: EditInit}},
		{line: `sudo edit profile.name "New Name"`, tag: TagNeedsEdit, edit: &EditRequest{Op: EditField, Path: "profile.name", Value: "New Name"}},
		{line: "sudo edit projects.0.featured true", tag: TagNeedsEdit, edit: &EditRequest{Op: EditField, Path: "projects.0.featured", Value: true}},
		{line: "sudo edit about.gpa 3.9", tag: TagNeedsEdit, edit: &EditRequest{Op: EditField, Path: "about.gpa", Value: json.Number("3.9")}},
		{line: `sudo edit profile.roles '["Dev","Designer"]'`, tag: TagNeedsEdit, edit: &EditRequest{Op: EditField, Path: "profile.roles", Value: []any{"Dev", "Designer"}}},
		{line: "sudo edit profile.name", tag: TagOutput, err: "Usage: sudo edit <path> <value>\nExample: sudo edit profile.name \"New Name\""},
		{line: `sudo add projects {"name":"New"}`, tag: TagNeedsEdit, edit: &EditRequest{Op: EditAdd, Path: "projects", Value: map[string]any{"name": "New"}}},
		{line: "sudo add projects {oops", tag: TagOutput, err: `Invalid JSON. Use: sudo add <path> {"key":"value"}`},
		{line: "sudo add projects", tag: TagOutput, err: "Usage: sudo add <path> <json>\nExample: sudo add projects {\"name\":\"New\"}"},
		{line: "sudo remove experiences 1", tag: TagNeedsEdit, edit: &EditRequest{Op: EditRemove, Path: "experiences", Index: 1}},
		{line: "sudo remove experiences x", tag: TagOutput, err: "Usage: sudo remove <path> <index>\nExample: sudo remove projects 0"},
		{line: "sudo remove experiences 1 2", tag: TagOutput, err: "Usage: sudo remove <path> <index>\nExample: sudo remove projects 0"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			in, st := newTest(t)
			out := run(in, st, tt.line)
			assert.Equal(t, tt.tag, out.Tag)
			assert.Equal(t, tt.auth, out.Auth)
			assert.Equal(t, tt.edit, out.Edit)
			if tt.err != "" {
				require.Len(t, out.Lines, 2)
				assert.Equal(t, session.KindError, out.Lines[1].Kind)
				assert.Equal(t, tt.err, out.Lines[1].Text)
			}
		})
	}
}

func TestSudoUsage(t *testing.T) {
	in, st := newTest(t)
	out := run(in, st, "sudo make me a sandwich")
	assert.True(t, strings.HasPrefix(out.Lines[1].Text, "\nAvailable sudo commands:"))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{`"quoted"`, "quoted"},
		{"plain words", "plain words"},
		{"false", false},
		{"42", json.Number("42")},
		{`{"a":1}`, map[string]any{"a": json.Number("1")}},
		{"[1,", "[1,"},
		{"Infinity", "Infinity"},
		{`"`, `"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseValue(tt.raw), tt.raw)
	}
}
