// Package interpreter turns a typed command line into output lines and
// requests for the render surface, the login flow or the edit gateway.
//
// Commands are matched against an ordered rule table; the first rule whose
// matcher accepts the lower-cased line handles it. Nothing here returns an
// error: bad input becomes an error line.
package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"termfolio/internal/portfolio"
	"termfolio/internal/session"
	"termfolio/internal/theme"
)

// Tag says which kind of result a rule produced.
type Tag string

const (
	TagOutput        Tag = "output"
	TagNavigate      Tag = "navigate"
	TagMutate        Tag = "mutate"
	TagNeedsAuthFlow Tag = "needs_auth_flow"
	TagNeedsEdit     Tag = "needs_edit"
)

// AuthAction is the login flow step a sudo command asks for.
type AuthAction string

const (
	AuthLogin  AuthAction = "login"
	AuthLogout AuthAction = "logout"
	AuthStatus AuthAction = "status"
)

// EditOp is the gateway operation a sudo command asks for.
type EditOp string

const (
	EditInit   EditOp = "init"
	EditField  EditOp = "edit"
	EditAdd    EditOp = "add"
	EditRemove EditOp = "remove"
)

// EditRequest carries a parsed privileged edit. Value holds the decoded
// value for EditField and the item for EditAdd.
type EditRequest struct {
	Op    EditOp
	Path  string
	Value any
	Index int
}

// EffectKind names a presentation effect the render surface may play.
type EffectKind string

const (
	EffectMatrix         EffectKind = "matrix"
	EffectFullscreen     EffectKind = "fullscreen"
	EffectDownloadResume EffectKind = "download_resume"
	EffectMailto         EffectKind = "mailto"
)

type Effect struct {
	Kind   EffectKind `json:"kind"`
	Target string     `json:"target,omitempty"`
}

// Outcome is the result of one Execute call. Lines are the scrollback
// lines appended by the call, echo included; when Cleared is set the
// scrollback was emptied and Lines is empty.
type Outcome struct {
	Tag     Tag
	Lines   []session.Line
	Section string
	Effects []Effect
	Cleared bool
	Auth    AuthAction
	Edit    *EditRequest
}

// ContentSource supplies the document the content commands render.
// *portfolio.Loader implements it.
type ContentSource interface {
	Current(ctx context.Context) (portfolio.Document, portfolio.Source)
}

type Options struct {
	// Host is shown in the prompt echo: guest@<Host>:~$.
	Host    string
	Content ContentSource
	// Intn picks a fortune; defaults to math/rand/v2.
	Intn func(n int) int
}

type Interpreter struct {
	host    string
	content ContentSource
	intn    func(n int) int
	rules   []rule
}

func New(opts Options) *Interpreter {
	in := &Interpreter{host: opts.Host, content: opts.Content, intn: opts.Intn}
	if in.host == "" {
		in.host = "portfolio"
	}
	if in.intn == nil {
		in.intn = rand.IntN
	}
	in.rules = defaultRules()
	return in
}

func (in *Interpreter) Host() string { return in.host }

// PromptText is the echo prefix for input lines.
func (in *Interpreter) PromptText() string {
	return "guest@" + in.host + ":~$"
}

// Complete is Autocomplete over the state's alias names.
func (in *Interpreter) Complete(st *session.State, partial string) []string {
	return Autocomplete(partial, st.AliasNames())
}

// call is the per-invocation context handed to rule handlers.
type call struct {
	ctx      context.Context
	in       *Interpreter
	st       *session.State
	raw      string
	resolved string
	lower    string
	// history is the history as it was before this command was recorded.
	history []string
	out     Outcome
}

func (c *call) emit(kind session.Kind, text string) {
	c.out.Lines = append(c.out.Lines, session.Line{Kind: kind, Text: text})
}

func (c *call) doc() portfolio.Document {
	if c.in.content == nil {
		return portfolio.Default()
	}
	doc, _ := c.in.content.Current(c.ctx)
	return doc
}

// Execute interprets one raw input line against st.
func (in *Interpreter) Execute(ctx context.Context, st *session.State, raw string) Outcome {
	resolved := strings.TrimSpace(raw)
	first := strings.Split(resolved, " ")[0]
	if cmd, ok := st.Alias(first); ok && first != "" {
		resolved = cmd + resolved[len(first):]
	}

	c := &call{
		ctx:      ctx,
		in:       in,
		st:       st,
		raw:      raw,
		resolved: resolved,
		lower:    strings.ToLower(resolved),
		history:  st.History(),
		out:      Outcome{Tag: TagOutput},
	}
	st.AddToHistory(raw)
	echo := session.Line{Kind: session.KindInput, Text: in.PromptText() + " " + raw}
	st.AddOutput(echo)

	for _, r := range in.rules {
		if r.match(c.lower) {
			r.run(c)
			break
		}
	}

	if c.out.Cleared {
		c.out.Lines = nil
		return c.out
	}
	st.AddOutput(c.out.Lines...)
	c.out.Lines = append([]session.Line{echo}, c.out.Lines...)
	return c.out
}

type rule struct {
	name  string
	match func(lower string) bool
	run   func(c *call)
}

func exact(values ...string) func(string) bool {
	return func(s string) bool { return slices.Contains(values, s) }
}

func prefix(p string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}

func pattern(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

func always(string) bool { return true }

var lsProjects = regexp.MustCompile(`^ls\s+(-la\s+)?\.?/?(projects)/?$`)

// content renders a document-backed command and navigates to its section.
func content(kind session.Kind, section string, render func(portfolio.Document) string) func(*call) {
	return func(c *call) {
		c.emit(kind, render(c.doc()))
		c.out.Tag = TagNavigate
		c.out.Section = section
	}
}

func defaultRules() []rule {
	return []rule{
		{"help", exact("help"), func(c *call) { c.emit(session.KindASCII, renderHelp()) }},
		{"identity", exact("cat ./identity.txt", "cat identity.txt"), content(session.KindASCII, "home", renderIdentity)},
		{"about", exact("cat ./about.md", "cat about.md", "cat about"), content(session.KindOutput, "about", renderAbout)},
		{"skills", exact("cat ./skills.json", "cat skills.json", "whoami"), content(session.KindOutput, "skills", renderSkills)},
		{"achievements", exact("cat ./achievements.log", "cat achievements.log"), content(session.KindOutput, "achievements", renderAchievements)},
		{"projects", pattern(lsProjects), content(session.KindOutput, "projects", renderProjects)},
		{"work", exact("history --work", "history -w"), content(session.KindOutput, "experience", renderWork)},
		{"contact", exact("./send_message.sh", "send_message.sh"), content(session.KindASCII, "contact", renderContact)},
		{"tree", exact("tree"), func(c *call) { c.emit(session.KindASCII, renderTree(c.doc())) }},
		{"neofetch", exact("neofetch"), func(c *call) {
			c.emit(session.KindASCII, renderNeofetch(c.doc(), c.in.host, c.st.Theme()))
		}},
		{"fortune", exact("fortune"), func(c *call) {
			c.emit(session.KindOutput, "\n🔮 "+fortunes[c.in.intn(len(fortunes))]+"\n")
		}},
		{"theme-set", prefix("theme "), runThemeSet},
		{"theme-show", exact("theme"), func(c *call) {
			c.emit(session.KindOutput, fmt.Sprintf("Current theme: %s\nAvailable: %s", c.st.Theme(), strings.Join(theme.Names(), ", ")))
		}},
		{"mute", exact("mute"), func(c *call) {
			c.st.SetSoundEnabled(false)
			c.out.Tag = TagMutate
			c.emit(session.KindSuccess, "🔇 Sounds muted")
		}},
		{"unmute", exact("unmute"), func(c *call) {
			c.st.SetSoundEnabled(true)
			c.out.Tag = TagMutate
			c.emit(session.KindSuccess, "🔊 Sounds enabled")
		}},
		{"fullscreen", exact("fullscreen", "fs"), func(c *call) {
			c.st.SetFullscreen(true)
			c.out.Tag = TagMutate
			c.out.Effects = append(c.out.Effects, Effect{Kind: EffectFullscreen})
			c.emit(session.KindSuccess, "Entering fullscreen mode... (Press Escape to exit)")
		}},
		{"clear", exact("clear"), func(c *call) {
			c.st.ClearOutput()
			c.out.Tag = TagMutate
			c.out.Cleared = true
		}},
		{"alias-list", exact("alias"), runAliasList},
		{"alias-set", prefix("alias "), runAliasSet},
		{"unalias", prefix("unalias "), func(c *call) {
			name := strings.TrimSpace(c.lower[len("unalias "):])
			c.st.RemoveAlias(name)
			c.out.Tag = TagMutate
			c.emit(session.KindSuccess, fmt.Sprintf("Alias '%s' removed", name))
		}},
		{"man", prefix("man "), func(c *call) {
			topic := strings.TrimSpace(c.lower[len("man "):])
			if page, ok := manPages[topic]; ok {
				c.emit(session.KindOutput, page)
				return
			}
			c.emit(session.KindError, "No manual entry for "+topic)
		}},
		{"matrix", exact("matrix"), func(c *call) {
			c.out.Effects = append(c.out.Effects, Effect{Kind: EffectMatrix})
			c.emit(session.KindSuccess, "Entering the Matrix...")
		}},
		{"hack", prefix("hack "), func(c *call) {
			c.emit(session.KindOutput, fmt.Sprintf(hackTemplate, strings.TrimSpace(c.resolved[len("hack "):])))
		}},
		{"rm", func(s string) bool {
			return strings.HasPrefix(s, "rm -rf") || strings.HasPrefix(s, "sudo rm -rf")
		}, func(c *call) { c.emit(session.KindError, rmText) }},
		{"sudo-login", exact("sudo login"), authRule(AuthLogin)},
		{"sudo-logout", exact("sudo logout"), authRule(AuthLogout)},
		{"sudo-status", exact("sudo status"), authRule(AuthStatus)},
		{"sudo-init", exact("sudo init"), func(c *call) {
			c.out.Tag = TagNeedsEdit
			c.out.Edit = &EditRequest{Op: EditInit}
		}},
		{"sudo-edit", prefix("sudo edit "), runSudoEdit},
		{"sudo-add", prefix("sudo add "), runSudoAdd},
		{"sudo-remove", prefix("sudo remove "), runSudoRemove},
		{"sudo", prefix("sudo"), func(c *call) { c.emit(session.KindOutput, sudoUsage) }},
		{"exit", exact("exit"), func(c *call) { c.emit(session.KindOutput, exitText) }},
		{"cd", prefix("cd "), func(c *call) {
			section := strings.TrimSpace(c.lower[len("cd "):])
			if !slices.Contains(Sections, section) {
				c.emit(session.KindError, fmt.Sprintf("cd: %s: No such directory", section))
				return
			}
			c.out.Tag = TagNavigate
			c.out.Section = section
			c.emit(session.KindSuccess, fmt.Sprintf("Navigating to %s...", section))
		}},
		{"wget", exact("wget cv", "wget resume"), func(c *call) {
			c.out.Effects = append(c.out.Effects, Effect{Kind: EffectDownloadResume})
			c.emit(session.KindSuccess, "Downloading resume...")
			c.emit(session.KindOutput, "(Resume download would trigger here)")
		}},
		{"history", exact("history"), func(c *call) {
			if len(c.history) == 0 {
				c.emit(session.KindOutput, "No commands in history.")
				return
			}
			rows := make([]string, len(c.history))
			for i, h := range c.history {
				rows[i] = fmt.Sprintf("  %d  %s", i+1, h)
			}
			c.emit(session.KindOutput, strings.Join(rows, "\n"))
		}},
		{"mail", func(s string) bool { return s == "mail" || strings.HasPrefix(s, "mail ") }, func(c *call) {
			c.out.Effects = append(c.out.Effects, Effect{Kind: EffectMailto, Target: "mailto:" + c.doc().Profile.Email})
			c.emit(session.KindSuccess, "Opening mail client...")
		}},
		{"ls", exact("ls", "ls -la"), func(c *call) {
			c.emit(session.KindOutput, "Available sections: "+strings.Join(Sections, "  "))
		}},
		{"blank", exact(""), func(*call) {}},
		{"cat-missing", prefix("cat "), func(c *call) {
			file := strings.TrimSpace(c.lower[len("cat "):])
			c.out.Lines = append(c.out.Lines, session.Line{
				Kind:   session.KindError,
				Text:   fmt.Sprintf("cat: %s: No such file or directory", file),
				Glitch: true,
			})
		}},
		{"not-found", always, runNotFound},
	}
}

func runThemeSet(c *call) {
	name := strings.TrimSpace(c.lower[len("theme "):])
	v, err := theme.Parse(name)
	if err != nil {
		c.emit(session.KindError, "Invalid theme. Available: "+strings.Join(theme.Names(), ", "))
		return
	}
	if err := c.st.SetTheme(v); err != nil {
		c.emit(session.KindError, err.Error())
		return
	}
	c.out.Tag = TagMutate
	c.emit(session.KindSuccess, "Theme changed to "+string(v))
}

func runAliasList(c *call) {
	aliases := c.st.Aliases()
	if len(aliases) == 0 {
		c.emit(session.KindOutput, "No aliases defined. Use: alias name=command")
		return
	}
	rows := make([]string, 0, len(aliases))
	for _, name := range c.st.AliasNames() {
		rows = append(rows, fmt.Sprintf("  %s='%s'", name, aliases[name]))
	}
	c.emit(session.KindOutput, "Defined aliases:\n"+strings.Join(rows, "\n"))
}

func runAliasSet(c *call) {
	rest := c.resolved[len("alias "):]
	eq := strings.Index(rest, "=")
	name := ""
	if eq > 0 {
		name = strings.TrimSpace(rest[:eq])
	}
	if name == "" {
		c.emit(session.KindError, "Usage: alias name=command")
		return
	}
	cmd := unquote(strings.TrimSpace(rest[eq+1:]), '\'', '"')
	c.st.SetAlias(name, cmd)
	c.out.Tag = TagMutate
	c.emit(session.KindSuccess, fmt.Sprintf("Alias created: %s='%s'", name, cmd))
}

// unquote strips one pair of matching surrounding quotes.
func unquote(s string, quotes ...byte) string {
	if len(s) < 2 {
		return s
	}
	for _, q := range quotes {
		if s[0] == q && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func authRule(action AuthAction) func(*call) {
	return func(c *call) {
		c.out.Tag = TagNeedsAuthFlow
		c.out.Auth = action
	}
}

// splitArgs splits "path rest..." at the first space.
func splitArgs(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	i := strings.Index(s, " ")
	if i < 0 {
		return "", "", false
	}
	return s[:i], strings.TrimSpace(s[i+1:]), true
}

func runSudoEdit(c *call) {
	path, raw, ok := splitArgs(c.resolved[len("sudo edit "):])
	if !ok {
		c.emit(session.KindError, "Usage: sudo edit <path> <value>\nExample: sudo edit profile.name \"New Name\"")
		return
	}
	c.out.Tag = TagNeedsEdit
	c.out.Edit = &EditRequest{Op: EditField, Path: path, Value: ParseValue(raw)}
}

func runSudoAdd(c *call) {
	path, raw, ok := splitArgs(c.resolved[len("sudo add "):])
	if !ok {
		c.emit(session.KindError, "Usage: sudo add <path> <json>\nExample: sudo add projects {\"name\":\"New\"}")
		return
	}
	item, err := decodeJSON(unquote(raw, '\''))
	if err != nil {
		c.emit(session.KindError, `Invalid JSON. Use: sudo add <path> {"key":"value"}`)
		return
	}
	c.out.Tag = TagNeedsEdit
	c.out.Edit = &EditRequest{Op: EditAdd, Path: path, Value: item}
}

func runSudoRemove(c *call) {
	parts := strings.Split(strings.TrimSpace(c.resolved[len("sudo remove "):]), " ")
	if len(parts) != 2 {
		c.emit(session.KindError, "Usage: sudo remove <path> <index>\nExample: sudo remove projects 0")
		return
	}
	idx, ok := leadingInt(parts[1])
	if !ok {
		c.emit(session.KindError, "Usage: sudo remove <path> <index>\nExample: sudo remove projects 0")
		return
	}
	c.out.Tag = TagNeedsEdit
	c.out.Edit = &EditRequest{Op: EditRemove, Path: parts[0], Index: idx}
}

// ParseValue decodes an edit value: JSON when it looks like an object,
// array, boolean or number, otherwise a string with one pair of double
// quotes removed. Single-quoted JSON is accepted the way shells write it.
func ParseValue(raw string) any {
	candidate := unquote(raw, '\'')
	if looksLikeJSON(candidate) {
		if v, err := decodeJSON(candidate); err == nil {
			return v
		}
		return raw
	}
	return unquote(raw, '"')
}

func looksLikeJSON(s string) bool {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || s == "true" || s == "false" {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// leadingInt reads an optionally signed run of leading digits, so "2" and
// "2nd" both give 2.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

func runNotFound(c *call) {
	token := strings.Split(c.resolved, " ")[0]
	msg := token + ": command not found"
	if suggestion, ok := Suggest(c.lower); ok {
		msg += fmt.Sprintf("\n\nDid you mean '%s'?", suggestion)
	}
	msg += "\nType 'help' for available commands."
	c.out.Lines = append(c.out.Lines, session.Line{Kind: session.KindError, Text: msg, Glitch: true})
}
