// Package terminal is the bubbletea front end served over SSH: a boot
// banner followed by the interactive shell, styled from the session theme.
package terminal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"termfolio/internal/auth"
	"termfolio/internal/interpreter"
	"termfolio/internal/session"
	"termfolio/internal/shell"
	"termfolio/internal/theme"
)

const (
	statusLiveOn  = "STATUS: [LIVE]"
	statusLiveOff = "STATUS: [    ]"
	statusTick    = 450 * time.Millisecond
	// header, hint and prompt rows around the viewport
	chromeRows = 3
	// pending theme/identity notifications; extras coalesce
	changeBuffer = 4
)

type Screen int

const (
	ScreenBoot Screen = iota
	ScreenShell
)

type (
	statusTickMsg   struct{}
	pendingDoneMsg  struct{ lines []session.Line }
	themeChangedMsg struct{}
	identityMsg     struct{ who *auth.Identity }
)

type Options struct {
	RemoteAddr string
	Width      int
	Height     int
	// Term is the client's TERM value, used to pick colour or monochrome.
	Term     string
	Renderer *lipgloss.Renderer
	// Context bounds pending remote work; it is the SSH session context.
	Context context.Context
}

// Model is the bubbletea model for one SSH visitor.
type Model struct {
	ctx      context.Context
	shell    *shell.Session
	renderer *lipgloss.Renderer
	term     string

	screen        Screen
	width, height int
	viewport      viewport.Model
	input         textinput.Model
	hint          string
	// pending remote tasks still running
	busy int

	observerHash string
	statusBlink  bool
	user         string

	st      styles
	changes chan tea.Msg
}

func New(sh *shell.Session, opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	in := textinput.New()
	in.EchoCharacter = '*'
	in.Focus()

	m := Model{
		ctx:          ctx,
		shell:        sh,
		renderer:     opts.Renderer,
		term:         opts.Term,
		screen:       ScreenBoot,
		width:        opts.Width,
		height:       opts.Height,
		viewport:     viewport.New(opts.Width, 1),
		input:        in,
		observerHash: ObserverHash(opts.RemoteAddr),
		statusBlink:  true,
		user:         "guest",
		changes:      make(chan tea.Msg, changeBuffer),
	}
	if who, ok := sh.Flow().Identity(); ok {
		m.user = who.Email
	}

	// Hooks fire on whichever goroutine changed the state; the model only
	// hears about them through changes.
	unsubTheme := sh.State().OnThemeChange(func(theme.Variant) { m.notify(themeChangedMsg{}) })
	unsubIdentity := sh.Flow().OnIdentityChange(func(who *auth.Identity) { m.notify(identityMsg{who: who}) })
	context.AfterFunc(ctx, func() {
		unsubTheme()
		unsubIdentity()
	})

	m.st = m.resolveStyles()
	m.syncPrompt()
	m.layout()
	return m
}

func (m Model) notify(msg tea.Msg) {
	select {
	case m.changes <- msg:
	default:
	}
}

// waitForChange delivers the next hook notification as a message.
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.changes:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickStatus(), m.waitForChange())
}

func tickStatus() tea.Cmd {
	return tea.Tick(statusTick, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m Model) Screen() Screen { return m.screen }

func (m Model) Shell() *shell.Session { return m.shell }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil
	case statusTickMsg:
		m.statusBlink = !m.statusBlink
		return m, tickStatus()
	case pendingDoneMsg:
		m.busy--
		m.syncPrompt()
		m.refresh()
		return m, nil
	case themeChangedMsg:
		m.st = m.resolveStyles()
		m.refresh()
		return m, m.waitForChange()
	case identityMsg:
		m.user = "guest"
		if msg.who != nil {
			m.user = msg.who.Email
		}
		m.syncPrompt()
		return m, m.waitForChange()
	case tea.KeyMsg:
		if m.screen == ScreenBoot {
			if msg.Type == tea.KeyCtrlC {
				return m, tea.Quit
			}
			m.screen = ScreenShell
			m.refresh()
			return m, nil
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.shell.Cancel() == nil {
			return m, tea.Quit
		}
		m.input.Reset()
		m.syncPrompt()
		m.refresh()
		return m, nil
	case tea.KeyCtrlD:
		return m, tea.Quit
	case tea.KeyEsc:
		if m.shell.Cancel() == nil {
			m.shell.State().SetFullscreen(false)
		}
		m.input.Reset()
		m.syncPrompt()
		m.layout()
		m.refresh()
		return m, nil
	case tea.KeyCtrlL:
		m.shell.Clear()
		m.refresh()
		return m, nil
	case tea.KeyUp, tea.KeyDown:
		dir := session.Up
		if msg.Type == tea.KeyDown {
			dir = session.Down
		}
		if cmd, ok := m.shell.NavigateHistory(dir); ok {
			m.input.SetValue(cmd)
			m.input.CursorEnd()
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyTab:
		m.complete()
		return m, nil
	case tea.KeyEnter:
		return m.submit()
	}

	m.hint = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()
	m.hint = ""

	reply := m.shell.Submit(m.ctx, line)
	for _, e := range reply.Effects {
		switch e.Kind {
		case interpreter.EffectMailto, interpreter.EffectDownloadResume:
			m.hint = effectHint(e)
		}
	}
	m.syncPrompt()
	m.layout()
	m.refresh()

	if reply.Pending == nil {
		return m, nil
	}
	m.busy++
	ctx, pending := m.ctx, reply.Pending
	return m, func() tea.Msg {
		return pendingDoneMsg{lines: pending.Run(ctx)}
	}
}

func effectHint(e interpreter.Effect) string {
	if e.Kind == interpreter.EffectMailto {
		return "open " + e.Target + " in your mail client"
	}
	return "the resume is available from the web terminal"
}

// complete fills a single candidate, or the shared prefix of several and
// lists them under the prompt.
func (m *Model) complete() {
	candidates := m.shell.Complete(m.input.Value())
	switch len(candidates) {
	case 0:
		return
	case 1:
		m.input.SetValue(candidates[0])
		m.hint = ""
	default:
		m.input.SetValue(interpreter.LongestCommonPrefix(candidates))
		m.hint = strings.Join(candidates, "  ")
	}
	m.input.CursorEnd()
}

func (m *Model) syncPrompt() {
	m.input.Prompt = m.shell.Prompt() + " "
	if m.shell.Masked() {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
}

func (m *Model) layout() {
	rows := chromeRows
	if m.shell.State().Fullscreen() {
		rows--
	}
	m.viewport.Width = max(m.width, 0)
	m.viewport.Height = max(m.height-rows, 0)
	m.input.Width = max(m.width-lipgloss.Width(m.input.Prompt)-1, 0)
}

func (m *Model) refresh() {
	st := m.st
	lines := m.shell.State().Output()
	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		rendered = append(rendered, st.line(l).Render(l.Text))
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	st := m.st
	if m.screen == ScreenBoot {
		return st.ascii.Render(bootBanner(m.shell.Host()))
	}

	var rows []string
	if !m.shell.State().Fullscreen() {
		rows = append(rows, m.renderHeader(st))
	}
	hint := m.hint
	if m.busy > 0 {
		hint = "working..."
	}
	rows = append(rows, m.viewport.View(), st.muted.Render(hint), st.prompt.Render(m.input.View()))
	return strings.Join(rows, "\n")
}

func (m Model) renderHeader(st styles) string {
	status := statusLiveOff
	if m.statusBlink {
		status = statusLiveOn
	}
	text := fmt.Sprintf("TERMFOLIO // %s   %s   USER: %s   OBSERVER: [%s]", m.shell.Host(), status, m.user, m.observerHash)
	return st.header.Width(max(m.width, lipgloss.Width(text))).Render(text)
}

type styles struct {
	header, text, input, errs, success, ascii, prompt, muted lipgloss.Style
}

func (s styles) line(l session.Line) lipgloss.Style {
	switch l.Kind {
	case session.KindInput:
		return s.input
	case session.KindError:
		if l.Glitch {
			return s.errs.Blink(true)
		}
		return s.errs
	case session.KindSuccess:
		return s.success
	case session.KindASCII:
		return s.ascii
	default:
		return s.text
	}
}

// resolveStyles honours THEME_FORCE_COLOR and THEME_FORCE_MONO on top of
// the client's TERM.
func (m Model) resolveStyles() styles {
	bundle, err := theme.ResolveFromEnv(m.shell.State().Theme(), m.term)
	if err != nil {
		bundle, _ = theme.ResolveFromEnv(theme.Default, m.term)
	}
	r := m.renderer
	return styles{
		header:  bundle.Header.Lipgloss(r),
		text:    bundle.Viewport.Lipgloss(r),
		input:   bundle.Input.Lipgloss(r),
		errs:    bundle.Error.Lipgloss(r),
		success: bundle.Success.Lipgloss(r),
		ascii:   bundle.ASCII.Lipgloss(r),
		prompt:  bundle.Prompt.Lipgloss(r),
		muted:   theme.Style{Foreground: bundle.Roles.Muted}.Lipgloss(r),
	}
}

func bootBanner(host string) string {
	return strings.Join([]string{
		"TERMFOLIO v1.0.0 (ssh)",
		"",
		"[SYSTEM] Initializing kernel...",
		"[SYSTEM] Loading modules...",
		"[OK] Memory check passed",
		"[OK] Network interface detected",
		"[SYSTEM] Mounting filesystem...",
		"[OK] Terminal ready",
		"",
		"> Establishing connection to " + host + "...",
		"> Connection established.",
		"",
		"[SUCCESS] Welcome, guest.",
		"",
		"Press any key to continue.",
	}, "\n")
}

// ObserverHash is a short stable fingerprint of the client's address. It
// keys the visitor's stored preferences so the address itself is never
// persisted.
func ObserverHash(remoteAddr string) string {
	sum := sha256.Sum256([]byte(normalizeRemoteAddr(remoteAddr)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
}

func normalizeRemoteAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
