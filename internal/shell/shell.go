// Package shell binds one visitor's terminal state, login flow and
// privileged editing together behind a single Submit call that every render
// surface (SSH, HTTP, websocket, CLI) drives the same way.
package shell

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"termfolio/internal/auth"
	"termfolio/internal/interpreter"
	"termfolio/internal/logging"
	"termfolio/internal/session"
)

const notConfigured = "Data store not configured"

// Editor is the privileged edit surface. *gateway.Service implements it.
type Editor interface {
	EditField(ctx context.Context, who *auth.Identity, path string, value any) error
	AddToArray(ctx context.Context, who *auth.Identity, path string, item any) error
	RemoveFromArray(ctx context.Context, who *auth.Identity, path string, index int) error
	Initialize(ctx context.Context, who *auth.Identity) error
}

// Navigator is told about section jumps. Surfaces without sections pass nil.
type Navigator interface {
	Navigate(section string)
}

// Reply is what one Submit produced. Lines are already in the session's
// scrollback. When Pending is set the caller must Run it, inline or in the
// background, to finish the command.
type Reply struct {
	Lines   []session.Line
	Cleared bool
	Section string
	Effects []interpreter.Effect
	Pending *Pending
}

// Pending is remote work left over from a Submit.
type Pending struct {
	st  *session.State
	run func(ctx context.Context) []session.Line
}

// Run performs the work and appends its result lines to the scrollback.
func (p *Pending) Run(ctx context.Context) []session.Line {
	lines := p.run(ctx)
	p.st.AddOutput(lines...)
	return lines
}

// Factory builds sessions that share an interpreter, identity provider,
// editor and preference store.
type Factory struct {
	Interpreter *interpreter.Interpreter
	Provider    auth.Provider
	Editor      Editor
	Persister   session.Persister
}

// New loads the preferences stored under id and returns a fresh session.
func (f Factory) New(ctx context.Context, id string, nav Navigator) *Session {
	interp := f.Interpreter
	if interp == nil {
		interp = interpreter.New(interpreter.Options{})
	}
	provider := f.Provider
	if provider == nil {
		provider = &auth.StaticProvider{}
	}
	return &Session{
		state:  session.New(ctx, id, f.Persister),
		flow:   auth.NewFlow(provider),
		interp: interp,
		editor: f.Editor,
		nav:    nav,
		logger: logging.For("shell"),
	}
}

// Session is one visitor's terminal. Submit, Cancel and the idle-only key
// helpers may be called from any goroutine.
type Session struct {
	state  *session.State
	flow   *auth.Flow
	interp *interpreter.Interpreter
	editor Editor
	nav    Navigator
	logger *log.Logger
}

func (s *Session) State() *session.State { return s.state }

func (s *Session) Flow() *auth.Flow { return s.flow }

func (s *Session) Host() string { return s.interp.Host() }

// Prompt is the text shown before the input field.
func (s *Session) Prompt() string {
	switch s.flow.State() {
	case auth.StateAwaitingEmail:
		return "Email:"
	case auth.StateAwaitingPassword:
		return "Password:"
	default:
		return s.interp.PromptText()
	}
}

// Masked reports whether input should be hidden while typed.
func (s *Session) Masked() bool {
	return s.flow.State() == auth.StateAwaitingPassword
}

// Submit handles one line of input. During login the line answers the
// current prompt instead of running as a command.
func (s *Session) Submit(ctx context.Context, raw string) Reply {
	switch s.flow.State() {
	case auth.StateAwaitingEmail:
		return s.submitEmail(raw)
	case auth.StateAwaitingPassword:
		return s.submitPassword(raw)
	}

	out := s.interp.Execute(ctx, s.state, raw)
	reply := Reply{Lines: out.Lines, Cleared: out.Cleared, Section: out.Section, Effects: out.Effects}
	if out.Section != "" && s.nav != nil {
		s.nav.Navigate(out.Section)
	}

	switch out.Tag {
	case interpreter.TagNeedsAuthFlow:
		s.auth(out.Auth, &reply)
	case interpreter.TagNeedsEdit:
		s.edit(out.Edit, &reply)
	}
	return reply
}

// Cancel abandons an in-progress login. It returns the lines it added, or
// nil when no login was in progress.
func (s *Session) Cancel() []session.Line {
	if !s.flow.CancelLogin() {
		return nil
	}
	return s.emit(nil, line(session.KindOutput, "Login cancelled."))
}

// NavigateHistory moves through history; it does nothing during login.
func (s *Session) NavigateHistory(dir session.Direction) (string, bool) {
	if s.flow.State() != auth.StateIdle {
		return "", false
	}
	return s.state.NavigateHistory(dir), true
}

// Complete lists completions for partial; there are none during login.
func (s *Session) Complete(partial string) []string {
	if s.flow.State() != auth.StateIdle {
		return nil
	}
	return s.interp.Complete(s.state, partial)
}

// Clear empties the scrollback without running a command.
func (s *Session) Clear() {
	s.state.ClearOutput()
}

func (s *Session) submitEmail(raw string) Reply {
	lines := []session.Line{line(session.KindInput, "Email: "+raw)}
	if err := s.flow.SubmitEmail(raw); err != nil {
		lines = append(lines, line(session.KindError, "❌ Email is required"))
	} else {
		lines = append(lines, line(session.KindOutput, "Enter password:"))
	}
	return Reply{Lines: s.emit(nil, lines...)}
}

func (s *Session) submitPassword(raw string) Reply {
	echo := line(session.KindInput, "Password: "+strings.Repeat("*", utf8.RuneCountInString(raw)))
	if raw == "" {
		return Reply{Lines: s.emit(nil, echo, line(session.KindError, "❌ Password is required"))}
	}
	return Reply{
		Lines: s.emit(nil, echo),
		Pending: s.pending(func(ctx context.Context) []session.Line {
			if _, err := s.flow.SubmitPassword(ctx, raw); err != nil {
				if errors.Is(err, auth.ErrLoginCancelled) {
					return nil
				}
				return []session.Line{line(session.KindError, "❌ "+err.Error())}
			}
			return []session.Line{line(session.KindSuccess, "✅ Authentication successful! Welcome, admin.")}
		}),
	}
}

func (s *Session) auth(action interpreter.AuthAction, reply *Reply) {
	switch action {
	case interpreter.AuthLogin:
		if who, ok := s.flow.Identity(); ok {
			reply.Lines = s.emit(reply.Lines, line(session.KindOutput, "Already logged in as "+who.Email))
			return
		}
		s.flow.StartLogin()
		reply.Lines = s.emit(reply.Lines, line(session.KindOutput, "Enter email:"))
	case interpreter.AuthLogout:
		reply.Pending = s.pending(func(ctx context.Context) []session.Line {
			if err := s.flow.SignOut(ctx); err != nil {
				s.logger.Warn("sign out failed", "event", "auth_signout_failed", "session", s.state.ID(), "err", err)
				return []session.Line{line(session.KindError, "❌ "+err.Error())}
			}
			return []session.Line{line(session.KindSuccess, "✅ Logged out successfully")}
		})
	case interpreter.AuthStatus:
		if who, ok := s.flow.Identity(); ok {
			reply.Lines = s.emit(reply.Lines, line(session.KindSuccess, "🔓 Authenticated as: "+who.Email))
			return
		}
		reply.Lines = s.emit(reply.Lines, line(session.KindOutput, "🔒 Not authenticated. Use: sudo login"))
	}
}

func (s *Session) edit(req *interpreter.EditRequest, reply *Reply) {
	if req == nil {
		return
	}
	who, ok := s.flow.Identity()
	if !ok {
		reply.Lines = s.emit(reply.Lines, line(session.KindError, "❌ Not authenticated. Use: sudo login"))
		return
	}
	if s.editor == nil {
		reply.Lines = s.emit(reply.Lines, line(session.KindError, "❌ "+notConfigured))
		return
	}

	reply.Pending = s.pending(func(ctx context.Context) []session.Line {
		var (
			err  error
			done string
		)
		switch req.Op {
		case interpreter.EditInit:
			err, done = s.editor.Initialize(ctx, &who), "✅ Database initialized with default data"
		case interpreter.EditField:
			err, done = s.editor.EditField(ctx, &who, req.Path, req.Value), "✅ Updated "+req.Path
		case interpreter.EditAdd:
			err, done = s.editor.AddToArray(ctx, &who, req.Path, req.Value), "✅ Added item to "+req.Path
		case interpreter.EditRemove:
			err, done = s.editor.RemoveFromArray(ctx, &who, req.Path, req.Index), "✅ Removed item from "+req.Path
		}
		if err != nil {
			return []session.Line{line(session.KindError, "❌ "+err.Error())}
		}
		s.logger.Info("document edited", "event", "edit_applied", "op", string(req.Op), "path", req.Path, "by", who.Email)
		return []session.Line{line(session.KindSuccess, done)}
	})
}

func (s *Session) pending(run func(ctx context.Context) []session.Line) *Pending {
	return &Pending{st: s.state, run: run}
}

// emit appends lines to the scrollback and to dst.
func (s *Session) emit(dst []session.Line, lines ...session.Line) []session.Line {
	s.state.AddOutput(lines...)
	return append(dst, lines...)
}

func line(kind session.Kind, text string) session.Line {
	return session.Line{Kind: kind, Text: text}
}
