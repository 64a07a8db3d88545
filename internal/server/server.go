// Package server runs the SSH render surface: a wish server whose sessions
// each get a bubbletea terminal bound to a fresh shell session.
package server

import (
	"context"
	"errors"
	"net"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	wishlogging "github.com/charmbracelet/wish/logging"

	"termfolio/internal/config"
	"termfolio/internal/logging"
	"termfolio/internal/router"
	"termfolio/internal/shell"
	"termfolio/internal/terminal"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Runtime wires config + middleware + Wish server as a testable unit.
type Runtime struct {
	cfg           config.Config
	middlewareIDs []string
	server        *ssh.Server
}

func New(cfg config.Config, chain []router.Descriptor, shells shell.Factory) (*Runtime, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	// wish runs the last middleware first.
	middleware := []wish.Middleware{
		bubbletea.Middleware(teaHandler(shells)),
		activeterm.Middleware(),
	}
	for i := len(chain) - 1; i >= 0; i-- {
		middleware = append(middleware, chain[i].Middleware)
	}
	middleware = append(middleware, wishlogging.MiddlewareWithLogger(logging.For("ssh")))

	sshServer, err := wish.NewServer(
		wish.WithAddress(address),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(middleware...),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chain))
	for _, descriptor := range chain {
		ids = append(ids, descriptor.Name)
	}

	return &Runtime{cfg: cfg, middlewareIDs: ids, server: sshServer}, nil
}

func (r *Runtime) MiddlewareIDs() []string {
	out := make([]string, len(r.middlewareIDs))
	copy(out, r.middlewareIDs)
	return out
}

func (r *Runtime) Address() string {
	return r.server.Addr
}

// Run serves until ctx is done, then shuts the server down.
func (r *Runtime) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.server.Shutdown(context.Background())
	}()

	logging.For("ssh").Info("ssh server starting",
		"event", "startup",
		"version", Version,
		"addr", r.Address(),
		"middleware", r.middlewareIDs,
		"host_key_path", r.cfg.HostKeyPath,
		"idle_timeout", r.cfg.IdleTimeout,
		"max_sessions", r.cfg.MaxSessions,
	)
	err := r.server.ListenAndServe()
	if errors.Is(err, ssh.ErrServerClosed) || err == nil {
		return nil
	}

	return err
}

func teaHandler(shells shell.Factory) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		return buildModel(s, shells, bubbletea.MakeRenderer(s)), []tea.ProgramOption{tea.WithAltScreen()}
	}
}

// buildModel keys the visitor's preferences by observer hash so the client
// address is never stored.
func buildModel(s ssh.Session, shells shell.Factory, renderer *lipgloss.Renderer) terminal.Model {
	addr := ""
	if remote := s.RemoteAddr(); remote != nil {
		addr = remote.String()
	}
	observer := terminal.ObserverHash(addr)
	if info, ok := router.Info(s); ok && info.ObserverID != "" {
		observer = info.ObserverID
	}

	pty, _, _ := s.Pty()
	sh := shells.New(s.Context(), observer, nil)
	return terminal.New(sh, terminal.Options{
		RemoteAddr: addr,
		Width:      pty.Window.Width,
		Height:     pty.Window.Height,
		Term:       pty.Term,
		Renderer:   renderer,
		Context:    s.Context(),
	})
}
