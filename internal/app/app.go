// Package app assembles the long-running process: storage, the SSH
// surface and the HTTP API, started and stopped together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"termfolio/internal/auth"
	"termfolio/internal/config"
	"termfolio/internal/contact"
	"termfolio/internal/gateway"
	"termfolio/internal/httpapi"
	"termfolio/internal/interpreter"
	"termfolio/internal/logging"
	"termfolio/internal/portfolio"
	"termfolio/internal/router"
	"termfolio/internal/server"
	"termfolio/internal/session"
	"termfolio/internal/shell"
	"termfolio/internal/store/sqlite"
	"termfolio/internal/terminal"
)

const (
	shutdownWait  = 15 * time.Second
	sweepInterval = time.Minute
)

// App owns every listener and store of a serve run.
type App struct {
	cfg      config.Config
	logger   *log.Logger
	ssh      *server.Runtime
	serveSSH func(context.Context) error
	http     *http.Server
	registry *shell.Registry
	closers  []func(context.Context) error
}

// Build opens storage and wires both render surfaces. An empty DBPath keeps
// documents and preferences in memory.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg, logger: logging.For("app")}

	docs, prefs, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := auth.NewStaticProvider(cfg.AdminEmail, cfg.AdminPasswordHash)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	editor, err := gateway.NewService(docs, portfolio.DefaultKey)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	loader := portfolio.NewLoader(docs, portfolio.DefaultKey)
	shells := shell.Factory{
		Interpreter: interpreter.New(interpreter.Options{Host: cfg.Hostname, Content: loader}),
		Provider:    provider,
		Editor:      editor,
		Persister:   prefs,
	}

	chain := router.DefaultChain(router.Limits{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxSessions:        cfg.MaxSessions,
	}, terminal.ObserverHash)
	a.ssh, err = server.New(cfg, chain, shells)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("build ssh server: %w", err)
	}
	a.serveSSH = a.ssh.Run

	a.registry = shell.NewRegistry(cfg.SessionIdleTimeout, cfg.HTTPMaxSessions)
	a.http = &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.New(httpapi.Options{
			Loader:         loader,
			Shells:         shells,
			Registry:       a.registry,
			Contact:        contact.FromConfig(cfg.Contact),
			ContactLimiter: router.NewLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
			SessionLimiter: router.NewLimiter(cfg.HTTPRatePerMinute, cfg.HTTPRateBurst),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: the portfolio stream and websockets stay open.
		IdleTimeout: 120 * time.Second,
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (portfolio.Store, session.Persister, error) {
	if a.cfg.DBPath == "" {
		a.logger.Warn("no database configured, edits and preferences are kept in memory", "event", "store_memory")
		return portfolio.NewMemoryStore(), session.NewMemoryPersister(), nil
	}
	db, err := sqlite.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return db.Documents(), db.Preferences(), nil
}

// Handler is the HTTP API handler.
func (a *App) Handler() http.Handler { return a.http.Handler }

// Run serves SSH and HTTP until ctx is done or either listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	sshDone := make(chan struct{})
	go func() {
		defer close(sshDone)
		if err := a.serveSSH(ctx); err != nil {
			errCh <- fmt.Errorf("ssh server: %w", err)
		}
	}()
	go func() {
		a.logger.Info("http server listening", "event", "startup", "addr", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go a.registry.Run(ctx, sweepInterval)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownWait)
	defer stop()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "event", "shutdown_failed", "err", err)
	}
	// Sessions may still be persisting preferences until the SSH server drains.
	select {
	case <-sshDone:
	case <-shutdownCtx.Done():
		a.logger.Error("ssh shutdown", "event", "shutdown_failed", "err", shutdownCtx.Err())
	}
	a.close(shutdownCtx)
	a.logger.Info("stopped", "event", "shutdown")
	return runErr
}

func (a *App) close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.logger.Error("store close", "event", "shutdown_failed", "err", err)
		}
	}
	a.closers = nil
}

// Close releases storage for an App that was built but never run.
func (a *App) Close(ctx context.Context) { a.close(ctx) }
