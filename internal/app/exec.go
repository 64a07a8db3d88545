package app

import (
	"context"
	"fmt"

	"termfolio/internal/auth"
	"termfolio/internal/config"
	"termfolio/internal/gateway"
	"termfolio/internal/interpreter"
	"termfolio/internal/portfolio"
	"termfolio/internal/session"
	"termfolio/internal/shell"
	"termfolio/internal/store/file"
)

// LocalSessionID keys the preferences of command-line runs.
const LocalSessionID = "local"

// Exec runs one command line against the JSON file store in dir and
// returns the scrollback it produced, remote work included.
func Exec(ctx context.Context, cfg config.Config, dir, line string) ([]session.Line, error) {
	store, err := file.Open(dir)
	if err != nil {
		return nil, err
	}
	provider, err := auth.NewStaticProvider(cfg.AdminEmail, cfg.AdminPasswordHash)
	if err != nil {
		return nil, err
	}
	editor, err := gateway.NewService(store.Documents(), portfolio.DefaultKey)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	loader := portfolio.NewLoader(store.Documents(), portfolio.DefaultKey)
	sh := shell.Factory{
		Interpreter: interpreter.New(interpreter.Options{Host: cfg.Hostname, Content: loader}),
		Provider:    provider,
		Editor:      editor,
		Persister:   store.Preferences(),
	}.New(ctx, LocalSessionID, nil)

	reply := sh.Submit(ctx, line)
	lines := reply.Lines
	if reply.Pending != nil {
		lines = append(lines, reply.Pending.Run(ctx)...)
	}
	return lines, nil
}
