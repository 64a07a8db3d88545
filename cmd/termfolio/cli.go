package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"termfolio/internal/app"
	"termfolio/internal/auth"
	"termfolio/internal/config"
	"termfolio/internal/logging"
	"termfolio/internal/server"
	"termfolio/internal/session"
)

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "termfolio",
		Short:         "Terminal-themed portfolio over SSH and HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading TERMFOLIO_* variables")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newHashPasswordCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadEnvFile never overrides variables already set; a missing file is
// not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the SSH terminal and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newExecCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "exec <command line>",
		Short: "Run one terminal command against a local file store",
		Example: `  termfolio exec "cat ./about.md"
  termfolio exec --dir ./data 'theme amber'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			lines, err := app.Exec(ctx, cfg, dir, strings.Join(args, " "))
			if err != nil {
				return err
			}
			writeLines(cmd.OutOrStdout(), cmd.ErrOrStderr(), lines)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "store directory (default: termfolio under the user config dir)")
	return cmd
}

// writeLines prints scrollback, errors to errOut. The input echo is skipped.
func writeLines(out, errOut io.Writer, lines []session.Line) {
	for _, l := range lines {
		switch l.Kind {
		case session.KindInput:
			continue
		case session.KindError:
			fmt.Fprintln(errOut, l.Text)
		default:
			fmt.Fprintln(out, l.Text)
		}
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for TERMFOLIO_ADMIN_PASSWORD_HASH",
		Long:  "Reads the password from the first line of standard input and prints its bcrypt hash.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the termfolio version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "termfolio %s\n", server.Version)
		},
	}
}
