// ABOUTME: Entry point for the sealnote CLI
// ABOUTME: Builds the cobra command tree and wires config, logging, storage and sync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/2389/sealnote/internal/api"
	"github.com/2389/sealnote/internal/config"
	"github.com/2389/sealnote/internal/items"
	"github.com/2389/sealnote/internal/logging"
	"github.com/2389/sealnote/internal/session"
	"github.com/2389/sealnote/internal/store"
	"github.com/2389/sealnote/internal/syncer"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sealnote",
		Short:         "End-to-end encrypted notes with server sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")

	root.AddGroup(
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "content", Title: "Notes and tags:"},
	)

	root.AddCommand(
		registerCmd(), loginCmd(), logoutCmd(), statusCmd(),
		syncCmd(), daemonCmd(),
		noteCmd(), tagCmd(), publishCmd(), unpublishCmd(), exportCmd(),
	)
	return root
}

// app holds everything a command needs once the local database is open.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
	backend *store.SQLiteStore
	items   *items.Store
}

func openApp(ctx context.Context) (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.Setup(cfg.Logging)
	slog.SetDefault(logger)

	backend, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	itemStore := items.New(backend, nil, logger)
	if err := itemStore.Load(ctx); err != nil {
		backend.Close()
		logCloser.Close()
		return nil, fmt.Errorf("loading items: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		closers: []io.Closer{backend, logCloser},
		backend: backend,
		items:   itemStore,
	}, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// withApp adapts a command body that needs an open app.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

// withSession is withApp for commands that need a signed-in account. The session is
// attached to the command context.
func withSession(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return withApp(func(cmd *cobra.Command, a *app, args []string) error {
		s, err := session.Load(cmd.Context(), a.backend)
		if errors.Is(err, session.ErrNoSession) {
			return errors.New("not signed in, run 'sealnote login' first")
		}
		if err != nil {
			return err
		}
		if s.Expired(time.Now()) {
			a.logger.Warn("session token has expired, sync will fail until you sign in again")
		}
		cmd.SetContext(session.WithSession(cmd.Context(), s))
		return run(cmd, a, args)
	})
}

// coordinator builds a sync coordinator for the session in ctx.
func (a *app) coordinator(ctx context.Context) (*syncer.Coordinator, error) {
	s := session.MustFromContext(ctx)

	manager, err := s.Manager()
	if err != nil {
		return nil, fmt.Errorf("restoring keys: %w", err)
	}

	client := api.NewClient(s.Server, a.cfg.Server.Timeout).WithToken(s.Token)
	return syncer.New(a.items, a.backend, client, manager, syncer.Options{
		Parallelism: a.cfg.Sync.Parallelism,
		Logger:      a.logger.With("account", s.Email),
	}), nil
}

func (a *app) apiClient(server string) *api.Client {
	if server == "" {
		server = a.cfg.Server.URL
	}
	return api.NewClient(server, a.cfg.Server.Timeout)
}

// readPassword returns $SEALNOTE_PASSWORD or prompts on the terminal.
func readPassword(prompt string) (string, error) {
	if p := os.Getenv("SEALNOTE_PASSWORD"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, set SEALNOTE_PASSWORD")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(pw) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(pw), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
