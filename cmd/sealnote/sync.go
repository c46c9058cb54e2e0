// ABOUTME: Sync commands: one-shot sync and the auto-sync daemon
// ABOUTME: The daemon syncs on an interval and on SIGHUP until interrupted

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/sealnote/internal/api"
	"github.com/2389/sealnote/internal/session"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Push local changes and pull remote ones",
		Args:    cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, a *app, _ []string) error {
			coord, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}

			res, err := coord.Sync(cmd.Context())
			if errors.Is(err, api.ErrAuthFailure) {
				return fmt.Errorf("%w: run 'sealnote login' again", err)
			}
			if err != nil {
				return err
			}

			color.Green("Synced: %d pushed, %d retrieved, %d removed\n", res.Pushed, res.Retrieved, res.Removed)
			if res.Kept > 0 {
				fmt.Printf("%d local edit(s) kept over remote changes\n", res.Kept)
			}
			for _, f := range res.Rejected {
				color.Yellow("  rejected %s: %v\n", f.UUID, f.Err)
			}
			return nil
		}),
	}
}

func daemonCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:     "daemon",
		GroupID: "sync",
		Short:   "Sync continuously until interrupted",
		Long: `Run sync rounds on a fixed interval until SIGINT or SIGTERM.

Sending SIGHUP requests an immediate round. Failed rounds are logged and
retried on the next tick.`,
		Args: cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			s := session.MustFromContext(ctx)
			coord, err := a.coordinator(ctx)
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Sync.Interval
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						coord.Trigger()
					}
				}
			}()

			a.logger.Info("sync daemon started", "account", s.Email, "server", s.Server, "interval", interval)
			coord.Run(ctx, interval)
			return nil
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "sync interval (default from config)")
	return cmd
}
