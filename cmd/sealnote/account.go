// ABOUTME: Account commands: register, login, logout and status
// ABOUTME: Derives keys locally and persists the session in the local database

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/sealnote/internal/session"
)

func accountEmail(a *app, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.Account.Email != "" {
		return a.cfg.Account.Email, nil
	}
	return "", errors.New("email required (argument or account.email in config)")
}

// adopt stores s as the signed-in session. Signing in as a different account wipes
// the previous account's local items and cursor.
func adopt(cmd *cobra.Command, a *app, s *session.Session) error {
	ctx := cmd.Context()
	reset, err := session.Save(ctx, a.backend, s)
	if err != nil {
		return err
	}
	if reset {
		a.logger.Info("cleared local data of previous account", "email", s.Email, "server", s.Server)
		color.Yellow("Local data of the previous account was removed\n")
		return a.items.Load(ctx)
	}
	return nil
}

func registerCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:     "register [email]",
		GroupID: "account",
		Short:   "Create an account on the sync server",
		Args:    cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			email, err := accountEmail(a, args)
			if err != nil {
				return err
			}
			pw, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			if confirm, err := readPassword("Confirm password: "); err != nil {
				return err
			} else if confirm != pw {
				return errors.New("passwords do not match")
			}

			s, err := session.Register(cmd.Context(), a.apiClient(server), email, pw, a.cfg.KDF.Defaults())
			if err != nil {
				return err
			}
			a.logger.Info("registered account", "email", s.Email, "server", s.Server)
			if err := adopt(cmd, a, s); err != nil {
				return err
			}
			color.Green("Registered %s on %s\n", s.Email, s.Server)
			return nil
		}),
	}
	cmd.Flags().StringVar(&server, "server", "", "sync server URL (default from config)")
	return cmd
}

func loginCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:     "login [email]",
		GroupID: "account",
		Short:   "Sign in and store the session locally",
		Args:    cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			email, err := accountEmail(a, args)
			if err != nil {
				return err
			}
			pw, err := readPassword("Password: ")
			if err != nil {
				return err
			}

			s, err := session.Login(cmd.Context(), a.apiClient(server), email, pw)
			if err != nil {
				return err
			}
			a.logger.Info("signed in", "email", s.Email, "server", s.Server)
			if err := adopt(cmd, a, s); err != nil {
				return err
			}
			color.Green("Signed in as %s\n", s.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&server, "server", "", "sync server URL (default from config)")
	return cmd
}

func logoutCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "logout",
		GroupID: "account",
		Short:   "Forget the stored session and all local notes",
		Long: `Logout removes the session, every local item and the sync cursor, so the
next account starts from an empty database. Unsynced changes are lost, so
logout refuses to run while any exist unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if n := len(a.items.DirtySnapshot()); n > 0 && !force {
				return fmt.Errorf("%d unsynced item(s) would be lost, run 'sealnote sync' first or pass --force", n)
			}
			if err := session.Logout(cmd.Context(), a.backend); err != nil {
				return err
			}
			if err := a.items.Load(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("signed out")
			fmt.Println("Signed out")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard unsynced changes")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "account",
		Short:   "Show the session and local sync state",
		Args:    cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()

			s, err := session.Load(ctx, a.backend)
			switch {
			case errors.Is(err, session.ErrNoSession):
				color.Yellow("Not signed in\n")
			case err != nil:
				return err
			default:
				fmt.Printf("Account:  %s\n", s.Email)
				fmt.Printf("Server:   %s\n", s.Server)
				if exp, ok := s.ExpiresAt(); ok {
					if s.Expired(time.Now()) {
						color.Red("Token:    expired %s\n", exp.Local().Format(time.RFC1123))
					} else {
						fmt.Printf("Token:    valid until %s\n", exp.Local().Format(time.RFC1123))
					}
				}
			}

			token, err := a.backend.SyncToken(ctx)
			if err != nil {
				return err
			}
			if token == "" {
				token = "(never synced)"
			}
			fmt.Printf("Cursor:   %s\n", token)
			fmt.Printf("Unsynced: %d item(s)\n", len(a.items.DirtySnapshot()))
			for _, ct := range a.items.Codecs().ContentTypes() {
				fmt.Printf("%-9s %d\n", ct+":", len(a.items.List(ct)))
			}
			return nil
		}),
	}
}
