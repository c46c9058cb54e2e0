// ABOUTME: Publishing commands: mark items public and export public notes as HTML
// ABOUTME: A published tag makes every note it links to public

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/sealnote/internal/models"
	"github.com/2389/sealnote/internal/publish"
)

// resolveAny finds a note or tag by uuid or prefix.
func resolveAny(a *app, ref string) (*models.Item, error) {
	note, noteErr := resolveItem(a, models.ContentTypeNote, ref)
	tag, tagErr := resolveItem(a, models.ContentTypeTag, ref)
	switch {
	case noteErr == nil && tagErr == nil:
		return nil, fmt.Errorf("%q matches both a note and a tag", ref)
	case noteErr == nil:
		return note, nil
	case tagErr == nil:
		return tag, nil
	default:
		return nil, fmt.Errorf("no note or tag matches %q", ref)
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "publish <uuid> <name>",
		GroupID: "content",
		Short:   "Publish a note or tag under a name",
		Long: `Publish sends the item unencrypted on the next sync. Publishing a tag
also publishes every note tagged with it.`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			item, err := resolveAny(a, args[0])
			if err != nil {
				return err
			}
			if _, err := a.items.SetPresentation(cmd.Context(), item.UUID, args[1]); err != nil {
				return err
			}
			color.Yellow("%s %q will be synced unencrypted\n", item.ContentType, item.Title())
			return nil
		}),
	}
}

func unpublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unpublish <uuid>",
		GroupID: "content",
		Short:   "Make a published note or tag private again",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			item, err := resolveAny(a, args[0])
			if err != nil {
				return err
			}
			if _, err := a.items.SetPresentation(cmd.Context(), item.UUID, ""); err != nil {
				return err
			}
			if a.items.IsPublic(item.UUID) {
				color.Yellow("%s is still public through a published tag\n", shortID(item.UUID))
			}
			return nil
		}),
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "export [dir]",
		GroupID: "content",
		Short:   "Write public notes as HTML pages",
		Args:    cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			dir := a.cfg.Publish.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			entries, err := publish.ExportPublic(cmd.Context(), a.items, dir, nil)
			if err != nil {
				return err
			}
			color.Green("Exported %d public note(s) to %s\n", len(entries), dir)
			return nil
		}),
	}
}
