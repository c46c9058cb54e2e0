// ABOUTME: Note and tag commands operating on the local item store
// ABOUTME: Changes are local until the next sync; items are addressed by uuid or unique prefix

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/sealnote/internal/models"
)

// resolveItem finds a live item of contentType by full uuid or unique uuid prefix.
func resolveItem(a *app, contentType, ref string) (*models.Item, error) {
	var matches []*models.Item
	for _, item := range a.items.List(contentType) {
		if item.UUID == ref {
			return item, nil
		}
		if strings.HasPrefix(item.UUID, ref) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no %s matches %q", strings.ToLower(contentType), ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

// noteText returns --text, or stdin when --stdin is set.
func noteText(text string, fromStdin bool) (string, error) {
	if !fromStdin {
		return text, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func tagTitles(a *app, uuid string) []string {
	var titles []string
	for _, tag := range a.items.Linked(uuid, models.ContentTypeTag) {
		titles = append(titles, tag.Title())
	}
	return titles
}

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "note",
		GroupID: "content",
		Short:   "Create, list, show, edit and delete notes",
	}
	cmd.AddCommand(noteNewCmd(), noteListCmd(), noteShowCmd(), noteEditCmd(), noteDeleteCmd())
	return cmd
}

func noteNewCmd() *cobra.Command {
	var text string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			body, err := noteText(text, fromStdin)
			if err != nil {
				return err
			}
			note, err := a.items.Create(cmd.Context(), models.ContentTypeNote, map[string]any{
				"title": args[0],
				"text":  body,
			})
			if err != nil {
				return err
			}
			fmt.Println(note.UUID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "note body (markdown)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the note body from stdin")
	return cmd
}

func noteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			notes := a.items.List(models.ContentTypeNote)
			if len(notes) == 0 {
				fmt.Println("No notes")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tTITLE\tTAGS\tSTATE")
			for _, n := range notes {
				var state []string
				if n.Dirty {
					state = append(state, "unsynced")
				}
				if a.items.IsPublic(n.UUID) {
					state = append(state, "public")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					shortID(n.UUID),
					truncate(n.Title(), 40),
					strings.Join(tagTitles(a, n.UUID), ","),
					strings.Join(state, ","),
				)
			}
			return w.Flush()
		}),
	}
}

func noteShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <uuid>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			note, err := resolveItem(a, models.ContentTypeNote, args[0])
			if err != nil {
				return err
			}
			n := models.NoteFromItem(note)

			color.New(color.Bold).Println(n.Title)
			fmt.Printf("uuid:    %s\n", note.UUID)
			fmt.Printf("updated: %s\n", note.UpdatedAt.Local().Format("2006-01-02 15:04"))
			if tags := tagTitles(a, note.UUID); len(tags) > 0 {
				fmt.Printf("tags:    %s\n", strings.Join(tags, ", "))
			}
			if a.items.IsPublic(note.UUID) {
				color.Cyan("public\n")
			}
			if dangling := a.items.Dangling(note.UUID); len(dangling) > 0 {
				color.Yellow("waiting on %d unsynced reference(s)\n", len(dangling))
			}
			fmt.Println()
			fmt.Println(n.Text)
			return nil
		}),
	}
}

func noteEditCmd() *cobra.Command {
	var title, text string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "edit <uuid>",
		Short: "Change a note's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			setTitle := cmd.Flags().Changed("title")
			setText := cmd.Flags().Changed("text") || fromStdin
			if !setTitle && !setText {
				return errors.New("nothing to change, pass --title, --text or --stdin")
			}

			note, err := resolveItem(a, models.ContentTypeNote, args[0])
			if err != nil {
				return err
			}
			body, err := noteText(text, fromStdin)
			if err != nil {
				return err
			}

			_, err = a.items.Update(cmd.Context(), note.UUID, func(item *models.Item) error {
				n := models.NoteFromItem(item)
				if setTitle {
					n.Title = title
				}
				if setText {
					n.Text = body
				}
				n.Apply(item)
				return nil
			})
			return err
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&text, "text", "t", "", "new body")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the new body from stdin")
	return cmd
}

func noteDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uuid>",
		Short: "Delete a note on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			note, err := resolveItem(a, models.ContentTypeNote, args[0])
			if err != nil {
				return err
			}
			return a.items.Delete(cmd.Context(), note.UUID)
		}),
	}
}

func tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		GroupID: "content",
		Short:   "Create, list and attach tags",
	}
	cmd.AddCommand(tagNewCmd(), tagListCmd(), tagAttachCmd(), tagDetachCmd())
	return cmd
}

func tagNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <title>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			tag, err := a.items.Create(cmd.Context(), models.ContentTypeTag, map[string]any{"title": args[0]})
			if err != nil {
				return err
			}
			fmt.Println(tag.UUID)
			return nil
		}),
	}
}

func tagListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			tags := a.items.List(models.ContentTypeTag)
			if len(tags) == 0 {
				fmt.Println("No tags")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tTITLE\tNOTES\tPUBLISHED AS")
			for _, t := range tags {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					shortID(t.UUID),
					truncate(t.Title(), 40),
					len(a.items.Linked(t.UUID, models.ContentTypeNote)),
					t.PresentationName,
				)
			}
			return w.Flush()
		}),
	}
}

func tagAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <tag> <note>",
		Short: "Tag a note",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			tag, note, err := resolvePair(a, args)
			if err != nil {
				return err
			}
			_, err = a.items.AddReference(cmd.Context(), note.UUID, tag.UUID)
			return err
		}),
	}
}

func tagDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <tag> <note>",
		Short: "Remove a tag from a note",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			tag, note, err := resolvePair(a, args)
			if err != nil {
				return err
			}
			// Either side may hold the link depending on which client made it.
			for _, pair := range [][2]*models.Item{{note, tag}, {tag, note}} {
				if !references(pair[0], pair[1].UUID) {
					continue
				}
				if _, err := a.items.RemoveReference(cmd.Context(), pair[0].UUID, pair[1].UUID); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func references(item *models.Item, target string) bool {
	for _, r := range item.References() {
		if r.UUID == target {
			return true
		}
	}
	return false
}

func resolvePair(a *app, args []string) (tag, note *models.Item, err error) {
	tag, err = resolveItem(a, models.ContentTypeTag, args[0])
	if err != nil {
		return nil, nil, err
	}
	note, err = resolveItem(a, models.ContentTypeNote, args[1])
	if err != nil {
		return nil, nil, err
	}
	return tag, note, nil
}
