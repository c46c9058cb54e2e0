// ABOUTME: Renders public notes to standalone HTML pages using goldmark
// ABOUTME: Exports every public note plus an index; private notes are never written

package publish

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/sealnote/internal/items"
	"github.com/2389/sealnote/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// Renderer turns notes into HTML pages.
type Renderer struct {
	md    goldmark.Markdown
	note  *template.Template
	index *template.Template
}

// NewRenderer creates a renderer with GitHub flavored markdown. Raw HTML in note text
// is escaped.
func NewRenderer() *Renderer {
	return &Renderer{
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		note:  template.Must(template.ParseFS(templateFS, "templates/note.html")),
		index: template.Must(template.ParseFS(templateFS, "templates/index.html")),
	}
}

type notePage struct {
	Title   string
	Tags    []string
	Body    template.HTML
	Updated time.Time
}

// Entry is one exported page.
type Entry struct {
	UUID  string
	Title string
	File  string
}

// Render writes the page for note. tags are the titles of its linked tags.
func (r *Renderer) Render(w io.Writer, note *models.Item, tags []string) error {
	n := models.NoteFromItem(note)

	var body bytes.Buffer
	if err := r.md.Convert([]byte(n.Text), &body); err != nil {
		return fmt.Errorf("converting markdown: %w", err)
	}

	title := n.Title
	if title == "" {
		title = "Untitled"
	}
	return r.note.Execute(w, notePage{
		Title:   title,
		Tags:    tags,
		Body:    template.HTML(body.String()),
		Updated: note.UpdatedAt,
	})
}

// RenderIndex writes an index page linking the entries.
func (r *Renderer) RenderIndex(w io.Writer, entries []Entry) error {
	return r.index.Execute(w, entries)
}

// FileName returns the page file name for a note: its presentation name when set,
// otherwise its uuid.
func FileName(note *models.Item) string {
	name := strings.ToLower(strings.TrimSpace(note.PresentationName))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-")
	if name == "" || name == "index" {
		name = note.UUID
	}
	return name + ".html"
}

// ExportPublic writes a page for every public note to dir, plus index.html.
func ExportPublic(ctx context.Context, itemStore *items.Store, dir string, r *Renderer) ([]Entry, error) {
	if r == nil {
		r = NewRenderer()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	var entries []Entry
	used := make(map[string]bool)
	for _, note := range itemStore.List(models.ContentTypeNote) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !itemStore.IsPublic(note.UUID) {
			continue
		}

		var tags []string
		for _, tag := range itemStore.Linked(note.UUID, models.ContentTypeTag) {
			tags = append(tags, tag.Title())
		}

		file := FileName(note)
		if used[file] {
			file = note.UUID + ".html"
		}
		used[file] = true

		var buf bytes.Buffer
		if err := r.Render(&buf, note, tags); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", note.UUID, err)
		}
		if err := os.WriteFile(filepath.Join(dir, file), buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", file, err)
		}

		title := note.Title()
		if title == "" {
			title = "Untitled"
		}
		entries = append(entries, Entry{UUID: note.UUID, Title: title, File: file})
	}

	var buf bytes.Buffer
	if err := r.RenderIndex(&buf, entries); err != nil {
		return nil, fmt.Errorf("rendering index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("writing index: %w", err)
	}

	slog.Info("exported public notes", "count", len(entries), "dir", dir)
	return entries, nil
}
