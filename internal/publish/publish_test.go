// ABOUTME: Tests for HTML rendering and export of public notes
// ABOUTME: Exports into t.TempDir() from an in-memory item store

package publish

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sealnote/internal/items"
	"github.com/2389/sealnote/internal/models"
	"github.com/2389/sealnote/internal/store"
)

func TestRender_Markdown(t *testing.T) {
	note := models.NewItem(models.ContentTypeNote)
	models.Note{Title: "Release <notes>", Text: "# Heading\n\n- [x] done\n\n<script>alert(1)</script>"}.Apply(note)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Render(&buf, note, []string{"blog", "work"}))
	out := buf.String()

	assert.Contains(t, out, "<h1>Heading</h1>")
	assert.Contains(t, out, `type="checkbox"`)
	assert.Contains(t, out, "Release &lt;notes&gt;")
	assert.Contains(t, out, "blog, work")
	assert.NotContains(t, out, "<script>alert(1)</script>")
}

func TestFileName(t *testing.T) {
	note := models.NewItem(models.ContentTypeNote)

	note.PresentationName = "My First Post!"
	assert.Equal(t, "my-first-post.html", FileName(note))

	note.PresentationName = "../../etc/passwd"
	assert.Equal(t, "etc-passwd.html", FileName(note))

	note.PresentationName = "index"
	assert.Equal(t, note.UUID+".html", FileName(note))

	note.PresentationName = ""
	assert.Equal(t, note.UUID+".html", FileName(note))
}

func TestExportPublic(t *testing.T) {
	ctx := context.Background()
	s := items.New(store.NewMockStore(), nil, nil)

	published, err := s.Create(ctx, models.ContentTypeNote, map[string]any{"title": "Hello", "text": "public *words*"})
	require.NoError(t, err)
	_, err = s.SetPresentation(ctx, published.UUID, "hello")
	require.NoError(t, err)

	tag, err := s.Create(ctx, models.ContentTypeTag, map[string]any{"title": "blog"})
	require.NoError(t, err)
	_, err = s.SetPresentation(ctx, tag.UUID, "blog")
	require.NoError(t, err)
	viaTag, err := s.Create(ctx, models.ContentTypeNote, map[string]any{"title": "Tagged", "text": "shared"})
	require.NoError(t, err)
	_, err = s.AddReference(ctx, viaTag.UUID, tag.UUID)
	require.NoError(t, err)

	_, err = s.Create(ctx, models.ContentTypeNote, map[string]any{"title": "Diary", "text": "private"})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "site")
	entries, err := ExportPublic(ctx, s, dir, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	page, err := os.ReadFile(filepath.Join(dir, "hello.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<em>words</em>")

	tagged, err := os.ReadFile(filepath.Join(dir, viaTag.UUID+".html"))
	require.NoError(t, err)
	assert.Contains(t, string(tagged), "blog")

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="hello.html"`)
	assert.NotContains(t, string(index), "Diary")

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}
