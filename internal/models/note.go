// ABOUTME: Note and Tag codecs plus typed views over item content
// ABOUTME: Notes link to tags; a note is public when any linked tag is public

package models

// Relation names for note/tag edges.
const (
	RelationTags  = "tags"
	RelationNotes = "notes"
)

// NoteCodec handles items of type Note.
type NoteCodec struct{}

func (NoteCodec) ContentType() string { return ContentTypeNote }

func (NoteCodec) Validate(content map[string]any) error {
	if err := validateStrings(content, "title", "text"); err != nil {
		return err
	}
	return validateReferences(content)
}

func (NoteCodec) Relation(targetType string) string {
	if targetType == ContentTypeTag {
		return RelationTags
	}
	return RelationReferences
}

// PublicVia makes a note public when a linked tag is public.
func (NoteCodec) PublicVia() []string { return []string{ContentTypeTag} }

// TagCodec handles items of type Tag.
type TagCodec struct{}

func (TagCodec) ContentType() string { return ContentTypeTag }

func (TagCodec) Validate(content map[string]any) error {
	if err := validateStrings(content, "title"); err != nil {
		return err
	}
	return validateReferences(content)
}

func (TagCodec) Relation(targetType string) string {
	if targetType == ContentTypeNote {
		return RelationNotes
	}
	return RelationReferences
}

func (TagCodec) PublicVia() []string { return nil }

// Note is a typed view of a Note item's content.
type Note struct {
	Title string
	Text  string
}

// NoteFromItem reads the note fields from an item's content.
func NoteFromItem(item *Item) Note {
	return Note{
		Title: item.Title(),
		Text:  item.StringField("text"),
	}
}

// Apply writes the note fields into the item's content, keeping references.
func (n Note) Apply(item *Item) {
	if item.Content == nil {
		item.Content = map[string]any{}
	}
	item.Content["title"] = n.Title
	item.Content["text"] = n.Text
}

// Tag is a typed view of a Tag item's content.
type Tag struct {
	Title string
}

// TagFromItem reads the tag fields from an item's content.
func TagFromItem(item *Item) Tag {
	return Tag{Title: item.Title()}
}

// Apply writes the tag fields into the item's content, keeping references.
func (t Tag) Apply(item *Item) {
	if item.Content == nil {
		item.Content = map[string]any{}
	}
	item.Content["title"] = t.Title
}
