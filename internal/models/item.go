// ABOUTME: Item and wire record types shared by the store, crypto and sync packages
// ABOUTME: Items carry decrypted content plus client-local dirty/revision state

package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content tags prefixed to the wire content string.
const (
	TagPublic    = "000" // base64 JSON, no key material
	TagEncrypted = "001" // AES-CBC ciphertext, HMAC authenticated
)

// ErrMissingUUID is returned when a record has no uuid.
var ErrMissingUUID = errors.New("record has no uuid")

// Item is the client-side view of a synced item.
// Content holds the decrypted JSON object; nil means the content is unset or was not
// legible (tampered, malformed, or never received).
type Item struct {
	UUID             string
	ContentType      string
	EncItemKey       string // empty when absent (public items)
	AuthHash         string // empty when absent (public items)
	Content          map[string]any
	PresentationName string
	URL              string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Deleted          bool

	// Client-local state, never transmitted.
	Dirty    bool
	Revision uint64 // bumped on every local mutation
}

// NewItem creates an empty item of the given content type with a fresh uuid.
func NewItem(contentType string) *Item {
	now := time.Now().UTC()
	return &Item{
		UUID:        uuid.New().String(),
		ContentType: contentType,
		Content:     map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	c.Content = CloneContent(i.Content)
	return &c
}

// IsPrivate reports whether the item carries key material.
func (i *Item) IsPrivate() bool {
	return i.EncItemKey != ""
}

// StringField returns a string value from content, or "" when absent or not a string.
func (i *Item) StringField(key string) string {
	if i.Content == nil {
		return ""
	}
	s, _ := i.Content[key].(string)
	return s
}

// Title returns the content title, shared by notes and tags.
func (i *Item) Title() string {
	return i.StringField("title")
}

// References returns the references stored in content.
// Malformed entries are skipped; Validate on the codec reports them.
func (i *Item) References() []Reference {
	if i.Content == nil {
		return nil
	}
	return parseReferences(i.Content["references"])
}

// SetReferences replaces the references stored in content.
func (i *Item) SetReferences(refs []Reference) {
	if i.Content == nil {
		i.Content = map[string]any{}
	}
	list := make([]any, 0, len(refs))
	for _, r := range refs {
		list = append(list, map[string]any{
			"uuid":         r.UUID,
			"content_type": r.ContentType,
		})
	}
	i.Content["references"] = list
}

// Reference is a directed edge from an item's content to another item.
type Reference struct {
	UUID        string `json:"uuid"`
	ContentType string `json:"content_type"`
}

func parseReferences(raw any) []Reference {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	refs := make([]Reference, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["uuid"].(string)
		ct, _ := m["content_type"].(string)
		if id == "" {
			continue
		}
		refs = append(refs, Reference{UUID: id, ContentType: ct})
	}
	return refs
}

// CloneContent deep copies a decoded JSON object.
func CloneContent(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	out := make(map[string]any, len(content))
	for k, v := range content {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneContent(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}

// ItemRecord is the wire shape exchanged with the server.
// EncItemKey and AuthHash are pointers so public records carry explicit nulls.
type ItemRecord struct {
	UUID             string    `json:"uuid"`
	ContentType      string    `json:"content_type"`
	PresentationName *string   `json:"presentation_name"`
	URL              *string   `json:"url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Deleted          bool      `json:"deleted"`
	Content          string    `json:"content"`
	EncItemKey       *string   `json:"enc_item_key"`
	AuthHash         *string   `json:"auth_hash"`
}

// ContentTag returns the 3-character tag of the content string, or "" if too short.
func (r *ItemRecord) ContentTag() string {
	if len(r.Content) < 3 {
		return ""
	}
	return r.Content[:3]
}

// Validate checks the fields every record must carry.
func (r *ItemRecord) Validate() error {
	if strings.TrimSpace(r.UUID) == "" {
		return ErrMissingUUID
	}
	return nil
}

// MetadataRecord builds a record carrying the item's metadata and no content.
// Callers fill Content, EncItemKey and AuthHash.
func MetadataRecord(item *Item) ItemRecord {
	rec := ItemRecord{
		UUID:        item.UUID,
		ContentType: item.ContentType,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		Deleted:     item.Deleted,
	}
	if item.PresentationName != "" {
		name := item.PresentationName
		rec.PresentationName = &name
	}
	if item.URL != "" {
		u := item.URL
		rec.URL = &u
	}
	return rec
}

// TombstoneRecord builds the wire record for a locally deleted item.
func TombstoneRecord(item *Item) ItemRecord {
	rec := MetadataRecord(item)
	rec.Deleted = true
	return rec
}

// ApplyMetadata copies every record field except content, enc_item_key and auth_hash.
func ApplyMetadata(item *Item, rec *ItemRecord) {
	item.UUID = rec.UUID
	item.ContentType = rec.ContentType
	item.PresentationName = deref(rec.PresentationName)
	item.URL = deref(rec.URL)
	if !rec.CreatedAt.IsZero() {
		item.CreatedAt = rec.CreatedAt
	}
	if !rec.UpdatedAt.IsZero() {
		item.UpdatedAt = rec.UpdatedAt
	}
	item.Deleted = rec.Deleted
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
