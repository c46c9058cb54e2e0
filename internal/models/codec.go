// ABOUTME: Registry of content-type codecs that give each item type its behavior
// ABOUTME: Codecs validate content, name reference relations and extend publicity rules

package models

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Content types shipped with the client.
const (
	ContentTypeNote = "Note"
	ContentTypeTag  = "Tag"
)

// Relation names used when no codec-specific relation applies.
const RelationReferences = "references"

// ErrCodecAlreadyRegistered indicates a codec for the content type already exists.
var ErrCodecAlreadyRegistered = errors.New("codec already registered")

// ErrInvalidContent is wrapped by codec validation failures.
var ErrInvalidContent = errors.New("invalid content")

// Codec describes the per-content-type behavior of items.
type Codec interface {
	// ContentType is the content_type string this codec handles.
	ContentType() string

	// Validate checks the shape of decrypted content.
	Validate(content map[string]any) error

	// Relation names the edge created when an item of this type references an item of
	// targetType.
	Relation(targetType string) string

	// PublicVia lists content types whose public linked items make this item public.
	PublicVia() []string
}

// Registry maps content types to codecs. Unknown types fall back to a generic codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// DefaultRegistry returns a registry with the Note and Tag codecs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NoteCodec{})
	_ = r.Register(TagCodec{})
	return r
}

// Register adds a codec. Returns ErrCodecAlreadyRegistered on duplicates.
func (r *Registry) Register(c Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[c.ContentType()]; exists {
		return fmt.Errorf("%w: %s", ErrCodecAlreadyRegistered, c.ContentType())
	}
	r.codecs[c.ContentType()] = c
	return nil
}

// Lookup returns the codec for contentType, or the generic codec when none is registered.
func (r *Registry) Lookup(contentType string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.codecs[contentType]; ok {
		return c
	}
	return genericCodec{contentType: contentType}
}

// ContentTypes returns the registered content types, sorted.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.codecs))
	for ct := range r.codecs {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// genericCodec handles content types with no registered codec.
type genericCodec struct {
	contentType string
}

func (g genericCodec) ContentType() string { return g.contentType }

func (g genericCodec) Validate(content map[string]any) error {
	return validateReferences(content)
}

func (g genericCodec) Relation(string) string { return RelationReferences }

func (g genericCodec) PublicVia() []string { return nil }

// validateReferences checks the optional "references" array.
func validateReferences(content map[string]any) error {
	raw, ok := content["references"]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: references must be an array", ErrInvalidContent)
	}
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: references[%d] must be an object", ErrInvalidContent, i)
		}
		if id, ok := m["uuid"].(string); !ok || id == "" {
			return fmt.Errorf("%w: references[%d].uuid must be a non-empty string", ErrInvalidContent, i)
		}
	}
	return nil
}

// validateStrings checks that the named fields, when present, are strings.
func validateStrings(content map[string]any, fields ...string) error {
	for _, f := range fields {
		v, ok := content[f]
		if !ok || v == nil {
			continue
		}
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidContent, f)
		}
	}
	return nil
}
