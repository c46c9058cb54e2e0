// ABOUTME: In-memory item index backed by the local store collaborator
// ABOUTME: Local mutations mark items dirty, bump their revision and persist before they become visible

package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/sealnote/internal/models"
	"github.com/2389/sealnote/internal/store"
)

var (
	// ErrNotFound indicates the item is not in the store.
	ErrNotFound = errors.New("item not found")

	// ErrItemDeleted indicates the item is a local tombstone awaiting sync.
	ErrItemDeleted = errors.New("item is deleted")
)

// Store holds every item and the reference graph between them.
// A single RWMutex guards items and edges; readers never see a half-rebuilt edge set.
type Store struct {
	mu      sync.RWMutex
	items   map[string]*models.Item
	edges   map[string][]Edge              // source uuid -> outgoing edges
	inbound map[string]map[string]struct{} // target uuid -> source uuids
	pending map[string][]string            // source uuid -> referenced uuids not yet known

	backend store.Store
	codecs  *models.Registry
	logger  *slog.Logger
}

// New creates an empty item store. Call Load to read persisted items.
func New(backend store.Store, codecs *models.Registry, logger *slog.Logger) *Store {
	if codecs == nil {
		codecs = models.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:   make(map[string]*models.Item),
		edges:   make(map[string][]Edge),
		inbound: make(map[string]map[string]struct{}),
		pending: make(map[string][]string),
		backend: backend,
		codecs:  codecs,
		logger:  logger.With("component", "items"),
	}
}

// Codecs returns the codec registry used by the store.
func (s *Store) Codecs() *models.Registry {
	return s.codecs
}

// Load replaces the in-memory state with every persisted item and rebuilds all edges.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.backend.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*models.Item, len(all))
	s.edges = make(map[string][]Edge)
	s.inbound = make(map[string]map[string]struct{})
	s.pending = make(map[string][]string)

	for _, item := range all {
		s.items[item.UUID] = item
	}
	for id := range s.items {
		s.resolveLocked(id)
	}

	s.logger.Info("loaded items", "count", len(s.items))
	return nil
}

// Get returns a copy of the item, including local tombstones.
func (s *Store) Get(uuid string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[uuid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uuid, ErrNotFound)
	}
	return item.Clone(), nil
}

// List returns copies of live items of contentType, oldest first.
// An empty contentType lists every type.
func (s *Store) List(contentType string) []*models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Item
	for _, item := range s.items {
		if item.Deleted {
			continue
		}
		if contentType != "" && item.ContentType != contentType {
			continue
		}
		out = append(out, item.Clone())
	}
	sortByCreated(out)
	return out
}

// DirtySnapshot returns deep copies of every dirty item. Each copy carries the revision
// it was taken at, which ClearDirty and Commit check against later edits.
func (s *Store) DirtySnapshot() []*models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Item
	for _, item := range s.items {
		if item.Dirty {
			out = append(out, item.Clone())
		}
	}
	sortByCreated(out)
	return out
}

// Create adds a new dirty item of contentType with the given content.
func (s *Store) Create(ctx context.Context, contentType string, content map[string]any) (*models.Item, error) {
	item := models.NewItem(contentType)
	if content != nil {
		item.Content = models.CloneContent(content)
	}
	if err := s.codecs.Lookup(contentType).Validate(item.Content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocalLocked(ctx, nil, item); err != nil {
		return nil, err
	}

	s.logger.Debug("created item", "uuid", item.UUID, "content_type", contentType)
	return item.Clone(), nil
}

// Update applies fn to a copy of the item, validates the result, then persists it as
// a new dirty revision. Edges are rebuilt from the new content.
func (s *Store) Update(ctx context.Context, uuid string, fn func(item *models.Item) error) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[uuid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uuid, ErrNotFound)
	}
	if current.Deleted {
		return nil, fmt.Errorf("%s: %w", uuid, ErrItemDeleted)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UUID = current.UUID
	if err := s.codecs.Lookup(next.ContentType).Validate(next.Content); err != nil {
		return nil, err
	}

	if err := s.persistLocalLocked(ctx, current, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Delete turns the item into a local tombstone. The row is removed once a push confirms
// the deletion.
func (s *Store) Delete(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[uuid]
	if !ok {
		return fmt.Errorf("%s: %w", uuid, ErrNotFound)
	}
	if current.Deleted {
		return nil
	}

	next := current.Clone()
	next.Deleted = true
	return s.persistLocalLocked(ctx, current, next)
}

// SetPresentation publishes the item under name, or unpublishes it when name is empty.
func (s *Store) SetPresentation(ctx context.Context, uuid, name string) (*models.Item, error) {
	return s.Update(ctx, uuid, func(item *models.Item) error {
		item.PresentationName = name
		if name == "" {
			item.URL = ""
		}
		return nil
	})
}

// AddReference adds a reference from src to dst. Adding an existing reference is a no-op
// that still succeeds.
func (s *Store) AddReference(ctx context.Context, src, dst string) (*models.Item, error) {
	target, err := s.Get(dst)
	if err != nil {
		return nil, err
	}
	if target.Deleted {
		return nil, fmt.Errorf("%s: %w", dst, ErrItemDeleted)
	}

	return s.Update(ctx, src, func(item *models.Item) error {
		refs := item.References()
		for _, r := range refs {
			if r.UUID == dst {
				return nil
			}
		}
		item.SetReferences(append(refs, models.Reference{UUID: dst, ContentType: target.ContentType}))
		return nil
	})
}

// RemoveReference drops every reference from src to dst.
func (s *Store) RemoveReference(ctx context.Context, src, dst string) (*models.Item, error) {
	return s.Update(ctx, src, func(item *models.Item) error {
		refs := item.References()
		kept := refs[:0]
		for _, r := range refs {
			if r.UUID != dst {
				kept = append(kept, r)
			}
		}
		item.SetReferences(kept)
		return nil
	})
}

// MarkDirty flags the item as having unsynced changes.
func (s *Store) MarkDirty(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[uuid]
	if !ok {
		return fmt.Errorf("%s: %w", uuid, ErrNotFound)
	}
	return s.persistLocalLocked(ctx, current, current.Clone())
}

// ClearDirty clears the dirty flag if the item is still at revision, the revision a push
// confirmed. Returns false when the item changed since and must stay dirty.
func (s *Store) ClearDirty(ctx context.Context, uuid string, revision uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[uuid]
	if !ok {
		return false, fmt.Errorf("%s: %w", uuid, ErrNotFound)
	}
	if !current.Dirty {
		return true, nil
	}
	if current.Revision != revision {
		return false, nil
	}

	next := current.Clone()
	next.Dirty = false
	if err := s.backend.Save(ctx, next); err != nil {
		return false, fmt.Errorf("saving item: %w", err)
	}
	s.items[uuid] = next
	return true, nil
}

// persistLocalLocked stores next as a new dirty revision of current and swaps it in.
// Caller must hold the write lock.
func (s *Store) persistLocalLocked(ctx context.Context, current, next *models.Item) error {
	next.UpdatedAt = time.Now().UTC()
	return s.writeLocalLocked(ctx, current, next)
}

// writeLocalLocked persists next as a dirty revision following current (nil for a new
// item). Linked items whose publicity flips with the write are marked dirty in the same
// backend write so their next push uses the right wire format. A failed write restores
// memory. Caller must hold the write lock.
func (s *Store) writeLocalLocked(ctx context.Context, current, next *models.Item) error {
	next.Dirty = true
	next.Revision = 1
	if current != nil {
		next.Revision = current.Revision + 1
	}

	scope := s.publicityScopeLocked(next)
	before := s.publicityLocked(scope)

	s.items[next.UUID] = next
	s.relinkLocked([]string{next.UUID})
	flipped := s.flippedLocked(next.UUID, before)

	var err error
	if len(flipped) == 0 {
		err = s.backend.Save(ctx, next)
	} else {
		err = s.backend.Apply(ctx, &store.Changeset{Upserts: append([]*models.Item{next}, flipped...)})
	}
	if err != nil {
		if current != nil {
			s.items[next.UUID] = current
		} else {
			delete(s.items, next.UUID)
		}
		s.relinkLocked([]string{next.UUID})
		return fmt.Errorf("saving item: %w", err)
	}

	for _, item := range flipped {
		s.items[item.UUID] = item
		s.logger.Debug("publicity changed, queued for push", "uuid", item.UUID, "via", next.UUID)
	}
	return nil
}

func sortByCreated(items []*models.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].UUID < items[j].UUID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
