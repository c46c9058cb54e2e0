// ABOUTME: Reference graph rebuilt from item content and the publicity rules over it
// ABOUTME: Dangling references are remembered and re-resolved when their target arrives

package items

import (
	"slices"
	"sort"
	"time"

	"github.com/2389/sealnote/internal/models"
)

// Edge is a resolved reference from one item to another.
type Edge struct {
	Target      string
	ContentType string
	Relation    string
}

// ResolveReferences rebuilds the item's outgoing edges from its content.
// References to unknown items are skipped and retried after later commits.
func (s *Store) ResolveReferences(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveLocked(uuid)
}

// Edges returns the item's outgoing edges ordered by target uuid.
func (s *Store) Edges(uuid string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Edge, len(s.edges[uuid]))
	copy(out, s.edges[uuid])
	return out
}

// Dangling returns the referenced uuids of an item that are not known yet.
func (s *Store) Dangling(uuid string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.pending[uuid]))
	copy(out, s.pending[uuid])
	return out
}

// Linked returns live items connected to uuid by an edge in either direction, filtered by
// contentType when it is not empty.
func (s *Store) Linked(uuid, contentType string) []*models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Item
	for _, id := range s.linkedLocked(uuid) {
		item := s.items[id]
		if contentType != "" && item.ContentType != contentType {
			continue
		}
		out = append(out, item.Clone())
	}
	sortByCreated(out)
	return out
}

// IsPublic reports whether the item is public: it has a presentation name, or its codec
// lists a content type through which a linked public item makes it public.
func (s *Store) IsPublic(uuid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPublicLocked(uuid, make(map[string]struct{}))
}

func (s *Store) isPublicLocked(uuid string, visited map[string]struct{}) bool {
	if _, seen := visited[uuid]; seen {
		return false
	}
	visited[uuid] = struct{}{}

	item, ok := s.items[uuid]
	if !ok || item.Deleted {
		return false
	}
	if item.PresentationName != "" {
		return true
	}

	via := s.codecs.Lookup(item.ContentType).PublicVia()
	if len(via) == 0 {
		return false
	}
	for _, id := range s.linkedLocked(uuid) {
		if !slices.Contains(via, s.items[id].ContentType) {
			continue
		}
		if s.isPublicLocked(id, visited) {
			return true
		}
	}
	return false
}

// publicityScopeLocked lists the live items whose publicity a write of next can change:
// everything connected to the item or to anything its new content references.
func (s *Store) publicityScopeLocked(next *models.Item) []string {
	roots := []string{next.UUID}
	for _, ref := range next.References() {
		roots = append(roots, ref.UUID)
	}

	seen := make(map[string]struct{})
	var queue []string
	for _, id := range roots {
		if _, ok := s.items[id]; !ok {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			queue = append(queue, id)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, id := range s.linkedLocked(queue[i]) {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				queue = append(queue, id)
			}
		}
	}
	sort.Strings(queue)
	return queue
}

// publicityLocked evaluates IsPublic for each id.
func (s *Store) publicityLocked(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = s.isPublicLocked(id, make(map[string]struct{}))
	}
	return out
}

// flippedLocked returns new dirty revisions of the live items in before, other than
// skip, whose publicity no longer matches. Memory is not modified.
func (s *Store) flippedLocked(skip string, before map[string]bool) []*models.Item {
	ids := make([]string, 0, len(before))
	for id := range before {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	var out []*models.Item
	for _, id := range ids {
		item, ok := s.items[id]
		if id == skip || !ok || item.Deleted {
			continue
		}
		if s.isPublicLocked(id, make(map[string]struct{})) == before[id] {
			continue
		}
		next := item.Clone()
		next.Dirty = true
		next.Revision = item.Revision + 1
		next.UpdatedAt = now
		out = append(out, next)
	}
	return out
}

// linkedLocked returns uuids of live items linked to uuid in either direction.
func (s *Store) linkedLocked(uuid string) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == uuid {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		item, ok := s.items[id]
		if !ok || item.Deleted {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, e := range s.edges[uuid] {
		add(e.Target)
	}
	for src := range s.inbound[uuid] {
		add(src)
	}
	sort.Strings(ids)
	return ids
}

// resolveLocked replaces the outgoing edges of uuid. Caller must hold the write lock.
func (s *Store) resolveLocked(uuid string) {
	for _, e := range s.edges[uuid] {
		if sources, ok := s.inbound[e.Target]; ok {
			delete(sources, uuid)
			if len(sources) == 0 {
				delete(s.inbound, e.Target)
			}
		}
	}
	delete(s.edges, uuid)
	delete(s.pending, uuid)

	item, ok := s.items[uuid]
	if !ok || item.Deleted {
		return
	}

	codec := s.codecs.Lookup(item.ContentType)
	var edges []Edge
	var missing []string
	seen := make(map[string]struct{})

	for _, ref := range item.References() {
		if ref.UUID == uuid {
			continue
		}
		if _, dup := seen[ref.UUID]; dup {
			continue
		}
		seen[ref.UUID] = struct{}{}

		target, ok := s.items[ref.UUID]
		if !ok || target.Deleted {
			missing = append(missing, ref.UUID)
			s.logger.Debug("dangling reference", "source", uuid, "target", ref.UUID)
			continue
		}
		edges = append(edges, Edge{
			Target:      target.UUID,
			ContentType: target.ContentType,
			Relation:    codec.Relation(target.ContentType),
		})
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].Target < edges[j].Target })
	sort.Strings(missing)

	if len(edges) > 0 {
		s.edges[uuid] = edges
		for _, e := range edges {
			if s.inbound[e.Target] == nil {
				s.inbound[e.Target] = make(map[string]struct{})
			}
			s.inbound[e.Target][uuid] = struct{}{}
		}
	}
	if len(missing) > 0 {
		s.pending[uuid] = missing
	}
}

// relinkLocked re-resolves the changed items plus every item whose edges point at them
// or that was waiting for one of them. Caller must hold the write lock.
func (s *Store) relinkLocked(changed []string) {
	if len(changed) == 0 {
		return
	}

	changedSet := make(map[string]struct{}, len(changed))
	affected := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
		affected[id] = struct{}{}
		for src := range s.inbound[id] {
			affected[src] = struct{}{}
		}
	}
	for src, missing := range s.pending {
		for _, id := range missing {
			if _, ok := changedSet[id]; ok {
				affected[src] = struct{}{}
				break
			}
		}
	}

	for id := range affected {
		s.resolveLocked(id)
	}
}
