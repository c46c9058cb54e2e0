// ABOUTME: All-or-nothing application of a sync round to the item store
// ABOUTME: Stages merges on copies, persists one changeset, then swaps the in-memory state

package items

import (
	"context"
	"fmt"
	"sort"

	"github.com/2389/sealnote/internal/models"
	"github.com/2389/sealnote/internal/store"
)

// Mode selects how a remote record is merged into the local item.
type Mode int

const (
	// FullMerge overwrites every field, content and key material included.
	FullMerge Mode = iota
	// MetadataOnly overwrites everything except content, enc_item_key and auth_hash.
	MetadataOnly
)

func (m Mode) String() string {
	switch m {
	case FullMerge:
		return "full"
	case MetadataOnly:
		return "metadata"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Remote is a record received from the server together with its opened content.
// Legible is false when the content failed authentication or parsing; such records only
// ever merge metadata.
type Remote struct {
	Record  models.ItemRecord
	Content map[string]any
	Legible bool
}

// Commit is everything one sync round writes.
type Commit struct {
	// Token is the new sync token; nil leaves it unchanged.
	Token *string
	// Retrieved records are merged with FullMerge.
	Retrieved []Remote
	// Saved records are the server's echo of pushed items, merged with MetadataOnly.
	Saved []Remote
	// Pushed maps each pushed uuid to the revision that was sealed. Saved uuids whose
	// local revision still matches have their dirty flag cleared.
	Pushed map[string]uint64
	// PushedKeys maps pushed uuids to the enc_item_key they were sealed with. Items that
	// still have no key adopt it.
	PushedKeys map[string]string
}

// Summary counts what a commit changed.
type Summary struct {
	Merged  int // retrieved records applied
	Echoed  int // saved records applied
	Removed int // rows deleted by tombstones
	Cleared int // dirty flags cleared
	Kept    int // retrieved records skipped to keep newer local edits
}

// ApplyRemote merges records in the given mode as one atomic commit.
func (s *Store) ApplyRemote(ctx context.Context, records []Remote, mode Mode) (Summary, error) {
	c := &Commit{}
	if mode == MetadataOnly {
		c.Saved = records
	} else {
		c.Retrieved = records
	}
	return s.Commit(ctx, c)
}

// Commit applies a sync round. Every change is staged on copies and written with one
// store.Changeset; the in-memory state is swapped only after the write succeeds, so a
// failed or cancelled commit leaves both untouched.
func (s *Store) Commit(ctx context.Context, c *Commit) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &staging{
		base:    s.items,
		changed: make(map[string]*models.Item),
		removed: make(map[string]struct{}),
	}
	var sum Summary

	for _, in := range c.Retrieved {
		rec := &in.Record
		if err := rec.Validate(); err != nil {
			s.logger.Warn("skipping retrieved record", "error", err)
			continue
		}
		if rec.Deleted {
			if st.remove(rec.UUID) {
				sum.Removed++
			}
			continue
		}

		if local := st.peek(rec.UUID); local != nil && hasUnpushedEdits(local, c.Pushed) {
			// The local edit is pushed on the next round and wins there.
			s.logger.Debug("keeping local edit over retrieved item", "uuid", rec.UUID)
			sum.Kept++
			continue
		}

		item := st.findOrCreate(rec.UUID, rec.ContentType)
		models.ApplyMetadata(item, rec)
		if in.Legible {
			item.Content = models.CloneContent(in.Content)
			item.EncItemKey = derefString(rec.EncItemKey)
			item.AuthHash = derefString(rec.AuthHash)
		}
		sum.Merged++
	}

	for _, in := range c.Saved {
		rec := &in.Record
		if err := rec.Validate(); err != nil {
			s.logger.Warn("skipping saved record", "error", err)
			continue
		}
		if rec.Deleted {
			if st.remove(rec.UUID) {
				sum.Removed++
			}
			continue
		}
		if st.wasRemoved(rec.UUID) {
			continue
		}

		item := st.findOrCreate(rec.UUID, rec.ContentType)
		revision, pushed := c.Pushed[item.UUID]
		edited := pushed && item.Revision != revision

		if edited {
			// Only content and keys are protected by the merge mode; the local tombstone
			// and presentation of a newer revision are kept too.
			deleted, name, url := item.Deleted, item.PresentationName, item.URL
			models.ApplyMetadata(item, rec)
			item.Deleted, item.PresentationName, item.URL = deleted, name, url
		} else {
			models.ApplyMetadata(item, rec)
		}

		if key := c.PushedKeys[item.UUID]; key != "" && item.EncItemKey == "" {
			item.EncItemKey = key
		}
		if pushed && !edited && item.Dirty {
			item.Dirty = false
			sum.Cleared++
		}
		sum.Echoed++
	}

	cs := st.changeset(c.Token)
	if cs.Empty() {
		return sum, nil
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	if err := s.backend.Apply(ctx, cs); err != nil {
		return Summary{}, fmt.Errorf("persisting commit: %w", err)
	}

	touched := make([]string, 0, len(st.changed)+len(st.removed))
	for id, item := range st.changed {
		s.items[id] = item
		touched = append(touched, id)
	}
	for id := range st.removed {
		delete(s.items, id)
		touched = append(touched, id)
	}
	s.relinkLocked(touched)

	s.logger.Debug("committed",
		"merged", sum.Merged,
		"echoed", sum.Echoed,
		"removed", sum.Removed,
		"cleared", sum.Cleared,
		"kept", sum.Kept,
	)
	return sum, nil
}

// hasUnpushedEdits reports whether a dirty item carries changes this round did not push.
func hasUnpushedEdits(item *models.Item, pushed map[string]uint64) bool {
	if !item.Dirty {
		return false
	}
	revision, ok := pushed[item.UUID]
	return !ok || revision != item.Revision
}

// staging collects copies of items a commit changes without touching the live map.
type staging struct {
	base    map[string]*models.Item
	changed map[string]*models.Item
	removed map[string]struct{}
}

// peek returns the current staged or live version without copying it.
func (st *staging) peek(uuid string) *models.Item {
	if _, gone := st.removed[uuid]; gone {
		return nil
	}
	if item, ok := st.changed[uuid]; ok {
		return item
	}
	return st.base[uuid]
}

// findOrCreate returns a staged copy of the item, creating an empty one if unknown.
func (st *staging) findOrCreate(uuid, contentType string) *models.Item {
	if item, ok := st.changed[uuid]; ok {
		return item
	}
	var item *models.Item
	if live, ok := st.base[uuid]; ok {
		if _, gone := st.removed[uuid]; !gone {
			item = live.Clone()
		}
	}
	if item == nil {
		item = &models.Item{UUID: uuid, ContentType: contentType}
	}
	delete(st.removed, uuid)
	st.changed[uuid] = item
	return item
}

// remove stages a row deletion. Returns false when there was nothing to delete.
func (st *staging) remove(uuid string) bool {
	if st.peek(uuid) == nil {
		return false
	}
	delete(st.changed, uuid)
	if _, live := st.base[uuid]; live {
		st.removed[uuid] = struct{}{}
	}
	return true
}

func (st *staging) wasRemoved(uuid string) bool {
	_, gone := st.removed[uuid]
	return gone
}

func (st *staging) changeset(token *string) *store.Changeset {
	cs := &store.Changeset{SyncToken: token}
	for _, item := range st.changed {
		cs.Upserts = append(cs.Upserts, item)
	}
	sort.Slice(cs.Upserts, func(i, j int) bool { return cs.Upserts[i].UUID < cs.Upserts[j].UUID })
	for id := range st.removed {
		cs.Removes = append(cs.Removes, id)
	}
	sort.Strings(cs.Removes)
	return cs
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
