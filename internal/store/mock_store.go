// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject Apply failures

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/2389/sealnote/internal/models"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	items     map[string]*models.Item // keyed by uuid
	syncToken string
	account   *Account

	// ApplyErr, when set, makes Apply fail without writing anything.
	ApplyErr error
	// ApplyCalls counts Apply invocations, successful or not.
	ApplyCalls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		items: make(map[string]*models.Item),
	}
}

// FindByUUID returns a copy of the stored item.
func (m *MockStore) FindByUUID(ctx context.Context, uuid string) (*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return item.Clone(), nil
}

// FindOrCreate returns the stored item or inserts an empty one.
func (m *MockStore) FindOrCreate(ctx context.Context, uuid, contentType string) (*models.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[uuid]; ok {
		return item.Clone(), false, nil
	}
	item := models.NewItem(contentType)
	item.UUID = uuid
	item.Content = nil
	m.items[uuid] = item.Clone()
	return item, true, nil
}

// Save stores a copy of the item.
func (m *MockStore) Save(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[item.UUID] = item.Clone()
	return nil
}

// Remove deletes the item if present.
func (m *MockStore) Remove(ctx context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, uuid)
	return nil
}

// ListDirty returns copies of dirty items.
func (m *MockStore) ListDirty(ctx context.Context) ([]*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Item
	for _, item := range m.items {
		if item.Dirty {
			out = append(out, item.Clone())
		}
	}
	sortItems(out)
	return out, nil
}

// ListAll returns copies of every item.
func (m *MockStore) ListAll(ctx context.Context) ([]*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item.Clone())
	}
	sortItems(out)
	return out, nil
}

// Apply writes the changeset, or nothing when ApplyErr is set.
func (m *MockStore) Apply(ctx context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ApplyCalls++
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, item := range cs.Upserts {
		m.items[item.UUID] = item.Clone()
	}
	for _, uuid := range cs.Removes {
		delete(m.items, uuid)
	}
	if cs.SyncToken != nil {
		m.syncToken = *cs.SyncToken
	}
	return nil
}

// SyncToken returns the stored token.
func (m *MockStore) SyncToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncToken, nil
}

// LoadAccount returns the stored account.
func (m *MockStore) LoadAccount(ctx context.Context) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.account == nil {
		return nil, ErrNotFound
	}
	a := *m.account
	return &a, nil
}

// SaveAccount stores a copy of the account.
func (m *MockStore) SaveAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *a
	m.account = &copied
	return nil
}

// Reset drops every item, the token and the account.
func (m *MockStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m.items = make(map[string]*models.Item)
	m.syncToken = ""
	m.account = nil
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func sortItems(items []*models.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].UUID < items[j].UUID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
