// ABOUTME: Store interface and data types for sealnote local persistence
// ABOUTME: Defines the item collaborator contract, atomic changesets and the account row

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/sealnote/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Changeset is a group of writes applied in one transaction.
// Either every write lands or none do.
type Changeset struct {
	Upserts   []*models.Item
	Removes   []string // item uuids
	SyncToken *string  // nil leaves the token unchanged
}

// Empty reports whether the changeset writes nothing.
func (c *Changeset) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Removes) == 0 && c.SyncToken == nil
}

// Account is the locally persisted session of the signed-in user.
// MasterKey is stored only on this device and is never transmitted.
type Account struct {
	Email      string
	ServerURL  string
	ParamsJSON string // keys.AuthParams as JSON
	Token      string
	MasterKey  string
	UpdatedAt  time.Time
}

// Store defines the local persistence contract used by the item store.
// Durability and indexing are its responsibility.
type Store interface {
	// Items
	FindByUUID(ctx context.Context, uuid string) (*models.Item, error)
	FindOrCreate(ctx context.Context, uuid, contentType string) (item *models.Item, created bool, err error)
	Save(ctx context.Context, item *models.Item) error
	Remove(ctx context.Context, uuid string) error
	ListDirty(ctx context.Context) ([]*models.Item, error)
	ListAll(ctx context.Context) ([]*models.Item, error)

	// Apply writes a changeset atomically.
	Apply(ctx context.Context, cs *Changeset) error

	// Sync cursor; "" when no sync has completed yet
	SyncToken(ctx context.Context) (string, error)

	// Account
	LoadAccount(ctx context.Context) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error

	// Reset removes every item, the sync token and the account in one transaction
	Reset(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
