// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists items, the sync token and the account with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/sealnote/internal/models"
)

const syncTokenKey = "sync_token"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS items (
			uuid              TEXT PRIMARY KEY,
			content_type      TEXT NOT NULL,
			enc_item_key      TEXT,
			auth_hash         TEXT,
			content_json      TEXT,
			presentation_name TEXT,
			url               TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,
			deleted           INTEGER NOT NULL DEFAULT 0,
			dirty             INTEGER NOT NULL DEFAULT 0,
			revision          INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_items_dirty ON items(dirty) WHERE dirty = 1;
		CREATE INDEX IF NOT EXISTS idx_items_content_type ON items(content_type);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS account (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			email       TEXT NOT NULL,
			server_url  TEXT NOT NULL,
			params_json TEXT NOT NULL,
			token       TEXT NOT NULL,
			master_key  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const itemColumns = `uuid, content_type, enc_item_key, auth_hash, content_json,
	presentation_name, url, created_at, updated_at, deleted, dirty, revision`

// upsertItem writes an item row, replacing any existing row with the same uuid.
func upsertItem(ctx context.Context, ex execer, item *models.Item) error {
	var contentJSON any
	if item.Content != nil {
		data, err := json.Marshal(item.Content)
		if err != nil {
			return fmt.Errorf("encoding content of %s: %w", item.UUID, err)
		}
		contentJSON = string(data)
	}

	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			content_type = excluded.content_type,
			enc_item_key = excluded.enc_item_key,
			auth_hash = excluded.auth_hash,
			content_json = excluded.content_json,
			presentation_name = excluded.presentation_name,
			url = excluded.url,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			revision = excluded.revision
	`

	_, err := ex.ExecContext(ctx, query,
		item.UUID,
		item.ContentType,
		nullString(item.EncItemKey),
		nullString(item.AuthHash),
		contentJSON,
		nullString(item.PresentationName),
		nullString(item.URL),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		item.UpdatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(item.Deleted),
		boolToInt(item.Dirty),
		int64(item.Revision),
	)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", item.UUID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var encItemKey, authHash, contentJSON, presentationName, url sql.NullString
	var createdAt, updatedAt string
	var deleted, dirty int
	var revision int64

	if err := row.Scan(
		&item.UUID,
		&item.ContentType,
		&encItemKey,
		&authHash,
		&contentJSON,
		&presentationName,
		&url,
		&createdAt,
		&updatedAt,
		&deleted,
		&dirty,
		&revision,
	); err != nil {
		return nil, err
	}

	item.EncItemKey = encItemKey.String
	item.AuthHash = authHash.String
	item.PresentationName = presentationName.String
	item.URL = url.String
	item.Deleted = deleted != 0
	item.Dirty = dirty != 0
	item.Revision = uint64(revision)

	if contentJSON.Valid {
		if err := json.Unmarshal([]byte(contentJSON.String), &item.Content); err != nil {
			slog.Warn("failed to decode stored content", "uuid", item.UUID, "error", err)
			item.Content = nil
		}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err != nil {
		slog.Warn("failed to parse item created_at", "uuid", item.UUID, "error", err)
	} else {
		item.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		slog.Warn("failed to parse item updated_at", "uuid", item.UUID, "error", err)
	} else {
		item.UpdatedAt = parsed
	}

	return &item, nil
}

// FindByUUID retrieves an item by uuid.
// Returns ErrNotFound if the item doesn't exist.
func (s *SQLiteStore) FindByUUID(ctx context.Context, uuid string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE uuid = ?`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, uuid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}
	return item, nil
}

// FindOrCreate returns the item with uuid, inserting an empty row of contentType if it
// doesn't exist yet.
func (s *SQLiteStore) FindOrCreate(ctx context.Context, uuid, contentType string) (*models.Item, bool, error) {
	item, err := s.FindByUUID(ctx, uuid)
	if err == nil {
		return item, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	item = models.NewItem(contentType)
	item.UUID = uuid
	item.Content = nil
	if err := upsertItem(ctx, s.db, item); err != nil {
		return nil, false, err
	}

	s.logger.Debug("created item row", "uuid", uuid, "content_type", contentType)
	return item, true, nil
}

// Save inserts or replaces an item.
func (s *SQLiteStore) Save(ctx context.Context, item *models.Item) error {
	return upsertItem(ctx, s.db, item)
}

// Remove deletes an item row. Removing a missing item is a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, uuid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE uuid = ?`, uuid); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// ListDirty returns items with unsynced local changes.
func (s *SQLiteStore) ListDirty(ctx context.Context) ([]*models.Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items WHERE dirty = 1 ORDER BY updated_at`)
}

// ListAll returns every item.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*models.Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at`)
}

func (s *SQLiteStore) listItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item rows: %w", err)
	}
	return items, nil
}

// Apply writes the changeset in a single transaction.
func (s *SQLiteStore) Apply(ctx context.Context, cs *Changeset) (err error) {
	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range cs.Upserts {
		if err = upsertItem(ctx, tx, item); err != nil {
			return err
		}
	}
	for _, uuid := range cs.Removes {
		if _, err = tx.ExecContext(ctx, `DELETE FROM items WHERE uuid = ?`, uuid); err != nil {
			return fmt.Errorf("deleting item %s: %w", uuid, err)
		}
	}
	if cs.SyncToken != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, syncTokenKey, *cs.SyncToken)
		if err != nil {
			return fmt.Errorf("writing sync token: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing changeset: %w", err)
	}

	s.logger.Debug("applied changeset",
		"upserts", len(cs.Upserts),
		"removes", len(cs.Removes),
		"token_updated", cs.SyncToken != nil,
	)
	return nil
}

// SyncToken returns the persisted sync token, or "" before the first sync.
func (s *SQLiteStore) SyncToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, syncTokenKey).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying sync token: %w", err)
	}
	return token, nil
}

// LoadAccount returns the signed-in account.
// Returns ErrNotFound if nobody is signed in.
func (s *SQLiteStore) LoadAccount(ctx context.Context) (*Account, error) {
	query := `
		SELECT email, server_url, params_json, token, master_key, updated_at
		FROM account WHERE id = 1
	`

	var a Account
	var updatedAt string
	err := s.db.QueryRowContext(ctx, query).Scan(
		&a.Email,
		&a.ServerURL,
		&a.ParamsJSON,
		&a.Token,
		&a.MasterKey,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if parsed, err := time.Parse(time.RFC3339, updatedAt); err != nil {
		slog.Warn("failed to parse account updated_at", "error", err)
	} else {
		a.UpdatedAt = parsed
	}
	return &a, nil
}

// SaveAccount stores the signed-in account, replacing any previous one.
func (s *SQLiteStore) SaveAccount(ctx context.Context, a *Account) error {
	a.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO account (id, email, server_url, params_json, token, master_key, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			server_url = excluded.server_url,
			params_json = excluded.params_json,
			token = excluded.token,
			master_key = excluded.master_key,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		a.Email,
		a.ServerURL,
		a.ParamsJSON,
		a.Token,
		a.MasterKey,
		a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	s.logger.Debug("saved account", "email", a.Email)
	return nil
}

// Reset deletes all items, the meta table and the account row in one transaction.
func (s *SQLiteStore) Reset(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"items", "meta", "account"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}
	return nil
}

// nullString converts empty strings to NULL for database storage
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
