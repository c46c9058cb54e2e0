// Package store provides local persistence for the sync client.
//
// # Architecture
//
// The Store interface is the collaborator contract the item store relies on:
//
//   - FindByUUID / FindOrCreate / Save / Remove: single item access
//   - ListDirty / ListAll: bulk reads used at load time and for status
//   - Apply: one atomic Changeset per sync commit
//   - SyncToken: the server cursor, written only through Apply
//   - LoadAccount / SaveAccount: the signed-in session
//   - Reset: wipes items, cursor and account together on logout or account switch
//
// SQLiteStore implements the contract on modernc.org/sqlite. MockStore is an
// in-memory implementation with the same semantics for tests.
//
// # Data Models
//
// Items are stored with their decrypted content as JSON text alongside the wire key
// material (enc_item_key, auth_hash) and the client-local dirty flag and revision.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Database file locations:
//
//   - Default: ~/.local/share/sealnote/sealnote.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
//   - ErrNotFound: Requested item or account does not exist
//
// All methods accept context.Context for cancellation support.
package store
