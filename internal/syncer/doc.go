// Package syncer runs push/pull rounds between the local item store and the sync server.
//
// # Round
//
// A round snapshots the dirty items, seals them (encrypting private items, encoding
// public ones), posts them with the current sync token and opens the retrieved records.
// Everything the server returned is committed to the item store in one transaction
// together with the new token. If any step fails, including cancellation of the context,
// nothing is committed and the round can simply be retried.
//
// # Concurrency
//
// A Coordinator runs at most one round at a time; a concurrent Sync call returns
// ErrSyncInProgress. Sealing and opening run on a bounded errgroup. Edits made while a
// round is in flight stay dirty and go out with the next round.
//
// # Auto-sync
//
//	coord := syncer.New(itemStore, backend, client, manager, syncer.Options{Parallelism: 4})
//	go coord.Run(ctx, 5*time.Minute)
//	coord.Trigger() // request a round now
package syncer
