// ABOUTME: Sync coordinator running push/pull rounds against the sync server
// ABOUTME: Owns the sync token and is the only writer of confirmed state into the item store

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/sealnote/internal/api"
	"github.com/2389/sealnote/internal/crypto"
	"github.com/2389/sealnote/internal/items"
	"github.com/2389/sealnote/internal/models"
	"github.com/2389/sealnote/internal/store"
)

// ErrSyncInProgress is returned when a sync is requested while another is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Coordinator states.
const (
	stateIdle int32 = iota
	stateSyncing
)

// Client sends one sync request.
type Client interface {
	Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error)
}

// Sealer seals outgoing items and opens incoming records.
type Sealer interface {
	SealItem(item *models.Item, public bool) (models.ItemRecord, error)
	OpenRecord(rec *models.ItemRecord) (map[string]any, error)
}

// Options configures a Coordinator.
type Options struct {
	// Parallelism bounds concurrent sealing and opening. Zero uses GOMAXPROCS.
	Parallelism int
	Logger      *slog.Logger
}

// ItemFailure reports a retrieved item whose content could not be used.
type ItemFailure struct {
	UUID string
	Err  error
}

// Result summarizes a completed sync round.
type Result struct {
	Token     string
	Pushed    int
	Retrieved int
	Saved     int
	Removed   int
	Cleared   int
	Kept      int
	Rejected  []ItemFailure
}

// Coordinator runs sync rounds for one item store. At most one round is in flight.
type Coordinator struct {
	items   *items.Store
	backend store.Store
	client  Client
	sealer  Sealer

	parallelism int
	logger      *slog.Logger

	state   atomic.Int32
	trigger chan struct{}
}

// New creates a coordinator. backend is the store the item store persists to; the sync
// token is read from it.
func New(itemStore *items.Store, backend store.Store, client Client, sealer Sealer, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Coordinator{
		items:       itemStore,
		backend:     backend,
		client:      client,
		sealer:      sealer,
		parallelism: parallelism,
		logger:      logger.With("component", "sync"),
		trigger:     make(chan struct{}, 1),
	}
}

// Syncing reports whether a round is in flight.
func (c *Coordinator) Syncing() bool {
	return c.state.Load() == stateSyncing
}

// Sync runs one push/pull round. On any error nothing has changed: the token, the dirty
// set and every item are exactly as before, and the round can be retried.
func (c *Coordinator) Sync(ctx context.Context) (*Result, error) {
	if !c.state.CompareAndSwap(stateIdle, stateSyncing) {
		return nil, ErrSyncInProgress
	}
	defer c.state.Store(stateIdle)

	start := time.Now()

	token, err := c.backend.SyncToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync token: %w", err)
	}

	snapshot := c.items.DirtySnapshot()
	records, pushedKeys, err := c.seal(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Sync(ctx, api.SyncRequest{SyncToken: token, Items: records})
	if err != nil {
		return nil, fmt.Errorf("syncing items: %w", err)
	}

	retrieved, rejected := c.open(ctx, resp.RetrievedItems)

	saved := make([]items.Remote, 0, len(resp.SavedItems))
	for _, rec := range resp.SavedItems {
		saved = append(saved, items.Remote{Record: rec})
	}

	pushed := make(map[string]uint64, len(snapshot))
	for _, item := range snapshot {
		pushed[item.UUID] = item.Revision
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	newToken := resp.SyncToken
	sum, err := c.items.Commit(ctx, &items.Commit{
		Token:      &newToken,
		Retrieved:  retrieved,
		Saved:      saved,
		Pushed:     pushed,
		PushedKeys: pushedKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("committing sync: %w", err)
	}

	result := &Result{
		Token:     newToken,
		Pushed:    len(records),
		Retrieved: sum.Merged,
		Saved:     sum.Echoed,
		Removed:   sum.Removed,
		Cleared:   sum.Cleared,
		Kept:      sum.Kept,
		Rejected:  rejected,
	}

	c.logger.Info("sync complete",
		"pushed", result.Pushed,
		"retrieved", result.Retrieved,
		"saved", result.Saved,
		"removed", result.Removed,
		"rejected", len(result.Rejected),
		"duration", time.Since(start),
	)
	return result, nil
}

// seal builds wire records for the snapshot. Each snapshot item is a private copy, so
// keys generated here only reach the store through the commit.
func (c *Coordinator) seal(ctx context.Context, snapshot []*models.Item) ([]models.ItemRecord, map[string]string, error) {
	records := make([]models.ItemRecord, len(snapshot))
	public := make([]bool, len(snapshot))
	for i, item := range snapshot {
		public[i] = c.items.IsPublic(item.UUID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, item := range snapshot {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := c.sealer.SealItem(item, public[i])
			if errors.Is(err, crypto.ErrInvalidKey) {
				return fmt.Errorf("sealing %s: item key does not open under this account's master key: %w", item.UUID, err)
			}
			if err != nil {
				return fmt.Errorf("sealing %s: %w", item.UUID, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	pushedKeys := make(map[string]string)
	for i, item := range snapshot {
		if !public[i] && !item.Deleted && item.EncItemKey != "" {
			pushedKeys[item.UUID] = item.EncItemKey
		}
	}
	return records, pushedKeys, nil
}

// open authenticates and decrypts retrieved records. Records that fail are reported and
// merged metadata-only; they never abort the round.
func (c *Coordinator) open(ctx context.Context, records []models.ItemRecord) ([]items.Remote, []ItemFailure) {
	remotes := make([]items.Remote, len(records))
	failures := make([]error, len(records))
	codecs := c.items.Codecs()

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i := range records {
		g.Go(func() error {
			rec := records[i]
			remotes[i] = items.Remote{Record: rec}
			if err := rec.Validate(); err != nil {
				failures[i] = err
				return nil
			}
			if rec.Deleted || ctx.Err() != nil {
				return nil
			}

			content, err := c.sealer.OpenRecord(&rec)
			if err != nil {
				failures[i] = err
				return nil
			}
			if err := codecs.Lookup(rec.ContentType).Validate(content); err != nil {
				failures[i] = fmt.Errorf("%w: %v", crypto.ErrMalformedContent, err)
				return nil
			}
			remotes[i].Content = content
			remotes[i].Legible = true
			return nil
		})
	}
	_ = g.Wait()

	var rejected []ItemFailure
	for i, err := range failures {
		if err == nil {
			continue
		}
		c.logger.Warn("rejected retrieved item", "uuid", records[i].UUID, "error", err)
		rejected = append(rejected, ItemFailure{UUID: records[i].UUID, Err: err})
	}
	return remotes, rejected
}

// Trigger requests a round from Run. Requests made while one is pending coalesce.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run syncs immediately, then every interval and whenever Trigger is called, until ctx
// is cancelled. Round errors are logged and the loop continues.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync loop stopped")
			return

		case <-ticker.C:
			c.runOnce(ctx)

		case <-c.trigger:
			c.runOnce(ctx)
		}
	}
}

func (c *Coordinator) runOnce(ctx context.Context) {
	_, err := c.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrSyncInProgress):
		c.logger.Debug("sync skipped, round already in flight")
	case errors.Is(err, api.ErrAuthFailure):
		c.logger.Error("sync rejected, sign in again", "error", err)
	default:
		c.logger.Warn("sync failed, will retry", "error", err)
	}
}
