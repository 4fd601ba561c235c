// Package manifest implements remote cache invalidation. Remote catalog
// responses carry a revision counter; when it moves past the locally
// persisted one, the changed-entity manifest is fetched once and the
// affected cache rows are evicted. Nothing is re-fetched eagerly.
package manifest

import (
	"context"
	"sync"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/storage"
)

// Changes is the decoded changed-entity manifest.
type Changes struct {
	CardIDs   []int
	RulingIDs []int
	Locales   []string
}

// Fetcher retrieves the changed-entity manifest covering everything after
// the given revision.
type Fetcher interface {
	FetchManifest(ctx context.Context, sinceRevision int64) (Changes, error)
}

// LocaleEvictor is the narrow view of the name index the invalidator needs.
type LocaleEvictor interface {
	EvictLocale(locale string)
}

// Invalidator compares observed remote revisions against the persisted one
// and applies selective eviction.
type Invalidator struct {
	store   *storage.DB
	fetcher Fetcher
	index   LocaleEvictor

	// Serializes Observe so overlapping requests don't fetch the manifest
	// twice. Eviction itself is idempotent either way.
	mu sync.Mutex
}

func New(store *storage.DB, fetcher Fetcher, index LocaleEvictor) *Invalidator {
	return &Invalidator{store: store, fetcher: fetcher, index: index}
}

// Observe handles one revision marker seen on a remote response. A marker
// at or below the persisted revision is a no-op. A newer one triggers a
// manifest fetch and selective eviction, then persists the new revision.
// Only remotely-sourced rows are evicted; the reference database and
// banlist data are never touched.
func (inv *Invalidator) Observe(ctx context.Context, current int64) error {
	if current <= 0 {
		return nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	lastSeen, err := inv.store.ManifestRevision(ctx)
	if err != nil {
		return err
	}
	if current <= lastSeen {
		return nil
	}

	utils.Log.Infof("remote cache revision moved %d -> %d, applying invalidation", lastSeen, current)

	changes, err := inv.fetcher.FetchManifest(ctx, lastSeen)
	if err != nil {
		return err
	}

	for _, id := range changes.CardIDs {
		if err := inv.store.DeleteCard(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range changes.RulingIDs {
		if err := inv.store.DeleteRuling(ctx, id); err != nil {
			return err
		}
	}
	for _, locale := range changes.Locales {
		if err := inv.store.DeleteNameIndex(ctx, locale); err != nil {
			return err
		}
		if inv.index != nil {
			inv.index.EvictLocale(locale)
		}
	}

	return inv.store.SetManifestRevision(ctx, current)
}
