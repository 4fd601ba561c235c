// Package sources defines the uniform contract every backing source
// implements, plus the fan-out helpers the remote connectors share.
package sources

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/search"
)

// Connector is one backing source in the resolution pipeline. Resolve
// receives the searches that still need one of the connector's facets and
// returns the fully-resolved and still-unresolved subsets. Per-item
// failures must be logged and drop only that item.
type Connector interface {
	Name() string
	// Facets this source can satisfy. The orchestrator filters searches
	// by intersection before calling Resolve.
	Facets() []card.Facet
	// Official reports whether this source may be used in official-only
	// mode.
	Official() bool
	Resolve(ctx context.Context, q *search.Query, pending []*search.Search) (resolved, unresolved []*search.Search, err error)
}

// Partition splits searches into fully-resolved and still-unresolved,
// preserving input order.
func Partition(pending []*search.Search) (resolved, unresolved []*search.Search) {
	for _, s := range pending {
		if s.FullyResolved() {
			resolved = append(resolved, s)
		} else {
			unresolved = append(unresolved, s)
		}
	}
	return resolved, unresolved
}

// FanOut runs fn once per pending search, all concurrently up to limit, and
// waits for every call to settle. Results correlate to their originating
// search by index, never by arrival order. A failing item is logged under
// the connector's name and simply left for later steps; siblings are never
// interrupted.
func FanOut(ctx context.Context, connector string, pending []*search.Search, limit int, fn func(ctx context.Context, s *search.Search) error) {
	if limit <= 0 {
		limit = 5
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	errs := make([]error, len(pending))
	for idx, s := range pending {
		idx, s := idx, s
		g.Go(func() error {
			errs[idx] = fn(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	for idx, err := range errs {
		if err != nil {
			utils.Log.Warnf("%s: lookup %q failed: %v", connector, pending[idx].Term, err)
		}
	}
}
