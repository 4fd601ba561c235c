// Package resolver runs the ordered source pipeline over a query's
// unresolved searches, consulting the term cache between steps and never
// letting one failing source block the rest.
package resolver

import (
	"context"
	"errors"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/quota"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/termcache"
)

// ErrQuotaExceeded rejects a query before any work when the client is over
// its sliding-window quota.
var ErrQuotaExceeded = errors.New("client request quota exceeded")

// Engine owns the ordered connector list and the shared caches. One engine
// serves all queries; connectors and caches must tolerate concurrent use.
type Engine struct {
	steps []sources.Connector
	cache *termcache.Cache
	quota *quota.Limiter
}

type Options struct {
	Steps []sources.Connector
	Cache *termcache.Cache
	Quota *quota.Limiter
}

func New(opts Options) *Engine {
	cache := opts.Cache
	if cache == nil {
		cache = termcache.New(termcache.DefaultTTL)
	}
	return &Engine{steps: opts.Steps, cache: cache, quota: opts.Quota}
}

// Resolve runs the pipeline to completion for one query and returns the
// resolution report. Partial results are still reported; only a quota
// rejection returns an error.
func (e *Engine) Resolve(ctx context.Context, clientID string, q *search.Query) (*Report, error) {
	if e.quota != nil && !e.quota.Allow(clientID) {
		return nil, ErrQuotaExceeded
	}

	e.consultTermCache(q)

	for _, step := range e.steps {
		if q.OfficialOnly && !step.Official() {
			utils.Log.Debugf("query %s: skipping %s in official-only mode", q.ID, step.Name())
			continue
		}

		pending := filterByFacets(q.Unresolved(), step)
		if len(pending) == 0 {
			continue
		}

		utils.Log.Debugf("query %s: step %s handling %d lookups", q.ID, step.Name(), len(pending))
		if _, _, err := step.Resolve(ctx, q, pending); err != nil {
			// One failing source must not block the others.
			utils.Log.Errorf("query %s: source %s failed: %v", q.ID, step.Name(), err)
		}

		// A connector may have rewritten terms; duplicates must merge and
		// rewritten terms may already sit in the term cache under another
		// original token.
		q.MergeDuplicates()
		e.consultTermCache(q)
		e.populateTermCache(q)

		if len(q.Unresolved()) == 0 {
			break
		}
	}

	e.populateTermCache(q)
	return buildReport(q), nil
}

// consultTermCache adopts cached entities for any search that has no data
// yet, and sanity-checks searches whose data arrived elsewhere. Ruling
// lookups bypass the cache entirely: ruling ids and card ids are independent
// numeric namespaces, so a token cached as a card must never shadow the
// ruling with the same id.
func (e *Engine) consultTermCache(q *search.Query) {
	for _, s := range q.Searches {
		if s.IsRulingLookup() || q.RulingMode {
			continue
		}
		if cached, ok := e.cache.Get(s.Term); ok {
			if s.Data == nil {
				s.Data = cached
			} else {
				s.Data = e.cache.Consolidate(s.Term, s.Data)
			}
		}
	}
}

// populateTermCache stores every fully-resolved non-ruling search under its
// canonical term and all of its original tokens.
func (e *Engine) populateTermCache(q *search.Query) {
	for _, s := range q.Searches {
		if s.Data == nil || s.IsRulingLookup() || !s.FullyResolved() {
			continue
		}
		e.cache.Put(s.Term, s.Data)
		for o := range s.Originals {
			e.cache.Put(search.CanonicalTerm(o), s.Data)
		}
	}
}

func filterByFacets(pending []*search.Search, step sources.Connector) []*search.Search {
	facets := step.Facets()
	var out []*search.Search
	for _, s := range pending {
		if s.Needs(facets) {
			out = append(out, s)
		}
	}
	return out
}
