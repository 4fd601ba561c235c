// Package nameindex maintains per-locale name -> card id maps with lazy
// population and fuzzy scoring.
package nameindex

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/storage"
)

// ConfidenceThreshold is the minimum score a match needs before it may be
// used to rewrite a search's canonical term. Weaker matches are still
// reported so callers can show suggestions.
const ConfidenceThreshold = 0.5

// Fetcher loads one locale's full name index from the remote endpoint.
// Implementations are expected to run a manifest check as part of the fetch.
type Fetcher interface {
	FetchNames(ctx context.Context, locale string) (map[string]int, error)
}

// Match is one scored candidate from Search.
type Match struct {
	CardID int
	Name   string
	Score  float64
}

// Index caches per-locale name maps in memory, backed by the persisted
// name_index table, re-fetched lazily after eviction.
type Index struct {
	mu      sync.Mutex
	fetcher Fetcher
	store   *storage.DB
	locales map[string]map[string]int
}

func New(fetcher Fetcher, store *storage.DB) *Index {
	return &Index{
		fetcher: fetcher,
		store:   store,
		locales: map[string]map[string]int{},
	}
}

// EvictLocale drops one locale's in-memory map so the next use rebuilds it.
// Persisted rows are deleted separately by the manifest invalidator.
func (i *Index) EvictLocale(locale string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.locales, locale)
}

func (i *Index) ensureLocale(ctx context.Context, locale string) (map[string]int, error) {
	i.mu.Lock()
	if names, ok := i.locales[locale]; ok {
		i.mu.Unlock()
		return names, nil
	}
	i.mu.Unlock()

	// Persisted copy first, remote fetch only on a true miss.
	if i.store != nil {
		names, err := i.store.LoadNameIndex(ctx, locale)
		if err == nil {
			i.mu.Lock()
			i.locales[locale] = names
			i.mu.Unlock()
			return names, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	if i.fetcher == nil {
		return nil, storage.ErrNotFound
	}
	names, err := i.fetcher.FetchNames(ctx, locale)
	if err != nil {
		return nil, err
	}
	if i.store != nil {
		if err := i.store.ReplaceNameIndex(ctx, locale, names); err != nil {
			utils.Log.Warnf("could not persist name index for locale %s: %v", locale, err)
		}
	}
	i.mu.Lock()
	i.locales[locale] = names
	i.mu.Unlock()
	return names, nil
}

// Search scores token against every requested locale's index, keeps the
// maximum score seen per card id, orders by score descending with ascending
// card id as tie-break, and truncates to max results.
func (i *Index) Search(ctx context.Context, token string, locales []string, max int) ([]Match, error) {
	token = utils.NormalizeToken(token)
	if token == "" {
		return nil, nil
	}

	best := map[int]Match{}
	var lastErr error
	loaded := 0
	for _, locale := range locales {
		names, err := i.ensureLocale(ctx, locale)
		if err != nil {
			utils.Log.Warnf("name index unavailable for locale %s: %v", locale, err)
			lastErr = err
			continue
		}
		loaded++
		for name, cardID := range names {
			s := Score(token, name)
			if s <= 0 {
				continue
			}
			if cur, ok := best[cardID]; !ok || s > cur.Score {
				best[cardID] = Match{CardID: cardID, Name: name, Score: s}
			}
		}
	}
	if loaded == 0 {
		return nil, lastErr
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].CardID < out[b].CardID
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Best returns the single top match when it clears the confidence
// threshold.
func (i *Index) Best(ctx context.Context, token string, locales []string) (Match, bool) {
	matches, err := i.Search(ctx, token, locales, 1)
	if err != nil || len(matches) == 0 {
		return Match{}, false
	}
	if matches[0].Score < ConfidenceThreshold {
		return Match{}, false
	}
	return matches[0], true
}

// Score rates how well a token matches an indexed name, in [0,1]. Exact
// match beats containment beats edit distance.
func Score(token, name string) float64 {
	name = strings.ToLower(name)
	if token == name {
		return 1.0
	}
	if strings.Contains(name, token) {
		// Longer tokens covering more of the name score higher, capped
		// below exact-match.
		return 0.6 + 0.35*float64(len(token))/float64(len(name))
	}
	sim := levenshtein.Similarity(token, name, levenshtein.NewParams())
	if sim < 0.3 {
		return 0
	}
	return sim
}
