package search

import (
	"sort"

	"github.com/google/uuid"
	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
)

// ambiguousNames are tokens that look numeric but are real card names and
// must not be coerced to a database id. "7" is the canonical offender.
var ambiguousNames = map[string]bool{
	"7": true,
}

// CanonicalTerm normalizes a raw token into the initial canonical lookup key:
// lowercased, trimmed, inner whitespace collapsed.
func CanonicalTerm(token string) string {
	return utils.NormalizeToken(token)
}

// IsIDTerm reports whether a canonical term should be looked up as a numeric
// database id rather than a name.
func IsIDTerm(term string) bool {
	if ambiguousNames[term] {
		return false
	}
	return utils.IsNumeric(term)
}

// Requirement is one (locale, facet) pair a Search still wants satisfied.
type Requirement struct {
	Locale string
	Facet  card.Facet
}

// FacetSet is a set of facets requested for one locale.
type FacetSet map[card.Facet]struct{}

// Search tracks the resolution state of one lookup unit. Several raw tokens
// may map to the same Search after merging.
type Search struct {
	Originals    map[string]struct{}
	Term         string
	Requirements map[string]FacetSet
	Data         card.Entity
}

func New(token string) *Search {
	return &Search{
		Originals:    map[string]struct{}{token: {}},
		Term:         CanonicalTerm(token),
		Requirements: map[string]FacetSet{},
	}
}

// AddRequirement unions one (locale, facet) pair into the requirements.
// Idempotent.
func (s *Search) AddRequirement(locale string, f card.Facet) {
	set, ok := s.Requirements[locale]
	if !ok {
		set = FacetSet{}
		s.Requirements[locale] = set
	}
	set[f] = struct{}{}
}

// MergeWith folds other into s: originals and requirements are unioned, and
// other's data is adopted only if s has none yet. Later sources never
// overwrite existing data.
func (s *Search) MergeWith(other *Search) {
	if other == nil || other == s {
		return
	}
	for o := range other.Originals {
		s.Originals[o] = struct{}{}
	}
	for locale, set := range other.Requirements {
		for f := range set {
			s.AddRequirement(locale, f)
		}
	}
	if s.Data == nil {
		s.Data = other.Data
	}
}

// Unresolved returns exactly the (locale, facet) pairs not yet satisfied by
// the attached data, in deterministic order.
func (s *Search) Unresolved() []Requirement {
	var out []Requirement
	for locale, set := range s.Requirements {
		for f := range set {
			if s.Data == nil || !s.Data.HasFacet(locale, f) {
				out = append(out, Requirement{Locale: locale, Facet: f})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Locale != out[j].Locale {
			return out[i].Locale < out[j].Locale
		}
		return out[i].Facet < out[j].Facet
	})
	return out
}

// FullyResolved reports whether every requested (locale, facet) pair is
// satisfied by the attached data.
func (s *Search) FullyResolved() bool {
	return len(s.Unresolved()) == 0
}

// Needs reports whether any unresolved requirement asks for one of the given
// facets.
func (s *Search) Needs(facets []card.Facet) bool {
	for _, r := range s.Unresolved() {
		for _, f := range facets {
			if r.Facet == f {
				return true
			}
		}
	}
	return false
}

// IsRulingLookup reports whether the search only wants ruling/QA data.
func (s *Search) IsRulingLookup() bool {
	sawAny := false
	for _, set := range s.Requirements {
		for f := range set {
			sawAny = true
			if f != card.FacetRuling && f != card.FacetQA {
				return false
			}
		}
	}
	return sawAny
}

// Query is the per-user-request aggregate of Searches plus request context.
type Query struct {
	ID           string
	Searches     []*Search
	Locale       string
	OfficialOnly bool
	RulingMode   bool
}

func NewQuery(locale string) *Query {
	return &Query{ID: uuid.NewString(), Locale: locale}
}

// Add registers a raw token with one requested facet. Tokens already present
// in the query gain the requirement on their existing Search instead of
// creating a duplicate.
func (q *Query) Add(token, locale string, f card.Facet) *Search {
	for _, s := range q.Searches {
		if _, ok := s.Originals[token]; ok {
			s.AddRequirement(locale, f)
			return s
		}
	}
	s := New(token)
	s.AddRequirement(locale, f)
	q.Searches = append(q.Searches, s)
	return s
}

// Unresolved returns the searches that still have unsatisfied requirements,
// preserving query order.
func (q *Query) Unresolved() []*Search {
	var out []*Search
	for _, s := range q.Searches {
		if !s.FullyResolved() {
			out = append(out, s)
		}
	}
	return out
}

// MergeDuplicates collapses searches whose canonical terms have converged.
// The earlier search survives; the later one's originals and requirements
// are folded in. Mandatory after any step that rewrites terms.
func (q *Query) MergeDuplicates() {
	byTerm := map[string]*Search{}
	var kept []*Search
	for _, s := range q.Searches {
		if first, ok := byTerm[s.Term]; ok {
			first.MergeWith(s)
			continue
		}
		byTerm[s.Term] = s
		kept = append(kept, s)
	}
	q.Searches = kept
}
