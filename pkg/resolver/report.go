package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sw33tLie/cardex/pkg/search"
)

// TokenStatus is the user-visible outcome for one original token. Internal
// causes (timeouts, auth errors) are logged, never surfaced here.
type TokenStatus string

const (
	StatusResolved TokenStatus = "resolved"
	StatusPartial  TokenStatus = "partial"
	StatusFailed   TokenStatus = "not found"
)

// TokenResult pairs one original token with its outcome.
type TokenResult struct {
	Token    string
	Status   TokenStatus
	Kind     string // card, ruling, set; empty when failed
	Key      string
	Missing  int // unresolved (locale, facet) pairs, for partial results
	Resolved *search.Search
}

// Report summarizes one query's resolution.
type Report struct {
	QueryID string
	Results []TokenResult
}

func buildReport(q *search.Query) *Report {
	r := &Report{QueryID: q.ID}
	for _, s := range q.Searches {
		missing := len(s.Unresolved())
		for token := range s.Originals {
			res := TokenResult{Token: token, Resolved: s, Missing: missing}
			switch {
			case s.Data == nil:
				res.Status = StatusFailed
				res.Resolved = nil
			case missing == 0:
				res.Status = StatusResolved
			default:
				res.Status = StatusPartial
			}
			if s.Data != nil {
				res.Kind = s.Data.Kind()
				res.Key = s.Data.Key()
			}
			r.Results = append(r.Results, res)
		}
	}
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Token < r.Results[j].Token })
	return r
}

// String renders the plain-text resolution summary handed back to callers.
func (r *Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		switch res.Status {
		case StatusResolved:
			fmt.Fprintf(&b, "%s: resolved (%s %s)\n", res.Token, res.Kind, res.Key)
		case StatusPartial:
			fmt.Fprintf(&b, "%s: partially resolved (%s %s, %d facets missing)\n", res.Token, res.Kind, res.Key, res.Missing)
		default:
			fmt.Fprintf(&b, "%s: no data found\n", res.Token)
		}
	}
	return b.String()
}
