package search

import (
	"testing"

	"github.com/sw33tLie/cardex/pkg/card"
)

func TestCanonicalTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Blue-Eyes White Dragon", "blue-eyes white dragon"},
		{"  Dark   Magician ", "dark magician"},
		{"46986414", "46986414"},
	}
	for _, tt := range tests {
		if got := CanonicalTerm(tt.in); got != tt.want {
			t.Fatalf("CanonicalTerm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsIDTermAmbiguousName(t *testing.T) {
	if !IsIDTerm("46986414") {
		t.Fatal("expected pure digit token to be an id term")
	}
	// "7" is a real card name and must bypass integer coercion.
	if IsIDTerm("7") {
		t.Fatal(`expected "7" to be treated as a name, not an id`)
	}
	if IsIDTerm("dark magician") {
		t.Fatal("expected name to not be an id term")
	}
}

func TestAddRequirementIdempotent(t *testing.T) {
	s := New("dark magician")
	s.AddRequirement("en", card.FacetInfo)
	s.AddRequirement("en", card.FacetInfo)
	s.AddRequirement("en", card.FacetArt)

	if len(s.Requirements["en"]) != 2 {
		t.Fatalf("expected 2 facets for en, got %d", len(s.Requirements["en"]))
	}
}

func TestMergeWithKeepsExistingData(t *testing.T) {
	a := New("dark magician")
	a.AddRequirement("en", card.FacetInfo)
	first := card.NewCard(46986414)
	a.Data = first

	b := New("dm")
	b.AddRequirement("ja", card.FacetArt)
	b.Data = card.NewCard(99999999)

	a.MergeWith(b)

	if a.Data != first {
		t.Fatal("merge overwrote existing data; first writer must win")
	}
	if _, ok := a.Originals["dm"]; !ok {
		t.Fatal("merge lost an original token")
	}
	if _, ok := a.Requirements["ja"][card.FacetArt]; !ok {
		t.Fatal("merge lost a requirement")
	}
}

func TestMergeWithAdoptsDataWhenMissing(t *testing.T) {
	a := New("dark magician")
	b := New("dm")
	b.Data = card.NewCard(46986414)

	a.MergeWith(b)
	if a.Data == nil || a.Data.Key() != "46986414" {
		t.Fatal("merge should adopt other's data when this search has none")
	}
}

func TestUnresolvedAndFullyResolved(t *testing.T) {
	s := New("dark magician")
	s.AddRequirement("en", card.FacetInfo)
	s.AddRequirement("en", card.FacetArt)

	if s.FullyResolved() {
		t.Fatal("search with no data cannot be resolved")
	}

	c := card.NewCard(46986414)
	c.Names["en"] = "Dark Magician"
	c.Effects["en"] = "The ultimate wizard."
	s.Data = c

	unresolved := s.Unresolved()
	if len(unresolved) != 1 || unresolved[0].Facet != card.FacetArt {
		t.Fatalf("expected only the art facet unresolved, got %v", unresolved)
	}

	c.ImageURL = "https://img.example/46986414.png"
	if !s.FullyResolved() {
		t.Fatal("expected search to be fully resolved")
	}
}

func TestQueryAddDeduplicatesOriginals(t *testing.T) {
	q := NewQuery("en")
	first := q.Add("dark magician", "en", card.FacetInfo)
	second := q.Add("dark magician", "en", card.FacetArt)

	if first != second {
		t.Fatal("same original token must map to one search")
	}
	if len(q.Searches) != 1 {
		t.Fatalf("expected 1 search, got %d", len(q.Searches))
	}
	if _, ok := first.Requirements["en"][card.FacetArt]; !ok {
		t.Fatal("second Add lost its requirement")
	}
}

func TestMergeDuplicatesAfterTermRewrite(t *testing.T) {
	q := NewQuery("en")
	a := q.Add("dark magician", "en", card.FacetInfo)
	b := q.Add("46986414", "en", card.FacetPrice)

	// A source discovered both tokens canonicalize to the same id.
	a.Term = "46986414"
	q.MergeDuplicates()

	if len(q.Searches) != 1 {
		t.Fatalf("expected merged query to hold 1 search, got %d", len(q.Searches))
	}
	merged := q.Searches[0]
	if len(merged.Originals) != 2 {
		t.Fatalf("expected both originals preserved, got %v", merged.Originals)
	}
	if _, ok := merged.Requirements["en"][card.FacetPrice]; !ok {
		t.Fatal("merge lost the price requirement")
	}
	_ = b
}

func TestIsRulingLookup(t *testing.T) {
	s := New("8001")
	s.AddRequirement("ja", card.FacetQA)
	if !s.IsRulingLookup() {
		t.Fatal("qa-only search should be a ruling lookup")
	}
	s.AddRequirement("ja", card.FacetInfo)
	if s.IsRulingLookup() {
		t.Fatal("mixed-facet search is not a ruling lookup")
	}
}
