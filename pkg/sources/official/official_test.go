package official

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/refdb"
	"github.com/sw33tLie/cardex/pkg/search"
)

func seededConnector(t *testing.T) *Connector {
	t.Helper()
	db, err := refdb.Open(filepath.Join(t.TempDir(), "reference.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	c := card.NewCard(46986414)
	c.Names["en"] = "Dark Magician"
	c.Effects["en"] = "The ultimate wizard."
	c.ReleaseDates["en"] = "2002-03-08"
	if err := db.InsertCard(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return New(db)
}

func TestResolveByNameRewritesTerm(t *testing.T) {
	conn := seededConnector(t)
	q := search.NewQuery("en")
	s := q.Add("Dark Magician", "en", card.FacetInfo)

	resolved, _, err := conn.Resolve(context.Background(), q, []*search.Search{s})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected the lookup resolved, got %d", len(resolved))
	}
	if s.Term != "46986414" {
		t.Fatalf("dump id must become the canonical term, got %q", s.Term)
	}
	c := s.Data.(*card.Card)
	if c.Names["en"] != "Dark Magician" {
		t.Fatalf("unexpected card %+v", c)
	}
}

func TestResolveMergesWithoutClobbering(t *testing.T) {
	conn := seededConnector(t)
	q := search.NewQuery("en")
	s := q.Add("46986414", "en", card.FacetDate)

	// A previous source already attached partial data with its own name.
	prior := card.NewCard(46986414)
	prior.Names["en"] = "Dark Magician (alt art)"
	s.Data = prior

	if _, _, err := conn.Resolve(context.Background(), q, []*search.Search{s}); err != nil {
		t.Fatal(err)
	}
	if prior.Names["en"] != "Dark Magician (alt art)" {
		t.Fatal("existing fields must never be overwritten")
	}
	if prior.ReleaseDates["en"] != "2002-03-08" {
		t.Fatal("missing fields must be filled from the dump")
	}
}

func TestRulingLookupsAreSkipped(t *testing.T) {
	conn := seededConnector(t)
	q := search.NewQuery("en")
	s := q.Add("46986414", "en", card.FacetRuling)

	resolved, unresolved, err := conn.Resolve(context.Background(), q, []*search.Search{s})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 0 || len(unresolved) != 1 || s.Data != nil {
		t.Fatal("the reference database has no ruling data")
	}
}
