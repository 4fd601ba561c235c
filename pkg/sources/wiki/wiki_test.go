package wiki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/whttp"
)

func testHTTPClient() *whttp.Client {
	return whttp.NewClient(whttp.Options{
		RateCapacity: 100,
		RateInterval: time.Millisecond,
	})
}

func cardPage(name, dbID, lore string, categories ...string) string {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, `<li><a href="#">%s</a></li>`, c)
	}
	return fmt.Sprintf(`<html><body>
<h1 id="firstHeading">%s</h1>
<table class="cardtable">
<tr><td class="cardtable-cardimage"><img src="https://img.example/%s.png"/></td></tr>
<tr><th>Database ID</th><td>%s</td></tr>
<tr><th>Card text</th><td>%s</td></tr>
</table>
<div id="mw-normal-catlinks"><ul>%s</ul></div>
</body></html>`, name, dbID, dbID, lore, cats.String())
}

func wikiServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api.php" {
			var hits []string
			term := strings.ToLower(r.URL.Query().Get("srsearch"))
			for title := range pages {
				if strings.Contains(strings.ToLower(title), term) {
					hits = append(hits, fmt.Sprintf(`{"title": %q}`, title))
				}
			}
			fmt.Fprintf(w, `{"query": {"search": [%s]}}`, strings.Join(hits, ","))
			return
		}
		title := strings.ReplaceAll(strings.TrimPrefix(r.URL.Path, "/wiki/"), "_", " ")
		if page, ok := pages[title]; ok {
			w.Write([]byte(page))
			return
		}
		w.WriteHeader(404)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveScrapesInfobox(t *testing.T) {
	srv := wikiServer(t, map[string]string{
		"Kuriboh": cardPage("Kuriboh", "40640057", "Fluffy defender."),
	})
	conn := New(testHTTPClient(), srv.URL, 1)

	q := search.NewQuery("en")
	s := q.Add("Kuriboh", "en", card.FacetInfo)

	resolved, _, err := conn.Resolve(context.Background(), q, []*search.Search{s})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected the search resolved, got %d", len(resolved))
	}
	c, ok := s.Data.(*card.Card)
	if !ok {
		t.Fatalf("expected a card entity, got %T", s.Data)
	}
	if c.Names["en"] != "Kuriboh" || c.Effects["en"] != "Fluffy defender." {
		t.Fatalf("infobox not parsed: %+v", c)
	}
	if c.ImageURL == "" {
		t.Fatal("card image not parsed")
	}
	if s.Term != "40640057" {
		t.Fatalf("infobox database id must become the canonical term, got %q", s.Term)
	}
}

func TestAnimeOnlyPagesExcludedByDefault(t *testing.T) {
	pages := map[string]string{
		"Winged Kuriboh LV9": cardPage("Winged Kuriboh LV9", "0", "Anime effect.", "Anime-only cards"),
	}
	srv := wikiServer(t, pages)
	conn := New(testHTTPClient(), srv.URL, 1)

	q := search.NewQuery("en")
	s := q.Add("Winged Kuriboh LV9", "en", card.FacetInfo)

	resolved, unresolved, err := conn.Resolve(context.Background(), q, []*search.Search{s})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 0 || len(unresolved) != 1 || s.Data != nil {
		t.Fatal("anime-only page must be skipped for a normal query")
	}

	// A token that names anime opts in.
	q2 := search.NewQuery("en")
	s2 := q2.Add("Winged Kuriboh LV9 anime", "en", card.FacetInfo)
	pages["Winged Kuriboh LV9 anime"] = pages["Winged Kuriboh LV9"]

	if _, _, err := conn.Resolve(context.Background(), q2, []*search.Search{s2}); err != nil {
		t.Fatal(err)
	}
	c, ok := s2.Data.(*card.Card)
	if !ok {
		t.Fatal("anime-aware query should accept the page")
	}
	if !c.AnimeOnly {
		t.Fatal("card must be flagged anime-only")
	}
}

func TestNumericTermsAreLeftToTheCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no wiki request expected for an id term, got %s", r.URL.Path)
		w.WriteHeader(404)
	}))
	defer srv.Close()
	conn := New(testHTTPClient(), srv.URL, 1)

	q := search.NewQuery("en")
	s := q.Add("40640057", "en", card.FacetInfo)

	resolved, unresolved, err := conn.Resolve(context.Background(), q, []*search.Search{s})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 0 || len(unresolved) != 1 {
		t.Fatal("id terms must pass through untouched")
	}

	// "7" is a real card name despite looking numeric.
	pages := map[string]string{"7": cardPage("7", "67048711", "Gain 700 LP.")}
	srv2 := wikiServer(t, pages)
	conn2 := New(testHTTPClient(), srv2.URL, 1)

	q2 := search.NewQuery("en")
	s2 := q2.Add("7", "en", card.FacetInfo)
	resolved, _, err = conn2.Resolve(context.Background(), q2, []*search.Search{s2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 {
		t.Fatal("the literal name 7 must be searchable")
	}
	if s2.Term != "67048711" {
		t.Fatalf("expected term rewrite from the infobox id, got %q", s2.Term)
	}
}

func TestRulingSearchesAreNotClaimed(t *testing.T) {
	conn := New(testHTTPClient(), "http://unused.invalid", 1)

	q := search.NewQuery("en")
	s := q.Add("8001", "en", card.FacetQA)

	if s.Needs(conn.Facets()) {
		t.Fatal("the wiki has no ruling pages, a QA-only search must not route here")
	}
}
