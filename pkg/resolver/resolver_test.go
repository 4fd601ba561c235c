package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/quota"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/termcache"
)

// fakeConnector resolves (or fails) according to fn, recording every call.
type fakeConnector struct {
	name     string
	facets   []card.Facet
	official bool
	calls    int
	fn       func(q *search.Query, pending []*search.Search)
	err      error
}

func (f *fakeConnector) Name() string        { return f.name }
func (f *fakeConnector) Facets() []card.Facet { return f.facets }
func (f *fakeConnector) Official() bool      { return f.official }

func (f *fakeConnector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	f.calls++
	if f.fn != nil {
		f.fn(q, pending)
	}
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, f.err
}

// infoCard builds a card that satisfies the info facet for one locale.
func infoCard(id int, locale string) *card.Card {
	c := card.NewCard(id)
	c.Names[locale] = "Some Card"
	c.Effects[locale] = "Some effect text."
	return c
}

func attachAll(id int, locale string) func(q *search.Query, pending []*search.Search) {
	return func(q *search.Query, pending []*search.Search) {
		for _, s := range pending {
			s.Data = infoCard(id, locale)
		}
	}
}

func newEngine(steps ...sources.Connector) *Engine {
	return New(Options{Steps: steps, Cache: termcache.New(termcache.DefaultTTL)})
}

func TestPipelineStopsOnceResolved(t *testing.T) {
	first := &fakeConnector{name: "first", facets: card.AllFacets, official: true, fn: attachAll(1, "en")}
	second := &fakeConnector{name: "second", facets: card.AllFacets, official: true}
	e := newEngine(first, second)

	q := search.NewQuery("en")
	q.Add("Some Card", "en", card.FacetInfo)

	report, err := e.Resolve(context.Background(), "client", q)
	if err != nil {
		t.Fatal(err)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("later steps must not run once everything resolved: first=%d second=%d", first.calls, second.calls)
	}
	if len(report.Results) != 1 || report.Results[0].Status != StatusResolved {
		t.Fatalf("unexpected report %+v", report.Results)
	}
}

func TestFailingSourceDoesNotBlockLaterSteps(t *testing.T) {
	broken := &fakeConnector{name: "broken", facets: card.AllFacets, official: true, err: errors.New("upstream down")}
	working := &fakeConnector{name: "working", facets: card.AllFacets, official: true, fn: attachAll(2, "en")}
	e := newEngine(broken, working)

	q := search.NewQuery("en")
	q.Add("kuriboh", "en", card.FacetInfo)

	report, err := e.Resolve(context.Background(), "client", q)
	if err != nil {
		t.Fatal(err)
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Fatal("a failing source must not abort the pipeline")
	}
	if report.Results[0].Status != StatusResolved {
		t.Fatalf("expected the later step to resolve, got %v", report.Results[0].Status)
	}
}

func TestOfficialOnlySkipsUnofficialSources(t *testing.T) {
	unofficial := &fakeConnector{name: "wiki", facets: card.AllFacets, official: false, fn: attachAll(3, "en")}
	e := newEngine(unofficial)

	q := search.NewQuery("en")
	q.OfficialOnly = true
	q.Add("kuriboh", "en", card.FacetInfo)

	report, err := e.Resolve(context.Background(), "client", q)
	if err != nil {
		t.Fatal(err)
	}
	if unofficial.calls != 0 {
		t.Fatal("unofficial source must be skipped in official-only mode")
	}
	if report.Results[0].Status != StatusFailed {
		t.Fatalf("expected not found, got %v", report.Results[0].Status)
	}
}

func TestFacetFilterSkipsIrrelevantSources(t *testing.T) {
	priceOnly := &fakeConnector{name: "commerce", facets: []card.Facet{card.FacetPrice}, official: false}
	infoSource := &fakeConnector{name: "catalog", facets: []card.Facet{card.FacetInfo}, official: true, fn: attachAll(4, "en")}
	e := newEngine(priceOnly, infoSource)

	q := search.NewQuery("en")
	q.Add("kuriboh", "en", card.FacetInfo)

	if _, err := e.Resolve(context.Background(), "client", q); err != nil {
		t.Fatal(err)
	}
	if priceOnly.calls != 0 {
		t.Fatal("a source offering none of the needed facets must be skipped")
	}
	if infoSource.calls != 1 {
		t.Fatal("the matching source should have been consulted")
	}
}

func TestTermCacheShortCircuitsRepeatQueries(t *testing.T) {
	src := &fakeConnector{name: "catalog", facets: card.AllFacets, official: true, fn: attachAll(5, "en")}
	e := newEngine(src)

	for i := 0; i < 2; i++ {
		q := search.NewQuery("en")
		q.Add("Dark Magician", "en", card.FacetInfo)
		report, err := e.Resolve(context.Background(), "client", q)
		if err != nil {
			t.Fatal(err)
		}
		if report.Results[0].Status != StatusResolved {
			t.Fatalf("run %d: expected resolved, got %v", i, report.Results[0].Status)
		}
	}
	if src.calls != 1 {
		t.Fatalf("second query must be served from the term cache, got %d connector calls", src.calls)
	}
}

func TestRulingLookupsBypassTermCache(t *testing.T) {
	// Card ids and ruling ids are separate namespaces. After "120" has been
	// resolved (and cached) as a card, a ruling-mode query for the same
	// token must still reach the connectors and return ruling 120.
	src := &fakeConnector{name: "catalog", facets: card.AllFacets, official: true}
	src.fn = func(q *search.Query, pending []*search.Search) {
		for _, s := range pending {
			if q.RulingMode {
				r := card.NewRuling(120)
				r.Questions["en"] = "Can this effect be chained?"
				r.Answers["en"] = "Yes."
				s.Data = r
			} else {
				s.Data = infoCard(120, "en")
			}
		}
	}
	e := newEngine(src)

	q := search.NewQuery("en")
	q.Add("120", "en", card.FacetInfo)
	if _, err := e.Resolve(context.Background(), "client", q); err != nil {
		t.Fatal(err)
	}

	rq := search.NewQuery("en")
	rq.RulingMode = true
	rq.Add("120", "en", card.FacetRuling)
	report, err := e.Resolve(context.Background(), "client", rq)
	if err != nil {
		t.Fatal(err)
	}
	res := report.Results[0]
	if res.Status != StatusResolved || res.Kind != "ruling" || res.Key != "120" {
		t.Fatalf("cached card must not shadow the ruling with the same id, got %+v", res)
	}
}

func TestTermRewriteMergesConvergedSearches(t *testing.T) {
	// A connector that rewrites name terms to the numeric id and resolves,
	// so "dark magician" and "46986414" converge on one search.
	rewriter := &fakeConnector{name: "catalog", facets: card.AllFacets, official: true}
	rewriter.fn = func(q *search.Query, pending []*search.Search) {
		for _, s := range pending {
			s.Term = "46986414"
			s.Data = infoCard(46986414, "en")
		}
	}
	e := newEngine(rewriter)

	q := search.NewQuery("en")
	q.Add("Dark Magician", "en", card.FacetInfo)
	q.Add("46986414", "en", card.FacetInfo)

	report, err := e.Resolve(context.Background(), "client", q)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Searches) != 1 {
		t.Fatalf("converged terms must merge into one search, got %d", len(q.Searches))
	}
	if len(report.Results) != 2 {
		t.Fatalf("both original tokens must be reported, got %d", len(report.Results))
	}
	for _, res := range report.Results {
		if res.Status != StatusResolved || res.Key != "46986414" {
			t.Fatalf("unexpected result %+v", res)
		}
	}
}

func TestStepsRunInConfiguredOrder(t *testing.T) {
	var order []string
	recording := func(name string, resolve func(q *search.Query, pending []*search.Search)) *fakeConnector {
		return &fakeConnector{name: name, facets: card.AllFacets, official: true,
			fn: func(q *search.Query, pending []*search.Search) {
				order = append(order, name)
				if resolve != nil {
					resolve(q, pending)
				}
			}}
	}
	e := newEngine(
		recording("cachedb", nil),
		recording("official", nil),
		recording("catalog", attachAll(8, "en")),
	)

	q := search.NewQuery("en")
	q.Add("kuriboh", "en", card.FacetInfo)

	if _, err := e.Resolve(context.Background(), "client", q); err != nil {
		t.Fatal(err)
	}
	if want := []string{"cachedb", "official", "catalog"}; !utils.AreSlicesEqual(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestQuotaRejectsOverLimitClients(t *testing.T) {
	src := &fakeConnector{name: "catalog", facets: card.AllFacets, official: true, fn: attachAll(6, "en")}
	e := New(Options{
		Steps: []sources.Connector{src},
		Cache: termcache.New(termcache.DefaultTTL),
		Quota: quota.New(1, time.Minute),
	})

	q := search.NewQuery("en")
	q.Add("kuriboh", "en", card.FacetInfo)
	if _, err := e.Resolve(context.Background(), "alice", q); err != nil {
		t.Fatal(err)
	}

	q2 := search.NewQuery("en")
	q2.Add("kuriboh", "en", card.FacetInfo)
	if _, err := e.Resolve(context.Background(), "alice", q2); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Other clients are unaffected.
	q3 := search.NewQuery("en")
	q3.Add("kuriboh", "en", card.FacetInfo)
	if _, err := e.Resolve(context.Background(), "bob", q3); err != nil {
		t.Fatal(err)
	}
}

func TestReportPartialStatus(t *testing.T) {
	// Source satisfies info but the query also wants a price it never gets.
	src := &fakeConnector{name: "catalog", facets: card.AllFacets, official: true, fn: attachAll(7, "en")}
	e := newEngine(src)

	q := search.NewQuery("en")
	q.Add("kuriboh", "en", card.FacetInfo)
	q.Add("kuriboh", "en", card.FacetPrice)

	report, err := e.Resolve(context.Background(), "client", q)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("same token twice must stay one search, got %d results", len(report.Results))
	}
	res := report.Results[0]
	if res.Status != StatusPartial || res.Missing != 1 {
		t.Fatalf("expected partial with one missing facet, got %+v", res)
	}
}
