// Package wiki resolves name lookups through a wiki-style keyword search
// API, then scrapes the winning page's infobox for card data. It is the
// last and least authoritative source, and is never consulted in
// official-only mode.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/whttp"
)

// animeOnlyCategory excludes a page unless the query explicitly asked for
// anime content.
const animeOnlyCategory = "anime-only cards"

var errNoMatch = errors.New("no acceptable wiki page")

type Connector struct {
	http        *whttp.Client
	baseURL     string
	concurrency int
}

func New(http *whttp.Client, baseURL string, concurrency int) *Connector {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Connector{http: http, baseURL: baseURL, concurrency: concurrency}
}

func (c *Connector) Name() string { return "wiki" }

func (c *Connector) Official() bool { return false }

// Facets excludes ruling and QA data on purpose: the wiki scrape yields card
// pages only, so claiming those searches would just burn HTTP calls.
func (c *Connector) Facets() []card.Facet {
	return []card.Facet{card.FacetInfo, card.FacetArt}
}

func (c *Connector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	sources.FanOut(ctx, c.Name(), pending, c.concurrency, func(ctx context.Context, s *search.Search) error {
		err := c.resolveOne(ctx, q, s)
		if errors.Is(err, errNoMatch) {
			return nil
		}
		return err
	})
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, nil
}

func (c *Connector) resolveOne(ctx context.Context, q *search.Query, s *search.Search) error {
	// The wiki is a name search; numeric ids belong to the catalog.
	if search.IsIDTerm(s.Term) || s.IsRulingLookup() || q.RulingMode {
		return errNoMatch
	}

	titles, err := c.searchTitles(ctx, s.Term)
	if err != nil {
		return err
	}

	wantsAnime := queryWantsAnime(s)
	for _, title := range titles {
		loaded, err := c.scrapePage(ctx, title, wantsAnime)
		if err != nil {
			if errors.Is(err, errNoMatch) {
				continue
			}
			utils.Log.Warnf("wiki: page %q failed: %v", title, err)
			continue
		}
		if loaded.ID != 0 {
			// A database id from the infobox is a better canonical key.
			s.Term = strconv.Itoa(loaded.ID)
		}
		if existing, ok := s.Data.(*card.Card); ok {
			existing.MergeFrom(loaded)
		} else if s.Data == nil {
			s.Data = loaded
		}
		return nil
	}
	return errNoMatch
}

// searchTitles runs the keyword search and returns page titles in rank
// order.
func (c *Connector) searchTitles(ctx context.Context, term string) ([]string, error) {
	res, err := c.http.Do(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    fmt.Sprintf("%s/api.php?action=query&list=search&format=json&srlimit=5&srsearch=%s", c.baseURL, url.QueryEscape(term)),
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("wiki search returned status %d", res.StatusCode)
	}
	var titles []string
	for _, r := range gjson.Get(res.BodyString, "query.search").Array() {
		titles = append(titles, r.Get("title").String())
	}
	if len(titles) == 0 {
		return nil, errNoMatch
	}
	return titles, nil
}

// scrapePage fetches one wiki page and parses the card infobox plus the
// category list out of the rendered HTML.
func (c *Connector) scrapePage(ctx context.Context, title string, wantsAnime bool) (*card.Card, error) {
	res, err := c.http.Do(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    c.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("wiki page returned status %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return nil, err
	}

	animeOnly := false
	doc.Find("#mw-normal-catlinks li a").Each(func(_ int, sel *goquery.Selection) {
		if strings.EqualFold(strings.TrimSpace(sel.Text()), animeOnlyCategory) {
			animeOnly = true
		}
	})
	if animeOnly && !wantsAnime {
		return nil, errNoMatch
	}

	loaded := card.NewCard(0)
	loaded.AnimeOnly = animeOnly
	loaded.Names["en"] = strings.TrimSpace(doc.Find("h1#firstHeading").First().Text())
	if loaded.Names["en"] == "" {
		loaded.Names["en"] = title
	}

	if src, ok := doc.Find("table.cardtable td.cardtable-cardimage img").First().Attr("src"); ok {
		loaded.ImageURL = src
	}

	doc.Find("table.cardtable tr").Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		switch {
		case strings.EqualFold(header, "Database ID"), strings.EqualFold(header, "Internal number"):
			if id, err := strconv.Atoi(value); err == nil {
				loaded.ID = id
			}
		case strings.EqualFold(header, "Card text"), strings.EqualFold(header, "Lore"):
			loaded.Effects["en"] = value
		}
	})
	if loaded.Effects["en"] == "" {
		if lore := strings.TrimSpace(doc.Find("table.cardtable td.cardtablespanrow").First().Text()); lore != "" {
			loaded.Effects["en"] = lore
		}
	}

	return loaded, nil
}

// queryWantsAnime reports whether any original token explicitly asked for
// anime content.
func queryWantsAnime(s *search.Search) bool {
	for o := range s.Originals {
		if strings.Contains(strings.ToLower(o), "anime") {
			return true
		}
	}
	return false
}
