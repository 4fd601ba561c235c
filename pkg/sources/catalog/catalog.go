// Package catalog resolves lookups against the remote catalog API: card
// details, FAQs and rulings. Responses carry a cache revision marker that
// drives manifest invalidation, and name lookups go through the fuzzy name
// index that this package's client also feeds.
package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/nameindex"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/storage"
)

// errNotFoundRemote marks a legitimate remote miss, kept distinct from
// transport errors so callers can fall through to the next source quietly.
var errNotFoundRemote = errors.New("not found upstream")

type Connector struct {
	client      *Client
	index       *nameindex.Index
	store       *storage.DB
	concurrency int
}

func New(client *Client, index *nameindex.Index, store *storage.DB, concurrency int) *Connector {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Connector{client: client, index: index, store: store, concurrency: concurrency}
}

func (c *Connector) Name() string { return "catalog" }

func (c *Connector) Official() bool { return true }

func (c *Connector) Facets() []card.Facet {
	return []card.Facet{card.FacetInfo, card.FacetArt, card.FacetDate, card.FacetFAQ, card.FacetQA, card.FacetRuling}
}

func (c *Connector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	sources.FanOut(ctx, c.Name(), pending, c.concurrency, func(ctx context.Context, s *search.Search) error {
		err := c.resolveOne(ctx, q, s)
		if errors.Is(err, errNotFoundRemote) || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, nil
}

func (c *Connector) resolveOne(ctx context.Context, q *search.Query, s *search.Search) error {
	if s.IsRulingLookup() || q.RulingMode {
		return c.resolveRuling(ctx, s)
	}

	if !search.IsIDTerm(s.Term) {
		match, ok := c.index.Best(ctx, s.Term, localeOrder(q.Locale))
		if !ok {
			// Below the confidence threshold a match must not silently
			// rewrite the canonical term.
			return errNotFoundRemote
		}
		s.Term = strconv.Itoa(match.CardID)
	}

	id, err := strconv.Atoi(s.Term)
	if err != nil {
		return errNotFoundRemote
	}

	payload, err := c.client.FetchCard(ctx, id)
	if err != nil {
		return err
	}
	loaded := normalizeCard(id, payload)

	if encoded, err := card.EncodeCard(loaded); err == nil {
		if err := c.store.PutCard(ctx, id, encoded); err != nil {
			utils.Log.Warnf("catalog: could not cache card %d: %v", id, err)
		}
	}

	if s.Needs([]card.Facet{card.FacetFAQ}) {
		if err := c.attachFAQs(ctx, loaded); err != nil && !errors.Is(err, errNotFoundRemote) {
			utils.Log.Warnf("catalog: FAQ fetch for card %d failed: %v", id, err)
		}
	}

	if existing, ok := s.Data.(*card.Card); ok {
		existing.MergeFrom(loaded)
		return nil
	}
	if s.Data == nil {
		s.Data = loaded
	}
	return nil
}

func (c *Connector) resolveRuling(ctx context.Context, s *search.Search) error {
	if !search.IsIDTerm(s.Term) {
		return errNotFoundRemote
	}
	id, err := strconv.Atoi(s.Term)
	if err != nil {
		return errNotFoundRemote
	}

	payload, err := c.client.FetchRuling(ctx, id)
	if err != nil {
		return err
	}
	r := normalizeRuling(id, payload)

	if encoded, err := card.EncodeRuling(r); err == nil {
		if err := c.store.PutRuling(ctx, id, encoded); err != nil {
			utils.Log.Warnf("catalog: could not cache ruling %d: %v", id, err)
		}
	}

	if s.Data == nil {
		s.Data = r
	}
	return nil
}

func (c *Connector) attachFAQs(ctx context.Context, loaded *card.Card) error {
	payload, err := c.client.FetchFAQs(ctx, loaded.ID)
	if err != nil {
		return err
	}
	for _, r := range gjson.Get(payload, "faqs").Array() {
		entry := card.FAQEntry{
			ID:       int(r.Get("id").Int()),
			Locale:   r.Get("locale").String(),
			Question: r.Get("q").String(),
			Answer:   r.Get("a").String(),
		}
		loaded.FAQs = append(loaded.FAQs, entry)
		if encoded, err := card.EncodeFAQ(entry); err == nil {
			if err := c.store.PutFAQ(ctx, loaded.ID, entry.ID, encoded); err != nil {
				utils.Log.Warnf("catalog: could not cache FAQ %d/%d: %v", loaded.ID, entry.ID, err)
			}
		}
	}
	return nil
}

// normalizeCard turns a raw catalog payload into the shared entity shape.
func normalizeCard(id int, payload string) *card.Card {
	loaded := card.NewCard(id)
	gjson.Get(payload, "texts").ForEach(func(locale, texts gjson.Result) bool {
		loaded.Names[locale.String()] = texts.Get("name").String()
		loaded.Effects[locale.String()] = texts.Get("effect").String()
		return true
	})
	gjson.Get(payload, "dates").ForEach(func(locale, date gjson.Result) bool {
		loaded.ReleaseDates[locale.String()] = date.String()
		return true
	})
	loaded.ImageURL = gjson.Get(payload, "image").String()
	loaded.OCGOnly = gjson.Get(payload, "ocgOnly").Bool()
	loaded.AnimeOnly = gjson.Get(payload, "animeOnly").Bool()
	return loaded
}

func normalizeRuling(id int, payload string) *card.Ruling {
	r := card.NewRuling(id)
	gjson.Get(payload, "texts").ForEach(func(locale, texts gjson.Result) bool {
		r.Questions[locale.String()] = texts.Get("q").String()
		r.Answers[locale.String()] = texts.Get("a").String()
		return true
	})
	for _, cid := range gjson.Get(payload, "cards").Array() {
		r.CardIDs = append(r.CardIDs, int(cid.Int()))
	}
	return r
}

func localeOrder(primary string) []string {
	if primary == "" || primary == "en" {
		return []string{"en"}
	}
	return []string{primary, "en"}
}
