// Package cachedb resolves lookups from the local cache database: card and
// ruling payloads previously normalized by the remote connectors, persisted
// name indices, and fresh product prices.
package cachedb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/storage"
)

type Connector struct {
	store *storage.DB
}

func New(store *storage.DB) *Connector {
	return &Connector{store: store}
}

func (c *Connector) Name() string { return "cachedb" }

func (c *Connector) Official() bool { return true }

func (c *Connector) Facets() []card.Facet { return card.AllFacets }

func (c *Connector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	for _, s := range pending {
		if err := c.resolveOne(ctx, q, s); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			utils.Log.Warnf("cachedb: lookup %q failed: %v", s.Term, err)
		}
	}
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, nil
}

func (c *Connector) resolveOne(ctx context.Context, q *search.Query, s *search.Search) error {
	if s.IsRulingLookup() || q.RulingMode {
		return c.resolveRuling(ctx, s)
	}

	term := s.Term
	if search.IsIDTerm(term) {
		id, err := strconv.Atoi(term)
		if err != nil {
			return storage.ErrNotFound
		}
		return c.loadCard(ctx, s, id)
	}

	if utils.IsSetCode(term) {
		if err := c.loadSet(ctx, s, strings.ToUpper(term)); err == nil {
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// A short alpha token can still be a card name; fall through.
	}

	// Exact name match against the persisted index, query locale first.
	for _, locale := range localeOrder(q.Locale) {
		id, err := c.store.LookupName(ctx, locale, term)
		if err == nil {
			// A resolved id is a better canonical key than the name.
			s.Term = strconv.Itoa(id)
			return c.loadCard(ctx, s, id)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return storage.ErrNotFound
}

func (c *Connector) resolveRuling(ctx context.Context, s *search.Search) error {
	if !search.IsIDTerm(s.Term) {
		return storage.ErrNotFound
	}
	id, err := strconv.Atoi(s.Term)
	if err != nil {
		return storage.ErrNotFound
	}
	payload, err := c.store.GetRuling(ctx, id)
	if err != nil {
		return err
	}
	r, err := card.DecodeRuling(payload)
	if err != nil {
		return err
	}
	if s.Data == nil {
		s.Data = r
	}
	return nil
}

func (c *Connector) loadCard(ctx context.Context, s *search.Search, id int) error {
	payload, err := c.store.GetCard(ctx, id)
	if err != nil {
		return err
	}
	loaded, err := card.DecodeCard(payload)
	if err != nil {
		return err
	}

	faqs, err := c.store.ListFAQs(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range faqs {
		entry, err := card.DecodeFAQ(p)
		if err != nil {
			utils.Log.Warnf("cachedb: bad FAQ payload for card %d: %v", id, err)
			continue
		}
		loaded.FAQs = append(loaded.FAQs, entry)
	}

	rows, err := c.store.ListProductsByCard(ctx, id, storage.PriceMaxAge)
	if err != nil {
		return err
	}
	loaded.Products = rowsToProducts(rows)

	attachCard(s, loaded)
	return nil
}

func (c *Connector) loadSet(ctx context.Context, s *search.Search, code string) error {
	payload, err := c.store.GetCardSet(ctx, code)
	if err != nil {
		return err
	}
	set, err := card.DecodeCardSet(payload)
	if err != nil {
		return err
	}
	rows, err := c.store.ListProductsBySet(ctx, code, storage.PriceMaxAge)
	if err != nil {
		return err
	}
	set.Products = rowsToProducts(rows)
	if s.Data == nil {
		s.Data = set
	}
	return nil
}

// attachCard merges freshly loaded card data into the search without
// clobbering fields an earlier source already set.
func attachCard(s *search.Search, loaded *card.Card) {
	if existing, ok := s.Data.(*card.Card); ok {
		existing.MergeFrom(loaded)
		return
	}
	if s.Data == nil {
		s.Data = loaded
	}
}

func rowsToProducts(rows []storage.ProductRow) []*card.Product {
	out := make([]*card.Product, 0, len(rows))
	for _, row := range rows {
		p := &card.Product{ProductID: row.ProductID, CardID: row.CardID, SetCode: row.SetCode}
		if row.Payload != "" {
			var meta struct {
				SetName string `json:"setName"`
				Rarity  string `json:"rarity"`
			}
			if err := json.Unmarshal([]byte(row.Payload), &meta); err == nil {
				p.SetName = meta.SetName
				p.Rarity = meta.Rarity
			}
		}
		if row.HasPrice {
			p.Price = &card.Price{Amount: row.PriceAmount, Currency: row.PriceCurrency, CachedAt: row.PriceCachedAt}
		}
		out = append(out, p)
	}
	return out
}

func localeOrder(primary string) []string {
	if primary == "" || primary == "en" {
		return []string{"en"}
	}
	return []string{primary, "en"}
}
