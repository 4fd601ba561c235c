package card

import (
	"strconv"
	"time"
)

// Facet is one category of data a lookup can ask for.
type Facet string

const (
	FacetInfo   Facet = "info"
	FacetRuling Facet = "ruling"
	FacetArt    Facet = "art"
	FacetDate   Facet = "date"
	FacetPrice  Facet = "price"
	FacetFAQ    Facet = "faq"
	FacetQA     Facet = "qa"
)

// PriceThreshold is the fraction of a card's products that must carry price
// data before the price facet counts as resolved. Some print variants never
// receive pricing, so requiring 100% would make price lookups unresolvable.
const PriceThreshold = 0.9

// AllFacets lists every known facet.
var AllFacets = []Facet{FacetInfo, FacetRuling, FacetArt, FacetDate, FacetPrice, FacetFAQ, FacetQA}

// ParseFacet validates a user-supplied facet string.
func ParseFacet(s string) (Facet, bool) {
	for _, f := range AllFacets {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Entity is any resolved domain object a Search can carry.
type Entity interface {
	Kind() string
	Key() string
	HasFacet(locale string, f Facet) bool
}

// Price is a single cached product price. Stale rows are dropped at load
// time, so a non-nil Price is always usable.
type Price struct {
	Amount   float64
	Currency string
	CachedAt time.Time
}

// Fresh reports whether the price was cached within maxAge.
func (p *Price) Fresh(maxAge time.Duration) bool {
	return p != nil && time.Since(p.CachedAt) <= maxAge
}

// Product is one printing of a card inside a set.
type Product struct {
	ProductID int
	CardID    int
	SetCode   string
	SetName   string
	Rarity    string
	Price     *Price
}

// FAQEntry is one official FAQ item attached to a card.
type FAQEntry struct {
	ID       int
	Locale   string
	Question string
	Answer   string
}

// Card is the primary resolved entity. Name/effect/date maps are keyed by
// locale. Multiple Searches may share one *Card after merging.
type Card struct {
	ID           int
	Names        map[string]string
	Effects      map[string]string
	ReleaseDates map[string]string
	ImageURL     string
	FAQs         []FAQEntry
	Products     []*Product
	Banlist      map[string]string // format -> status
	OCGOnly      bool
	AnimeOnly    bool
}

func NewCard(id int) *Card {
	return &Card{
		ID:           id,
		Names:        map[string]string{},
		Effects:      map[string]string{},
		ReleaseDates: map[string]string{},
		Banlist:      map[string]string{},
	}
}

func (c *Card) Kind() string { return "card" }
func (c *Card) Key() string  { return strconv.Itoa(c.ID) }

// PriceCoverage returns the fraction of products carrying price data.
// A card with no known products has zero coverage.
func (c *Card) PriceCoverage() float64 {
	if len(c.Products) == 0 {
		return 0
	}
	priced := 0
	for _, p := range c.Products {
		if p.Price != nil {
			priced++
		}
	}
	return float64(priced) / float64(len(c.Products))
}

// HasFacet reports whether the card already carries the data the given
// (locale, facet) pair asks for.
func (c *Card) HasFacet(locale string, f Facet) bool {
	switch f {
	case FacetInfo:
		return c.Names[locale] != "" && c.Effects[locale] != ""
	case FacetArt:
		return c.ImageURL != ""
	case FacetDate:
		return c.ReleaseDates[locale] != ""
	case FacetPrice:
		return c.PriceCoverage() >= PriceThreshold
	case FacetFAQ:
		for _, e := range c.FAQs {
			if e.Locale == locale {
				return true
			}
		}
		return false
	case FacetRuling, FacetQA:
		// Rulings are their own entity; a Card never satisfies them.
		return false
	}
	return false
}

// MergeFrom copies fields from o that this card does not have yet.
// Already-set fields are never clobbered: first non-null wins.
func (c *Card) MergeFrom(o *Card) {
	if o == nil {
		return
	}
	if c.ID == 0 {
		c.ID = o.ID
	}
	for loc, v := range o.Names {
		if c.Names[loc] == "" {
			c.Names[loc] = v
		}
	}
	for loc, v := range o.Effects {
		if c.Effects[loc] == "" {
			c.Effects[loc] = v
		}
	}
	for loc, v := range o.ReleaseDates {
		if c.ReleaseDates[loc] == "" {
			c.ReleaseDates[loc] = v
		}
	}
	if c.ImageURL == "" {
		c.ImageURL = o.ImageURL
	}
	if len(c.FAQs) == 0 {
		c.FAQs = o.FAQs
	}
	if len(c.Products) == 0 {
		c.Products = o.Products
	}
	for format, status := range o.Banlist {
		if c.Banlist[format] == "" {
			c.Banlist[format] = status
		}
	}
	if o.OCGOnly {
		c.OCGOnly = true
	}
	if o.AnimeOnly {
		c.AnimeOnly = true
	}
}

// Ruling is one official Q&A entry, cross-referencing the cards it involves.
type Ruling struct {
	ID        int
	Questions map[string]string
	Answers   map[string]string
	CardIDs   []int
}

func NewRuling(id int) *Ruling {
	return &Ruling{ID: id, Questions: map[string]string{}, Answers: map[string]string{}}
}

func (r *Ruling) Kind() string { return "ruling" }
func (r *Ruling) Key() string  { return strconv.Itoa(r.ID) }

func (r *Ruling) HasFacet(locale string, f Facet) bool {
	switch f {
	case FacetRuling, FacetQA:
		return r.Questions[locale] != "" && r.Answers[locale] != ""
	}
	return false
}

// CardSet is a released product set, resolved from a set code token.
type CardSet struct {
	Code         string
	Names        map[string]string
	ReleaseDates map[string]string
	Products     []*Product
}

func NewCardSet(code string) *CardSet {
	return &CardSet{Code: code, Names: map[string]string{}, ReleaseDates: map[string]string{}}
}

func (s *CardSet) Kind() string { return "set" }
func (s *CardSet) Key() string  { return s.Code }

func (s *CardSet) HasFacet(locale string, f Facet) bool {
	switch f {
	case FacetInfo:
		return s.Names[locale] != ""
	case FacetDate:
		return s.ReleaseDates[locale] != ""
	case FacetPrice:
		if len(s.Products) == 0 {
			return false
		}
		priced := 0
		for _, p := range s.Products {
			if p.Price != nil {
				priced++
			}
		}
		return float64(priced)/float64(len(s.Products)) >= PriceThreshold
	}
	return false
}
