// Package commerce resolves set codes and price facets through the
// rate-limited commerce API. Set search and card price search are separate
// paths: a set code token produces a CardSet with priced products, while a
// card that already has an identity gets its product list priced in place.
package commerce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/storage"
	"github.com/sw33tLie/cardex/pkg/whttp"
)

const (
	pageSize = 100
	// priceBatchMax bounds the ids per pricing request to keep URLs sane.
	priceBatchMax = 50
)

var errSkip = errors.New("not a commerce lookup")

// nowFunc is swapped in tests.
var nowFunc = time.Now

type Connector struct {
	http        *whttp.Client
	baseURL     string
	store       *storage.DB
	concurrency int
}

func New(http *whttp.Client, baseURL string, store *storage.DB, concurrency int) *Connector {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Connector{http: http, baseURL: baseURL, store: store, concurrency: concurrency}
}

func (c *Connector) Name() string { return "commerce" }

func (c *Connector) Official() bool { return false }

func (c *Connector) Facets() []card.Facet {
	return []card.Facet{card.FacetPrice, card.FacetDate}
}

func (c *Connector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	sources.FanOut(ctx, c.Name(), pending, c.concurrency, func(ctx context.Context, s *search.Search) error {
		err := c.resolveOne(ctx, q, s)
		if errors.Is(err, errSkip) || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, nil
}

func (c *Connector) resolveOne(ctx context.Context, q *search.Query, s *search.Search) error {
	if s.IsRulingLookup() || q.RulingMode {
		return errSkip
	}

	// Card price path: needs an identity, either a numeric term or already
	// resolved data.
	if existing, ok := s.Data.(*card.Card); ok && existing.ID != 0 {
		return c.priceCard(ctx, s, existing)
	}
	if search.IsIDTerm(s.Term) {
		id, err := strconv.Atoi(s.Term)
		if err != nil {
			return errSkip
		}
		loaded := card.NewCard(id)
		if err := c.priceCard(ctx, s, loaded); err != nil {
			return err
		}
		if s.Data == nil {
			s.Data = loaded
		}
		return nil
	}

	// Set search path.
	if utils.IsSetCode(s.Term) {
		return c.resolveSet(ctx, q, s, strings.ToUpper(s.Term))
	}
	return errSkip
}

// resolveSet looks a set code up, lists its products with pagination and
// prices them in bounded batches.
func (c *Connector) resolveSet(ctx context.Context, q *search.Query, s *search.Search, code string) error {
	res, err := c.http.DoAuth(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    fmt.Sprintf("%s/catalog/sets?code=%s", c.baseURL, code),
	})
	if err != nil {
		return err
	}
	if res.StatusCode == 404 {
		return storage.ErrNotFound
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("set endpoint returned status %d", res.StatusCode)
	}
	first := gjson.Get(res.BodyString, "results.0")
	if !first.Exists() {
		return storage.ErrNotFound
	}

	set := card.NewCardSet(code)
	// The set's display locale is independent of any card text locale a
	// later price lookup might use; keep the key derivations separate.
	setLocale := first.Get("locale").String()
	if setLocale == "" {
		setLocale = defaultLocale(q.Locale)
	}
	set.Names[setLocale] = first.Get("name").String()
	set.ReleaseDates[setLocale] = first.Get("releaseDate").String()

	setID := int(first.Get("setId").Int())
	products, err := c.listProducts(ctx, fmt.Sprintf("%s/catalog/sets/%d/products", c.baseURL, setID), code)
	if err != nil {
		return err
	}
	if err := c.priceProducts(ctx, products); err != nil {
		utils.Log.Warnf("commerce: pricing set %s failed: %v", code, err)
	}
	set.Products = products

	if encoded, err := card.EncodeCardSet(set); err == nil {
		if err := c.store.PutCardSet(ctx, code, encoded); err != nil {
			utils.Log.Warnf("commerce: could not cache set %s: %v", code, err)
		}
	}

	if s.Data == nil {
		s.Data = set
	}
	return nil
}

// priceCard fetches and prices the card's products, merging into an
// existing product list without clobbering it.
func (c *Connector) priceCard(ctx context.Context, s *search.Search, existing *card.Card) error {
	products := existing.Products
	if len(products) == 0 {
		var err error
		products, err = c.listProducts(ctx, fmt.Sprintf("%s/catalog/products?cardId=%d", c.baseURL, existing.ID), "")
		if err != nil {
			return err
		}
		for _, p := range products {
			p.CardID = existing.ID
		}
		existing.Products = products
	}
	if len(products) == 0 {
		return storage.ErrNotFound
	}
	return c.priceProducts(ctx, products)
}

// listProducts drains a paginated product listing and persists each row.
func (c *Connector) listProducts(ctx context.Context, baseURL, setCode string) ([]*card.Product, error) {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	items, err := c.http.Paginate(ctx, func(offset int) *whttp.WHTTPReq {
		return &whttp.WHTTPReq{
			Method: "GET",
			URL:    fmt.Sprintf("%s%soffset=%d&limit=%d", baseURL, sep, offset, pageSize),
		}
	}, pageSize, "totalItems", "results", true)
	if err != nil {
		return nil, err
	}

	products := make([]*card.Product, 0, len(items))
	for _, item := range items {
		p := &card.Product{
			ProductID: int(item.Get("productId").Int()),
			CardID:    int(item.Get("cardId").Int()),
			SetCode:   setCode,
			SetName:   item.Get("setName").String(),
			Rarity:    item.Get("rarity").String(),
		}
		if p.SetCode == "" {
			p.SetCode = item.Get("setCode").String()
		}
		products = append(products, p)

		row := storage.ProductRow{
			ProductID: p.ProductID,
			CardID:    p.CardID,
			SetCode:   p.SetCode,
			Payload:   fmt.Sprintf(`{"setName":%q,"rarity":%q}`, p.SetName, p.Rarity),
		}
		if err := c.store.UpsertProduct(ctx, row); err != nil {
			utils.Log.Warnf("commerce: could not persist product %d: %v", p.ProductID, err)
		}
	}
	return products, nil
}

// priceProducts fetches market prices for the given products in batches of
// priceBatchMax ids and writes them through to the cache database. Products
// the API has no price for simply stay unpriced.
func (c *Connector) priceProducts(ctx context.Context, products []*card.Product) error {
	byID := make(map[int]*card.Product, len(products))
	ids := make([]int, 0, len(products))
	for _, p := range products {
		if p.ProductID == 0 {
			continue
		}
		byID[p.ProductID] = p
		ids = append(ids, p.ProductID)
	}

	for _, chunk := range whttp.ChunkInts(ids, priceBatchMax) {
		strIDs := make([]string, len(chunk))
		for i, id := range chunk {
			strIDs[i] = strconv.Itoa(id)
		}
		res, err := c.http.DoAuth(ctx, &whttp.WHTTPReq{
			Method: "GET",
			URL:    fmt.Sprintf("%s/pricing/product/%s", c.baseURL, strings.Join(strIDs, ",")),
		})
		if err != nil {
			return err
		}
		if res.StatusCode == 404 {
			continue
		}
		if res.StatusCode != 200 {
			return fmt.Errorf("pricing endpoint returned status %d", res.StatusCode)
		}

		for _, r := range gjson.Get(res.BodyString, "results").Array() {
			p, ok := byID[int(r.Get("productId").Int())]
			if !ok || !r.Get("marketPrice").Exists() {
				continue
			}
			amount := r.Get("marketPrice").Float()
			currency := r.Get("currency").String()
			if currency == "" {
				currency = "USD"
			}
			p.Price = &card.Price{Amount: amount, Currency: currency, CachedAt: nowFunc()}
			if err := c.store.UpdateProductPrice(ctx, p.ProductID, amount, currency); err != nil {
				utils.Log.Warnf("commerce: could not persist price for product %d: %v", p.ProductID, err)
			}
		}
	}
	return nil
}

func defaultLocale(primary string) string {
	if primary == "" {
		return "en"
	}
	return primary
}
