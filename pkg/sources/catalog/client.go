package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/manifest"
	"github.com/sw33tLie/cardex/pkg/whttp"
)

// revisionHeader carries the remote cache revision on every catalog
// response.
const revisionHeader = "X-Cache-Revision"

// RevisionObserver receives the revision marker seen on each response.
// The manifest invalidator implements it; the indirection keeps this
// package from depending on the invalidator's wiring.
type RevisionObserver interface {
	Observe(ctx context.Context, current int64) error
}

// Client is the raw catalog API access layer. It implements
// nameindex.Fetcher and manifest.Fetcher.
type Client struct {
	http     *whttp.Client
	baseURL  string
	observer RevisionObserver
}

func NewClient(http *whttp.Client, baseURL string) *Client {
	return &Client{http: http, baseURL: baseURL}
}

// OnRevision registers the invalidator. Set once during engine wiring,
// before any requests are made.
func (c *Client) OnRevision(obs RevisionObserver) { c.observer = obs }

// get issues one catalog request and feeds the revision marker to the
// observer. Invalidation failures are logged, not propagated: a stale cache
// is still a working cache.
func (c *Client) get(ctx context.Context, path string) (*whttp.WHTTPRes, error) {
	res, err := c.http.Do(ctx, &whttp.WHTTPReq{Method: "GET", URL: c.baseURL + path})
	if err != nil {
		return nil, err
	}
	if c.observer != nil && res.Header != nil {
		if rev, err := strconv.ParseInt(res.Header.Get(revisionHeader), 10, 64); err == nil && rev > 0 {
			if oerr := c.observer.Observe(ctx, rev); oerr != nil {
				utils.Log.Warnf("catalog: cache invalidation for revision %d failed: %v", rev, oerr)
			}
		}
	}
	return res, nil
}

// FetchCard returns the raw card detail payload.
func (c *Client) FetchCard(ctx context.Context, id int) (string, error) {
	res, err := c.get(ctx, fmt.Sprintf("/cards/%d", id))
	if err != nil {
		return "", err
	}
	if res.StatusCode == 404 {
		return "", errNotFoundRemote
	}
	if res.StatusCode != 200 {
		return "", fmt.Errorf("card endpoint returned status %d", res.StatusCode)
	}
	return res.BodyString, nil
}

// FetchFAQs returns the raw FAQ payload for one card.
func (c *Client) FetchFAQs(ctx context.Context, id int) (string, error) {
	res, err := c.get(ctx, fmt.Sprintf("/cards/%d/faqs", id))
	if err != nil {
		return "", err
	}
	if res.StatusCode == 404 {
		return "", errNotFoundRemote
	}
	if res.StatusCode != 200 {
		return "", fmt.Errorf("faq endpoint returned status %d", res.StatusCode)
	}
	return res.BodyString, nil
}

// FetchRuling returns the raw ruling payload.
func (c *Client) FetchRuling(ctx context.Context, id int) (string, error) {
	res, err := c.get(ctx, fmt.Sprintf("/rulings/%d", id))
	if err != nil {
		return "", err
	}
	if res.StatusCode == 404 {
		return "", errNotFoundRemote
	}
	if res.StatusCode != 200 {
		return "", fmt.Errorf("ruling endpoint returned status %d", res.StatusCode)
	}
	return res.BodyString, nil
}

// FetchNames implements nameindex.Fetcher: one locale's full lowercased
// name -> card id map.
func (c *Client) FetchNames(ctx context.Context, locale string) (map[string]int, error) {
	res, err := c.get(ctx, "/names/"+locale)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("name index endpoint returned status %d", res.StatusCode)
	}
	names := map[string]int{}
	gjson.Get(res.BodyString, "names").ForEach(func(key, value gjson.Result) bool {
		names[key.String()] = int(value.Int())
		return true
	})
	return names, nil
}

// FetchManifest implements manifest.Fetcher: the changed-entity list after
// a given revision.
func (c *Client) FetchManifest(ctx context.Context, sinceRevision int64) (manifest.Changes, error) {
	// Direct request, not via get(): feeding the manifest response's own
	// revision back into the observer would recurse.
	res, err := c.http.Do(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    fmt.Sprintf("%s/manifest?since=%d", c.baseURL, sinceRevision),
	})
	if err != nil {
		return manifest.Changes{}, err
	}
	if res.StatusCode != 200 {
		return manifest.Changes{}, fmt.Errorf("manifest endpoint returned status %d", res.StatusCode)
	}

	var changes manifest.Changes
	for _, r := range gjson.Get(res.BodyString, "cards").Array() {
		changes.CardIDs = append(changes.CardIDs, int(r.Int()))
	}
	for _, r := range gjson.Get(res.BodyString, "rulings").Array() {
		changes.RulingIDs = append(changes.RulingIDs, int(r.Int()))
	}
	for _, r := range gjson.Get(res.BodyString, "locales").Array() {
		changes.Locales = append(changes.Locales, r.String())
	}
	return changes, nil
}
