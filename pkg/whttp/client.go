package whttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sw33tLie/cardex/internal/utils"
)

var (
	// ErrTokenIdentity is returned when a token response names a different
	// owner than the configured client. Treated as an auth failure.
	ErrTokenIdentity = errors.New("bearer token owner does not match configured client")

	// ErrPageOverrun is returned when a paginated source keeps yielding
	// pages past its own declared total. Upstream contract violation.
	ErrPageOverrun = errors.New("pagination exceeded expected page count")

	// ErrPageShortfall is returned when a paginated fetch ends with fewer
	// items than the source declared.
	ErrPageShortfall = errors.New("pagination returned fewer items than declared total")
)

// Options configures one rate-limited client for a single external source.
type Options struct {
	RequestTimeout time.Duration // per-request, defaults to 5s
	RateCapacity   int           // token bucket burst, defaults to 5
	RateInterval   time.Duration // refill interval per token, defaults to 1s
	RetryMax       int           // defaults to 3

	// Bearer-token acquisition (client-credentials flow). Optional.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client wraps retryablehttp with a token bucket shared across all callers
// of one external source, a fixed per-request timeout, and a cached bearer
// token.
type Client struct {
	rc      *retryablehttp.Client
	limiter *rate.Limiter
	timeout time.Duration

	tokenURL     string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.RateCapacity <= 0 {
		opts.RateCapacity = 5
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}

	rc := retryablehttp.NewClient()
	rc.Logger = stdlog.New(io.Discard, "", 0)
	rc.RetryMax = opts.RetryMax

	return &Client{
		rc:           rc,
		limiter:      rate.NewLimiter(rate.Every(opts.RateInterval), opts.RateCapacity),
		timeout:      opts.RequestTimeout,
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
	}
}

// Do sends one request through the rate limiter with the per-request
// timeout applied.
func (c *Client) Do(ctx context.Context, req *WHTTPReq) (*WHTTPRes, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return SendHTTPRequest(reqCtx, req, c.rc.StandardClient())
}

// DoAuth sends one request with a bearer token, acquiring or refreshing the
// token first if needed.
func (c *Client) DoAuth(ctx context.Context, req *WHTTPReq) (*WHTTPRes, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Headers = append(req.Headers, WHTTPHeader{Name: "Authorization", Value: "Bearer " + token})
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == 401 {
		// Token revoked server-side; drop the cache so the next call
		// re-acquires.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return res, fmt.Errorf("bearer token rejected with status 401")
	}
	return res, nil
}

// ensureToken returns a valid cached token, re-acquiring only when the
// cached one is missing or past expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.tokenURL == "" {
		return "", errors.New("no token endpoint configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := SendHTTPRequest(reqCtx, &WHTTPReq{
		Method: "POST",
		URL:    c.tokenURL,
		Body:   form.Encode(),
		Headers: []WHTTPHeader{
			{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
		},
	}, c.rc.StandardClient())
	if err != nil {
		return "", err
	}
	if res.StatusCode != 200 {
		return "", fmt.Errorf("token endpoint returned status %d", res.StatusCode)
	}

	token := gjson.Get(res.BodyString, "access_token").String()
	if token == "" {
		return "", errors.New("token endpoint returned no access_token")
	}

	// Defense against misrouted responses: the token owner must be us.
	owner := gjson.Get(res.BodyString, "userName").String()
	if owner != "" && owner != c.clientID {
		utils.Log.Errorf("token owner mismatch: got %q, configured %q", owner, c.clientID)
		return "", ErrTokenIdentity
	}

	expiresIn := gjson.Get(res.BodyString, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.token = token
	// Refresh a minute early so in-flight requests don't race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	return c.token, nil
}

// PageFunc builds the request for one page given the current item offset.
type PageFunc func(offset int) *WHTTPReq

// Paginate fetches every page of a cursor-offset listing. The first page
// declares the total item count at totalPath; items are read from itemsPath.
// The loop hard-stops once more requests than ceil(total/pageSize) have been
// sent, so a moving or miscounted total can never spin forever.
func (c *Client) Paginate(ctx context.Context, page PageFunc, pageSize int, totalPath, itemsPath string, authed bool) ([]gjson.Result, error) {
	if pageSize <= 0 {
		return nil, errors.New("invalid page size")
	}

	send := c.Do
	if authed {
		send = c.DoAuth
	}

	var items []gjson.Result
	total := -1
	expectedPages := 1
	sent := 0

	for {
		sent++
		if total >= 0 && sent > expectedPages {
			utils.Log.Errorf("paginated fetch overran %d expected pages (declared total %d)", expectedPages, total)
			return nil, ErrPageOverrun
		}

		res, err := send(ctx, page(len(items)))
		if err != nil {
			return nil, err
		}
		if res.StatusCode != 200 {
			return nil, fmt.Errorf("page request returned status %d", res.StatusCode)
		}

		if total < 0 {
			total = int(gjson.Get(res.BodyString, totalPath).Int())
			expectedPages = (total + pageSize - 1) / pageSize
			if expectedPages < 1 {
				expectedPages = 1
			}
		}

		pageItems := gjson.Get(res.BodyString, itemsPath).Array()
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
		if len(items) >= total {
			break
		}
	}

	if total > 0 && len(items) < total {
		utils.Log.Errorf("paginated fetch shortfall: declared %d items, received %d", total, len(items))
		return nil, ErrPageShortfall
	}
	if total >= 0 && len(items) > total {
		items = items[:total]
	}
	return items, nil
}

// ChunkInts splits ids into batches of at most max, preserving order. Used
// to bound URL and payload size on batch id lookups.
func ChunkInts(ids []int, max int) [][]int {
	if max <= 0 || len(ids) == 0 {
		return nil
	}
	var out [][]int
	for len(ids) > max {
		out = append(out, ids[:max])
		ids = ids[max:]
	}
	return append(out, ids)
}
