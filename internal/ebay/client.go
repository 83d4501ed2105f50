// Package ebay searches the eBay Browse API for comparable items.
package ebay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	ApiBaseUrl = "https://api.ebay.com"

	DefaultMarketplaceID = "EBAY_US"

	// Browse API allows 5000 calls a day per application.
	defaultRPS   = 2
	defaultBurst = 4

	applicationScope = "https://api.ebay.com/oauth/api_scope"
)

type ClientOpts struct {
	BaseURL       string
	MarketplaceID string
	// BearerToken is used as is when set. Otherwise AppID and CertID are
	// exchanged for an application token.
	BearerToken string
	AppID       string
	CertID      string
	Limiter     *rate.Limiter
}

type Client struct {
	httpClient    *resty.Client
	marketplaceID string
	appID         string
	certID        string
	limiter       *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	staticToken bool
}

func NewClient(opts ClientOpts) *Client {
	c := Client{
		marketplaceID: DefaultMarketplaceID,
		appID:         opts.AppID,
		certID:        opts.CertID,
		limiter:       opts.Limiter,
	}
	baseURL := ApiBaseUrl
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.MarketplaceID != "" {
		c.marketplaceID = opts.MarketplaceID
	}
	if opts.BearerToken != "" {
		c.token = opts.BearerToken
		c.staticToken = true
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst)
	}
	c.httpClient = resty.New().
		SetDebug(false).
		SetTimeout(30*time.Second).
		SetBaseURL(baseURL).
		SetHeaders(map[string]string{
			"Accept":                  "application/json",
			"X-EBAY-C-MARKETPLACE-ID": c.marketplaceID,
		})

	return &c
}

func (c *Client) req(ctx context.Context, result any) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	request := c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetAuthToken(token)

	if result != nil {
		request.SetResult(result)
	}
	return request, nil
}

// handleError turns >399 responses into errors. Without this, failing
// responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}
