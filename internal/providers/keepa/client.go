// Package keepa is a client for the Keepa product API, used as the fallback
// availability source.
package keepa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropship-ops/opsdash/internal/providers"
)

const providerName = "keepa"

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("keepa: api key not configured")

// Amazon availability codes reported in availabilityAmazon.
const (
	AvailabilityNoOffer   = -1
	AvailabilityInStock   = 0
	AvailabilityPreorder  = 1
	AvailabilityUnknown   = 2
	AvailabilityBackorder = 3
	AvailabilityDelayed   = 4
)

var domainIDs = map[string]int{
	"amazon.com":    1,
	"amazon.co.uk":  2,
	"amazon.de":     3,
	"amazon.fr":     4,
	"amazon.co.jp":  5,
	"amazon.ca":     6,
	"amazon.it":     8,
	"amazon.es":     9,
	"amazon.in":     10,
	"amazon.com.mx": 11,
}

// DomainID maps an Amazon domain to Keepa's numeric locale.
func DomainID(domain string) int {
	if id, ok := domainIDs[strings.ToLower(domain)]; ok {
		return id
	}
	return 1
}

// Client wraps interactions with the Keepa API.
type Client struct {
	baseURL    string
	apiKey     string
	domainID   int
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, apiKey, amazonDomain string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		domainID:   DomainID(amazonDomain),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Name identifies the provider.
func (c *Client) Name() string {
	return providerName
}

// Stats holds the current price vector; prices are integer cents, -1 when
// absent.
type Stats struct {
	Current []int `json:"current"`
}

// Product is one entry of a product response.
type Product struct {
	ASIN               string `json:"asin"`
	Title              string `json:"title"`
	AvailabilityAmazon int    `json:"availabilityAmazon"`
	Stats              *Stats `json:"stats"`
}

// CurrentPrice returns the Amazon price, falling back to the lowest new offer.
func (p Product) CurrentPrice() *float64 {
	if p.Stats == nil {
		return nil
	}
	for _, idx := range []int{0, 1} {
		if idx < len(p.Stats.Current) && p.Stats.Current[idx] > 0 {
			v := float64(p.Stats.Current[idx]) / 100
			return &v
		}
	}
	return nil
}

// InStock reports availability; nil when Keepa cannot tell.
func (p Product) InStock() *bool {
	var v bool
	switch p.AvailabilityAmazon {
	case AvailabilityInStock:
		v = true
	case AvailabilityNoOffer:
		// No Amazon offer; a live new-offer price still means it can be bought.
		v = p.CurrentPrice() != nil
	case AvailabilityBackorder, AvailabilityPreorder, AvailabilityDelayed:
		v = false
	default:
		return nil
	}
	return &v
}

type productResponse struct {
	Products   []Product `json:"products"`
	TokensLeft int       `json:"tokensLeft"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Product looks up a single ASIN with current statistics.
func (c *Client) Product(ctx context.Context, asin string) (*Product, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", strconv.Itoa(c.domainID))
	q.Set("asin", asin)
	q.Set("stats", "1")
	endpoint := fmt.Sprintf("%s/product?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keepa: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keepa: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.StatusError{Provider: providerName, Code: resp.StatusCode, Body: providers.Excerpt(body)}
	}

	var payload productResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &providers.PayloadError{Provider: providerName, Reason: err.Error()}
	}
	if payload.Error != nil {
		return nil, &providers.PayloadError{Provider: providerName, Reason: payload.Error.Message}
	}
	for i := range payload.Products {
		if payload.Products[i].ASIN == asin {
			return &payload.Products[i], nil
		}
	}
	return nil, &providers.PayloadError{Provider: providerName, Reason: "product missing"}
}
