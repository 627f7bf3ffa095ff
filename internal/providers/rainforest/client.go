// Package rainforest is a client for the Rainforest Amazon product-data API.
package rainforest

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

const providerName = "rainforest"

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("rainforest: api key not configured")

// Client wraps interactions with the Rainforest API.
type Client struct {
	baseURL    string
	apiKey     string
	domain     string
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
		domain:     amazonDomain,
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

// SearchParams narrows a product search.
type SearchParams struct {
	Term     string
	MinPrice float64
	MaxPrice float64
	Page     int
}

// Price is a monetary amount as reported by Rainforest. Value is nil when the
// API sends anything other than a JSON number (for example "N/A").
type Price struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
	Raw      string   `json:"raw"`
}

// UnmarshalJSON decodes a price without failing the enclosing payload on a
// non-numeric value.
func (p *Price) UnmarshalJSON(data []byte) error {
	var aux struct {
		Value    json.RawMessage `json:"value"`
		Currency string          `json:"currency"`
		Raw      string          `json:"raw"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Price{Currency: aux.Currency, Raw: aux.Raw}
	var v float64
	if len(aux.Value) > 0 && json.Unmarshal(aux.Value, &v) == nil {
		p.Value = &v
	}
	return nil
}

// Rank is one best-sellers-rank entry.
type Rank struct {
	Category string `json:"category"`
	Rank     int    `json:"rank"`
}

// SearchResult is one item of a search response.
type SearchResult struct {
	Position        int      `json:"position"`
	ASIN            string   `json:"asin"`
	Title           string   `json:"title"`
	Brand           string   `json:"brand"`
	Link            string   `json:"link"`
	Image           string   `json:"image"`
	Rating          *float64 `json:"rating"`
	RatingsTotal    *int     `json:"ratings_total"`
	IsPrime         bool     `json:"is_prime"`
	Price           *Price   `json:"price"`
	BestsellersRank []Rank   `json:"bestsellers_rank"`
}

// Availability describes buy box stock state.
type Availability struct {
	Type string `json:"type"`
	Raw  string `json:"raw"`
}

// BuyBox is the winning offer of a product page.
type BuyBox struct {
	Availability Availability `json:"availability"`
	Price        *Price       `json:"price"`
	IsPrime      bool         `json:"is_prime"`
}

// Product is the product lookup payload.
type Product struct {
	ASIN            string   `json:"asin"`
	Title           string   `json:"title"`
	Brand           string   `json:"brand"`
	Rating          *float64 `json:"rating"`
	RatingsTotal    *int     `json:"ratings_total"`
	BestsellersRank []Rank   `json:"bestsellers_rank"`
	BuyBoxWinner    *BuyBox  `json:"buybox_winner"`
	MainImage       struct {
		Link string `json:"link"`
	} `json:"main_image"`
}

type requestInfo struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type searchResponse struct {
	RequestInfo   requestInfo    `json:"request_info"`
	SearchResults []SearchResult `json:"search_results"`
}

type productResponse struct {
	RequestInfo requestInfo `json:"request_info"`
	Product     *Product    `json:"product"`
}

// Search issues one search request.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if strings.TrimSpace(params.Term) == "" {
		return nil, errors.New("rainforest: search term required")
	}
	q := url.Values{}
	q.Set("type", "search")
	q.Set("search_term", params.Term)
	if params.MinPrice > 0 {
		q.Set("min_price", strconv.FormatFloat(params.MinPrice, 'f', 2, 64))
	}
	if params.MaxPrice > 0 {
		q.Set("max_price", strconv.FormatFloat(params.MaxPrice, 'f', 2, 64))
	}
	if params.Page > 1 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	var resp searchResponse
	if err := c.get(ctx, q, &resp); err != nil {
		return nil, err
	}
	if !resp.RequestInfo.Success {
		return nil, &providers.PayloadError{Provider: providerName, Reason: fallback(resp.RequestInfo.Message, "request_info.success=false")}
	}
	return resp.SearchResults, nil
}

// Product looks up a single ASIN.
func (c *Client) Product(ctx context.Context, asin string) (*Product, error) {
	q := url.Values{}
	q.Set("type", "product")
	q.Set("asin", asin)
	var resp productResponse
	if err := c.get(ctx, q, &resp); err != nil {
		return nil, err
	}
	if !resp.RequestInfo.Success || resp.Product == nil {
		return nil, &providers.PayloadError{Provider: providerName, Reason: fallback(resp.RequestInfo.Message, "product missing")}
	}
	return resp.Product, nil
}

func (c *Client) get(ctx context.Context, q url.Values, dest any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	q.Set("api_key", c.apiKey)
	q.Set("amazon_domain", c.domain)
	endpoint := fmt.Sprintf("%s/request?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rainforest: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rainforest: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &providers.StatusError{Provider: providerName, Code: resp.StatusCode, Body: providers.Excerpt(body)}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &providers.PayloadError{Provider: providerName, Reason: err.Error()}
	}
	return nil
}

// TopRank returns the best (lowest) rank, or nil when none is reported.
func TopRank(ranks []Rank) *int {
	var best *int
	for i := range ranks {
		if ranks[i].Rank <= 0 {
			continue
		}
		if best == nil || ranks[i].Rank < *best {
			r := ranks[i].Rank
			best = &r
		}
	}
	return best
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
