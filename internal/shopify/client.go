// Package shopify is a minimal Shopify Admin REST API client.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropship-ops/opsdash/internal/providers"
)

// ErrNotConfigured is returned when shop or token is missing.
var ErrNotConfigured = errors.New("shopify: store credentials not configured")

// Variant is a purchasable option of a product.
type Variant struct {
	Price               string `json:"price"`
	CompareAtPrice      string `json:"compare_at_price,omitempty"`
	SKU                 string `json:"sku,omitempty"`
	InventoryManagement string `json:"inventory_management,omitempty"`
	InventoryPolicy     string `json:"inventory_policy,omitempty"`
}

// Image references a remote product image.
type Image struct {
	Src string `json:"src"`
}

// ProductInput is the body of a product create call.
type ProductInput struct {
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Tags        string    `json:"tags,omitempty"`
	Status      string    `json:"status,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
	Images      []Image   `json:"images,omitempty"`
}

// Client talks to one shop.
type Client struct {
	baseURL    string
	token      string
	version    string
	httpClient *http.Client
}

// NewClient builds a client for shop (either "name" or "name.myshopify.com").
func NewClient(shop, token, version string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	base := ""
	if shop != "" {
		host := strings.TrimSuffix(strings.TrimPrefix(shop, "https://"), "/")
		if !strings.Contains(host, ".") {
			host += ".myshopify.com"
		}
		base = "https://" + host
	}
	return &Client{baseURL: base, token: token, version: version, httpClient: &http.Client{Timeout: timeout}}
}

// WithHTTPClient swaps the transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CreateProduct creates a product and returns its Shopify ID.
func (c *Client) CreateProduct(ctx context.Context, input ProductInput) (int64, error) {
	if c.baseURL == "" || c.token == "" {
		return 0, ErrNotConfigured
	}
	body, err := json.Marshal(map[string]ProductInput{"product": input})
	if err != nil {
		return 0, fmt.Errorf("shopify: encode product: %w", err)
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/products.json", c.baseURL, c.version)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("shopify: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("shopify: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &providers.StatusError{Provider: "shopify", Code: resp.StatusCode, Body: providers.Excerpt(raw)}
	}
	var payload struct {
		Product struct {
			ID int64 `json:"id"`
		} `json:"product"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, &providers.PayloadError{Provider: "shopify", Reason: err.Error()}
	}
	if payload.Product.ID == 0 {
		return 0, &providers.PayloadError{Provider: "shopify", Reason: "product id missing"}
	}
	return payload.Product.ID, nil
}
