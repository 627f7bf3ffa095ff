// Package catalog stores the local product catalog keyed by ASIN.
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

var (
	// ErrProductNotFound indicates no product has the ASIN.
	ErrProductNotFound = fmt.Errorf("product %w", httpx.ErrNotFound)
	// ErrDuplicateASIN indicates the ASIN is already in the catalog.
	ErrDuplicateASIN = fmt.Errorf("asin already in catalog: %w", httpx.ErrConflict)
)

// Source records how a product entered the catalog.
type Source string

const (
	SourceSourcing Source = "sourcing"
	SourceManual   Source = "manual"
)

// Product is a catalog row.
type Product struct {
	ID               int64           `json:"id"`
	ASIN             string          `json:"asin"`
	Title            string          `json:"title"`
	Brand            string          `json:"brand,omitempty"`
	Description      string          `json:"description,omitempty"`
	ImageURL         string          `json:"image_url,omitempty"`
	SourceURL        string          `json:"source_url,omitempty"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	Currency         string          `json:"currency"`
	Rating           *float64        `json:"rating,omitempty"`
	ReviewCount      *int            `json:"review_count,omitempty"`
	BSR              *int            `json:"bsr,omitempty"`
	IsPrime          bool            `json:"is_prime"`
	InStock          *bool           `json:"in_stock,omitempty"`
	LastCheckedAt    *time.Time      `json:"last_checked_at,omitempty"`
	Source           Source          `json:"source"`
	SourcingRunID    *uuid.UUID      `json:"sourcing_run_id,omitempty"`
	ShopifyProductID *int64          `json:"shopify_product_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewProduct is the input to create a product.
type NewProduct struct {
	ASIN          string          `json:"asin" validate:"required,len=10,alphanum"`
	Title         string          `json:"title" validate:"required,max=500"`
	Brand         string          `json:"brand" validate:"max=200"`
	Description   string          `json:"description" validate:"max=20000"`
	ImageURL      string          `json:"image_url" validate:"omitempty,url"`
	SourceURL     string          `json:"source_url" validate:"omitempty,url"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	Rating        *float64        `json:"rating" validate:"omitempty,gte=0,lte=5"`
	ReviewCount   *int            `json:"review_count" validate:"omitempty,gte=0"`
	BSR           *int            `json:"bsr" validate:"omitempty,gt=0"`
	IsPrime       bool            `json:"is_prime"`
	Source        Source          `json:"source"`
	SourcingRunID *uuid.UUID      `json:"sourcing_run_id"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Source  Source
	InStock *bool
	Search  string
	Limit   int
	Offset  int
}

// Availability is a stock observation.
type Availability struct {
	InStock   bool
	Price     *decimal.Decimal
	CheckedAt time.Time
}
