// Package stock checks live Amazon availability for a batch of ASINs through
// an ordered chain of product-data providers.
package stock

import (
	"context"
	"errors"
	"time"
)

// ErrAvailabilityUnknown is returned by a provider that answered but could not
// tell whether the item is in stock.
var ErrAvailabilityUnknown = errors.New("availability unknown")

// Observation is what a provider reports for one ASIN.
type Observation struct {
	InStock  bool
	Price    *float64
	Currency string
}

// Provider looks up one ASIN.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, asin string) (Observation, error)
}

// CheckRequest is the POST /stock-check body.
type CheckRequest struct {
	ASINs []string `json:"asins" validate:"required,min=1,dive,len=10,alphanum"`
}

// Result is the per-ASIN outcome.
type Result struct {
	ASIN      string    `json:"asin"`
	InStock   *bool     `json:"in_stock"`
	Price     *float64  `json:"price,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Source    string    `json:"source,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Cached    bool      `json:"cached"`
	Error     string    `json:"error,omitempty"`
}

// Summary aggregates a batch.
type Summary struct {
	Total      int `json:"total"`
	InStock    int `json:"in_stock"`
	OutOfStock int `json:"out_of_stock"`
	Failed     int `json:"failed"`
	Fallbacks  int `json:"fallbacks"`
}

// Report is the POST /stock-check payload.
type Report struct {
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}
