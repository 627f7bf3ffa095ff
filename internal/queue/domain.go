// Package queue manages the Shopify sync queue: items waiting to be pushed to
// the storefront, the persisted pause flag, and the operator actions on both.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// Ad hoc error codes carried in the response envelope.
const (
	CodeUnknownAction = "QUEUE_001"
	CodePaused        = "QUEUE_002"
	CodeIDsRequired   = "QUEUE_003"
)

var (
	// ErrPaused is returned when processing is requested while paused.
	ErrPaused = fmt.Errorf("queue is paused: %w", httpx.ErrConflict)
	// ErrPublisherMissing indicates Shopify credentials are not configured.
	ErrPublisherMissing = errors.New("shopify publisher not configured")
	// ErrStaleProcessing is recorded on items reclaimed from a dead drain.
	ErrStaleProcessing = errors.New("reclaimed after stalled processing")
)

// DefaultStaleAfter is how long an item may sit in processing before a drain
// or retry_failed reclaims it. It exceeds the drain task timeout.
const DefaultStaleAfter = 30 * time.Minute

// Status of a sync item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSynced     Status = "synced"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// Operation to perform on the storefront.
type Operation string

const OperationCreate Operation = "create"

// Item is one row of the sync queue.
type Item struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	ASIN             string    `json:"asin"`
	Operation        Operation `json:"operation"`
	Status           Status    `json:"status"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"last_error,omitempty"`
	ShopifyProductID *int64    `json:"shopify_product_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Stats counts items per status.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// State is the persisted pause flag.
type State struct {
	Paused    bool      `json:"paused"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows GET /queue.
type ListFilter struct {
	Status Status
	Limit  int
}

// Snapshot is the GET /queue payload.
type Snapshot struct {
	Items  []Item `json:"items"`
	Stats  Stats  `json:"stats"`
	Paused bool   `json:"paused"`
}

// Claimed is a sync item joined with the product data needed to publish it.
type Claimed struct {
	ItemID      int64
	ProductID   int64
	ASIN        string
	Operation   Operation
	Title       string
	Description string
	Brand       string
	ImageURL    string
	SellPrice   decimal.Decimal
}

// ActionRequest is the POST /queue body.
type ActionRequest struct {
	Action string  `json:"action" validate:"required"`
	IDs    []int64 `json:"ids,omitempty" validate:"omitempty,max=500,dive,gt=0"`
	Limit  int     `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

// ActionResult reports the effect of an action.
type ActionResult struct {
	Action    string          `json:"action"`
	Affected  int             `json:"affected"`
	Paused    bool            `json:"paused"`
	Processed *ProcessSummary `json:"processed,omitempty"`
}

// ProcessResult is the per-item outcome of a drain.
type ProcessResult struct {
	ID               int64  `json:"id"`
	ASIN             string `json:"asin"`
	Synced           bool   `json:"synced"`
	ShopifyProductID int64  `json:"shopify_product_id,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ProcessSummary aggregates a drain.
type ProcessSummary struct {
	Claimed int             `json:"claimed"`
	Synced  int             `json:"synced"`
	Failed  int             `json:"failed"`
	Items   []ProcessResult `json:"items"`
}
