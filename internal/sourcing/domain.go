// Package sourcing discovers candidate products on Amazon, prices them with a
// fixed markup, and imports the ones that pass the operator's filter criteria.
package sourcing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

var (
	// ErrRunNotFound indicates the requested sourcing run does not exist.
	ErrRunNotFound = fmt.Errorf("sourcing run %w", httpx.ErrNotFound)
	// ErrRunFinalised is returned when a terminal run would be mutated.
	ErrRunFinalised = errors.New("sourcing run already finalised")
	// ErrSearchFailed wraps candidate search failures.
	ErrSearchFailed = errors.New("search failed")
	// ErrScheduleDisabled is returned when a scheduled run fires while disabled.
	ErrScheduleDisabled = errors.New("scheduled sourcing disabled")
)

// FilterCriteria gates candidate products. A single active version is held in
// the settings store.
type FilterCriteria struct {
	SearchTerm        string   `json:"search_term" validate:"required,max=200"`
	MinPrice          float64  `json:"min_price" validate:"gte=0"`
	MaxPrice          float64  `json:"max_price" validate:"gt=0,gtefield=MinPrice"`
	MinProfitMargin   float64  `json:"min_profit_margin" validate:"gte=0,lt=100"`
	MinReviews        int      `json:"min_reviews" validate:"gte=0"`
	MinRating         float64  `json:"min_rating" validate:"gte=0,lte=5"`
	MaxBSR            int      `json:"max_bsr" validate:"gte=0"`
	RequirePrime      bool     `json:"require_prime"`
	ExcludedBrands    []string `json:"excluded_brands" validate:"max=500,dive,required,max=100"`
	MaxProductsPerRun int      `json:"max_products_per_run" validate:"gte=1,lte=100"`
}

// DefaultCriteria is used until an operator saves criteria.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{
		MinPrice:          10,
		MaxPrice:          60,
		MinProfitMargin:   30,
		MinReviews:        100,
		MinRating:         4.0,
		MaxBSR:            100000,
		RequirePrime:      true,
		ExcludedBrands:    []string{},
		MaxProductsPerRun: 20,
	}
}

// brandExcluded matches exactly and case-sensitively.
func (c FilterCriteria) brandExcluded(brand string) bool {
	for _, excluded := range c.ExcludedBrands {
		if excluded == brand {
			return true
		}
	}
	return false
}

// CandidateProduct is a search hit. Absent upstream values stay nil.
type CandidateProduct struct {
	ASIN        string   `json:"asin"`
	Title       string   `json:"title"`
	Brand       string   `json:"brand,omitempty"`
	Price       *float64 `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"review_count"`
	BSR         *int     `json:"bsr"`
	IsPrime     bool     `json:"is_prime"`
	ImageURL    string   `json:"image_url,omitempty"`
	Link        string   `json:"link,omitempty"`
}

// EvaluatedProduct carries the derived pricing of a candidate.
type EvaluatedProduct struct {
	CandidateProduct
	SourcePrice            decimal.Decimal `json:"source_price"`
	EstimatedSellPrice     decimal.Decimal `json:"estimated_sell_price"`
	EstimatedProfit        decimal.Decimal `json:"estimated_profit"`
	EstimatedProfitPercent decimal.Decimal `json:"estimated_profit_percent"`
}

// RejectReason names a failed threshold.
type RejectReason string

const (
	ReasonPriceInvalid     RejectReason = "price_invalid"
	ReasonPriceOutOfRange  RejectReason = "price_out_of_range"
	ReasonMarginTooLow     RejectReason = "margin_below_minimum"
	ReasonReviewsMissing   RejectReason = "reviews_missing"
	ReasonReviewsTooFew    RejectReason = "reviews_below_minimum"
	ReasonRatingMissing    RejectReason = "rating_missing"
	ReasonRatingTooLow     RejectReason = "rating_below_minimum"
	ReasonBSRMissing       RejectReason = "bsr_missing"
	ReasonBSRTooHigh       RejectReason = "bsr_above_maximum"
	ReasonPrimeRequired    RejectReason = "prime_required"
	ReasonBrandExcluded    RejectReason = "brand_excluded"
	ReasonRunLimitReached  RejectReason = "run_limit_reached"
	ReasonDuplicateInBatch RejectReason = "duplicate_in_batch"
)

// Rejection reports why a candidate was not accepted.
type Rejection struct {
	ASIN    string         `json:"asin"`
	Title   string         `json:"title"`
	Reasons []RejectReason `json:"reasons"`
}

// RunStatus captures the lifecycle of a sourcing run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// SourcingRun is one ledger row per invocation.
type SourcingRun struct {
	ID            uuid.UUID  `json:"id"`
	Trigger       Trigger    `json:"trigger"`
	Status        RunStatus  `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	TotalFound    int        `json:"total_found"`
	TotalAccepted int        `json:"total_accepted"`
	TotalImported int        `json:"total_imported"`
	TotalRejected int        `json:"total_rejected"`
	ImportFailed  int        `json:"import_failed"`
	Error         string     `json:"error,omitempty"`
}

// Schedule toggles the cron-triggered sourcing job.
type Schedule struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunResult is returned to the caller of a run.
type RunResult struct {
	Run      SourcingRun  `json:"run"`
	Imports  []ItemResult `json:"imports"`
	Rejected []Rejection  `json:"rejected"`
}

// Preview is a dry run: search plus evaluation without imports.
type Preview struct {
	Criteria FilterCriteria     `json:"criteria"`
	Accepted []EvaluatedProduct `json:"accepted"`
	Rejected []Rejection        `json:"rejected"`
}
