package sourcing

import (
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the outcome of checking one candidate.
type Evaluation struct {
	Product  EvaluatedProduct
	Accepted bool
	Reasons  []RejectReason
}

// Evaluator derives sell price and margin from a fixed markup and applies the
// filter thresholds. It performs no I/O.
type Evaluator struct {
	markup decimal.Decimal
	logger *slog.Logger
}

// NewEvaluator constructs an evaluator for markup multiplier m.
func NewEvaluator(markup float64, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{markup: decimal.NewFromFloat(markup), logger: logger}
}

// Price computes sell price, profit and profit percent for a positive source
// price.
func (e *Evaluator) Price(source decimal.Decimal) (sell, profit, percent decimal.Decimal) {
	sell = source.Mul(e.markup)
	profit = sell.Sub(source)
	if sell.IsPositive() {
		percent = profit.Div(sell).Mul(hundred)
	}
	return sell, profit, percent
}

// Evaluate checks a candidate against criteria. Every failing threshold is
// reported, not only the first.
func (e *Evaluator) Evaluate(c CandidateProduct, criteria FilterCriteria) Evaluation {
	ev := Evaluation{Product: EvaluatedProduct{CandidateProduct: c}}
	reject := func(r RejectReason) {
		ev.Reasons = append(ev.Reasons, r)
	}

	if c.Price == nil || math.IsNaN(*c.Price) || math.IsInf(*c.Price, 0) || *c.Price <= 0 {
		e.logger.Debug("candidate rejected: unusable price", slog.String("asin", c.ASIN))
		reject(ReasonPriceInvalid)
	} else {
		source := decimal.NewFromFloat(*c.Price)
		sell, profit, percent := e.Price(source)
		ev.Product.SourcePrice = source
		ev.Product.EstimatedSellPrice = sell
		ev.Product.EstimatedProfit = profit
		ev.Product.EstimatedProfitPercent = percent

		if source.LessThan(decimal.NewFromFloat(criteria.MinPrice)) || source.GreaterThan(decimal.NewFromFloat(criteria.MaxPrice)) {
			reject(ReasonPriceOutOfRange)
		}
		if percent.LessThan(decimal.NewFromFloat(criteria.MinProfitMargin)) {
			reject(ReasonMarginTooLow)
		}
	}

	switch {
	case c.ReviewCount == nil:
		reject(ReasonReviewsMissing)
	case *c.ReviewCount < criteria.MinReviews:
		reject(ReasonReviewsTooFew)
	}

	switch {
	case c.Rating == nil:
		reject(ReasonRatingMissing)
	case *c.Rating < criteria.MinRating:
		reject(ReasonRatingTooLow)
	}

	if criteria.MaxBSR > 0 {
		switch {
		case c.BSR == nil:
			reject(ReasonBSRMissing)
		case *c.BSR > criteria.MaxBSR:
			reject(ReasonBSRTooHigh)
		}
	}

	if criteria.RequirePrime && !c.IsPrime {
		reject(ReasonPrimeRequired)
	}
	if criteria.brandExcluded(c.Brand) {
		reject(ReasonBrandExcluded)
	}

	ev.Accepted = len(ev.Reasons) == 0
	return ev
}

// EvaluateAll evaluates candidates in order. Accepted products keep their
// search order and are capped at criteria.MaxProductsPerRun; overflow and
// repeated ASINs are reported as rejections.
func (e *Evaluator) EvaluateAll(candidates []CandidateProduct, criteria FilterCriteria) ([]EvaluatedProduct, []Rejection) {
	accepted := make([]EvaluatedProduct, 0, len(candidates))
	rejected := make([]Rejection, 0)
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ASIN]; dup {
			rejected = append(rejected, Rejection{ASIN: c.ASIN, Title: c.Title, Reasons: []RejectReason{ReasonDuplicateInBatch}})
			continue
		}
		seen[c.ASIN] = struct{}{}

		ev := e.Evaluate(c, criteria)
		if ev.Accepted && criteria.MaxProductsPerRun > 0 && len(accepted) >= criteria.MaxProductsPerRun {
			ev.Accepted = false
			ev.Reasons = append(ev.Reasons, ReasonRunLimitReached)
		}
		if !ev.Accepted {
			rejected = append(rejected, Rejection{ASIN: c.ASIN, Title: c.Title, Reasons: ev.Reasons})
			continue
		}
		accepted = append(accepted, ev.Product)
	}
	return accepted, rejected
}
