package sourcing

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openCriteria() FilterCriteria {
	return FilterCriteria{
		SearchTerm:        "yoga mat",
		MinPrice:          5,
		MaxPrice:          50,
		MinProfitMargin:   30,
		MinReviews:        100,
		MinRating:         3.5,
		ExcludedBrands:    []string{},
		MaxProductsPerRun: 20,
	}
}

func candidate(asin string, price, rating float64, reviews int) CandidateProduct {
	return CandidateProduct{ASIN: asin, Title: "Item " + asin, Price: ptr(price), Rating: ptr(rating), ReviewCount: ptr(reviews)}
}

func TestEvaluatorPricingExample(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	sell, profit, percent := ev.Price(decimal.RequireFromString("9.99"))

	assert.True(t, sell.Equal(decimal.RequireFromString("16.983")), "sell=%s", sell)
	assert.True(t, profit.Equal(decimal.RequireFromString("6.993")), "profit=%s", profit)
	assert.Equal(t, "41.18", percent.StringFixed(2))
}

func TestEvaluatorSellAboveSourceAndPercentBounded(t *testing.T) {
	for _, markup := range []float64{1.01, 1.5, 1.7, 3} {
		ev := NewEvaluator(markup, quietLogger())
		for _, price := range []string{"0.01", "1", "9.99", "59.5", "1999.99"} {
			source := decimal.RequireFromString(price)
			sell, _, percent := ev.Price(source)
			require.True(t, sell.GreaterThan(source), "markup %v price %s", markup, price)
			require.True(t, percent.IsPositive() && percent.LessThan(hundred), "markup %v price %s percent %s", markup, price, percent)
		}
	}
}

func TestEvaluatorRatingBoundary(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()
	criteria.MinRating = 4.0

	at := ev.Evaluate(candidate("B000000001", 10, 4.0, 500), criteria)
	assert.True(t, at.Accepted)
	assert.Empty(t, at.Reasons)

	below := ev.Evaluate(candidate("B000000002", 10, 3.99, 500), criteria)
	assert.False(t, below.Accepted)
	assert.Equal(t, []RejectReason{ReasonRatingTooLow}, below.Reasons)
}

func TestEvaluatorRejectsLowRatingRegardlessOfOtherFields(t *testing.T) {
	ev := NewEvaluator(3, quietLogger())
	criteria := openCriteria()
	c := candidate("B000000003", 20, 2.0, 100000)
	c.IsPrime = true
	c.BSR = ptr(1)

	got := ev.Evaluate(c, criteria)
	assert.False(t, got.Accepted)
	assert.Contains(t, got.Reasons, ReasonRatingTooLow)
}

func TestEvaluatorBrandExclusionIsExactAndCaseSensitive(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()
	criteria.ExcludedBrands = []string{"Acme"}

	cases := []struct {
		brand    string
		accepted bool
	}{
		{"Acme", false},
		{"acme", true},
		{"Acme Tools", true},
		{"", true},
	}
	for _, tc := range cases {
		c := candidate("B000000004", 10, 4.5, 500)
		c.Brand = tc.brand
		got := ev.Evaluate(c, criteria)
		assert.Equal(t, tc.accepted, got.Accepted, "brand %q", tc.brand)
	}
}

func TestEvaluatorMissingData(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()
	criteria.MaxBSR = 5000

	got := ev.Evaluate(CandidateProduct{ASIN: "B000000005"}, criteria)
	assert.False(t, got.Accepted)
	assert.ElementsMatch(t, []RejectReason{ReasonPriceInvalid, ReasonReviewsMissing, ReasonRatingMissing, ReasonBSRMissing}, got.Reasons)

	zero := candidate("B000000006", 0, 4.5, 500)
	zero.BSR = ptr(10)
	got = ev.Evaluate(zero, criteria)
	assert.Equal(t, []RejectReason{ReasonPriceInvalid}, got.Reasons)
}

func TestEvaluatorNonFinitePriceIsRejected(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	for _, price := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		got := ev.Evaluate(candidate("B000000009", price, 4.5, 500), openCriteria())
		assert.False(t, got.Accepted)
		assert.Equal(t, []RejectReason{ReasonPriceInvalid}, got.Reasons)
	}
}

func TestEvaluatorThresholds(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()
	criteria.MaxBSR = 1000
	criteria.RequirePrime = true

	c := candidate("B000000007", 60, 4.5, 50)
	c.BSR = ptr(5000)
	got := ev.Evaluate(c, criteria)
	assert.ElementsMatch(t, []RejectReason{ReasonPriceOutOfRange, ReasonReviewsTooFew, ReasonBSRTooHigh, ReasonPrimeRequired}, got.Reasons)

	criteria.MinProfitMargin = 45
	c = candidate("B000000008", 10, 4.5, 500)
	c.BSR = ptr(10)
	c.IsPrime = true
	got = ev.Evaluate(c, criteria)
	assert.Equal(t, []RejectReason{ReasonMarginTooLow}, got.Reasons)
}

func TestEvaluateAllTwoCandidateExample(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()

	accepted, rejected := ev.EvaluateAll([]CandidateProduct{
		candidate("B0000000A1", 10, 4.2, 600),
		candidate("B0000000A2", 10, 3.0, 600),
	}, criteria)

	require.Len(t, accepted, 1)
	assert.Equal(t, "B0000000A1", accepted[0].ASIN)
	require.Len(t, rejected, 1)
	assert.Equal(t, "B0000000A2", rejected[0].ASIN)
	assert.Equal(t, []RejectReason{ReasonRatingTooLow}, rejected[0].Reasons)
}

func TestEvaluateAllCapsAndDedupes(t *testing.T) {
	ev := NewEvaluator(1.70, quietLogger())
	criteria := openCriteria()
	criteria.MaxProductsPerRun = 2

	accepted, rejected := ev.EvaluateAll([]CandidateProduct{
		candidate("B000000011", 10, 4.5, 500),
		candidate("B000000011", 10, 4.5, 500),
		candidate("B000000012", 12, 4.5, 500),
		candidate("B000000013", 14, 4.5, 500),
	}, criteria)

	require.Len(t, accepted, 2)
	assert.Equal(t, "B000000011", accepted[0].ASIN)
	assert.Equal(t, "B000000012", accepted[1].ASIN)
	require.Len(t, rejected, 2)
	assert.Equal(t, []RejectReason{ReasonDuplicateInBatch}, rejected[0].Reasons)
	assert.Equal(t, []RejectReason{ReasonRunLimitReached}, rejected[1].Reasons)
}
