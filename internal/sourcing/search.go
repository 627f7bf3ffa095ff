package sourcing

import (
	"context"
	"fmt"

	"github.com/dropship-ops/opsdash/internal/providers"
	"github.com/dropship-ops/opsdash/internal/providers/rainforest"
)

// SearchClient finds candidate products matching the criteria.
type SearchClient interface {
	Search(ctx context.Context, criteria FilterCriteria, pageSize int) ([]CandidateProduct, error)
}

// RainforestSearch adapts the Rainforest API to SearchClient.
type RainforestSearch struct {
	client  *rainforest.Client
	metrics *providers.Metrics
}

// NewRainforestSearch wraps client. metrics may be nil.
func NewRainforestSearch(client *rainforest.Client, metrics *providers.Metrics) *RainforestSearch {
	return &RainforestSearch{client: client, metrics: metrics}
}

// Search issues a single search request; failures are never retried.
func (s *RainforestSearch) Search(ctx context.Context, criteria FilterCriteria, pageSize int) ([]CandidateProduct, error) {
	results, err := s.client.Search(ctx, rainforest.SearchParams{
		Term:     criteria.SearchTerm,
		MinPrice: criteria.MinPrice,
		MaxPrice: criteria.MaxPrice,
	})
	s.metrics.Observe(s.client.Name(), "search", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if pageSize > 0 && len(results) > pageSize {
		results = results[:pageSize]
	}
	out := make([]CandidateProduct, 0, len(results))
	for _, r := range results {
		if r.ASIN == "" {
			continue
		}
		out = append(out, candidateFromResult(r))
	}
	return out, nil
}

func candidateFromResult(r rainforest.SearchResult) CandidateProduct {
	c := CandidateProduct{
		ASIN:        r.ASIN,
		Title:       r.Title,
		Brand:       r.Brand,
		Rating:      r.Rating,
		ReviewCount: r.RatingsTotal,
		BSR:         rainforest.TopRank(r.BestsellersRank),
		IsPrime:     r.IsPrime,
		ImageURL:    r.Image,
		Link:        r.Link,
	}
	if r.Price != nil {
		c.Price = r.Price.Value
		c.Currency = r.Price.Currency
	}
	return c
}

// PageSize returns the number of candidates requested for a run.
func PageSize(configured int, criteria FilterCriteria) int {
	if configured <= 0 || criteria.MaxProductsPerRun < configured {
		return criteria.MaxProductsPerRun
	}
	return configured
}
