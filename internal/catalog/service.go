package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/sourcing"
)

// Service manages catalog products.
type Service struct {
	repo     Repository
	markup   decimal.Decimal
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds the service. markup prices manual products that arrive
// without a sell price.
func NewService(repo Repository, markup float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, markup: decimal.NewFromFloat(markup), validate: httpx.NewValidator(), logger: logger}
}

// Import stores an accepted sourcing candidate and queues it for Shopify.
func (s *Service) Import(ctx context.Context, runID uuid.UUID, p sourcing.EvaluatedProduct) error {
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	id := runID
	input := NewProduct{
		ASIN:          p.ASIN,
		Title:         p.Title,
		Brand:         p.Brand,
		ImageURL:      p.ImageURL,
		SourceURL:     p.Link,
		CostPrice:     p.SourcePrice,
		SellPrice:     p.EstimatedSellPrice.Round(2),
		Currency:      currency,
		Rating:        p.Rating,
		ReviewCount:   p.ReviewCount,
		BSR:           p.BSR,
		IsPrime:       p.IsPrime,
		Source:        SourceSourcing,
		SourcingRunID: &id,
	}
	_, err := s.repo.Create(ctx, input, true)
	return err
}

// CreateManual validates and stores an operator supplied product. The
// product is queued for Shopify sync when queueSync is set.
func (s *Service) CreateManual(ctx context.Context, input NewProduct, queueSync bool) (Product, error) {
	input.ASIN = strings.ToUpper(strings.TrimSpace(input.ASIN))
	input.Title = strings.TrimSpace(input.Title)
	input.Source = SourceManual
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if err := httpx.Validate(s.validate, input); err != nil {
		return Product{}, err
	}
	if !input.CostPrice.IsPositive() {
		return Product{}, httpx.Invalid("field %q failed %q", "cost_price", "gt")
	}
	if input.SellPrice.IsZero() {
		input.SellPrice = input.CostPrice.Mul(s.markup).Round(2)
	}
	return s.repo.Create(ctx, input, queueSync)
}

// GetByASIN returns one product.
func (s *Service) GetByASIN(ctx context.Context, asin string) (Product, error) {
	return s.repo.GetByASIN(ctx, strings.ToUpper(strings.TrimSpace(asin)))
}

// List returns a page of products and the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// UpdateAvailability records a stock observation; unknown ASINs are ignored.
func (s *Service) UpdateAvailability(ctx context.Context, asin string, a Availability) (bool, error) {
	found, err := s.repo.UpdateAvailability(ctx, asin, a)
	if err != nil {
		return false, err
	}
	if found {
		s.logger.Debug("catalog availability updated", slog.String("asin", asin), slog.Bool("in_stock", a.InStock))
	}
	return found, nil
}
