package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dropship-ops/opsdash/internal/catalog"
	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/platform/throttle"
	"github.com/dropship-ops/opsdash/internal/providers"
)

// CatalogUpdater records availability on catalog products.
type CatalogUpdater interface {
	UpdateAvailability(ctx context.Context, asin string, a catalog.Availability) (bool, error)
}

// Config tunes the checker.
type Config struct {
	MaxBatch      int
	CacheSize     int
	CacheTTL      time.Duration
	// LookupTimeout bounds one coalesced provider lookup. Defaults to 30s.
	LookupTimeout time.Duration
}

// Service checks availability with provider fallback. Provider calls share
// one pacer across all requests; concurrent lookups of the same ASIN run once.
type Service struct {
	providers     []Provider
	pacer         *throttle.Pacer
	catalog       CatalogUpdater
	metrics       *providers.Metrics
	cache         *expirable.LRU[string, Result]
	group         singleflight.Group
	maxBatch      int
	lookupTimeout time.Duration
	validate      *validator.Validate
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the checker. Providers are tried in the given order.
func NewService(chain []Provider, pacer *throttle.Pacer, updater CatalogUpdater, metrics *providers.Metrics, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 30 * time.Second
	}
	return &Service{
		providers:     chain,
		pacer:         pacer,
		catalog:       updater,
		metrics:       metrics,
		cache:         expirable.NewLRU[string, Result](cfg.CacheSize, nil, cfg.CacheTTL),
		maxBatch:      cfg.MaxBatch,
		lookupTimeout: cfg.LookupTimeout,
		validate:      httpx.NewValidator(),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Check looks up every ASIN in order. A failing ASIN is reported in its
// result and never aborts the batch.
func (s *Service) Check(ctx context.Context, req CheckRequest) (Report, error) {
	for i := range req.ASINs {
		req.ASINs[i] = strings.ToUpper(strings.TrimSpace(req.ASINs[i]))
	}
	if err := httpx.Validate(s.validate, req); err != nil {
		return Report{}, err
	}
	if len(req.ASINs) > s.maxBatch {
		return Report{}, httpx.Invalid("at most %d asins per request", s.maxBatch)
	}

	report := Report{Results: make([]Result, 0, len(req.ASINs))}
	for _, asin := range req.ASINs {
		res := s.checkOne(ctx, asin)
		report.Results = append(report.Results, res)
		report.Summary.Total++
		switch {
		case res.Error != "":
			report.Summary.Failed++
		case *res.InStock:
			report.Summary.InStock++
		default:
			report.Summary.OutOfStock++
		}
		if res.Error == "" && len(s.providers) > 0 && res.Source != s.providers[0].Name() && !res.Cached {
			report.Summary.Fallbacks++
		}
	}
	return report, nil
}

func (s *Service) checkOne(ctx context.Context, asin string) Result {
	if cached, ok := s.cache.Get(asin); ok {
		cached.Cached = true
		return cached
	}
	// The shared lookup outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := s.group.DoChan(asin, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lookupTimeout)
		defer cancel()
		return s.lookup(lookupCtx, asin), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{ASIN: asin, CheckedAt: s.now(), Error: res.Err.Error()}
		}
		return res.Val.(Result)
	case <-ctx.Done():
		return Result{ASIN: asin, CheckedAt: s.now(), Error: ctx.Err().Error()}
	}
}

func (s *Service) lookup(ctx context.Context, asin string) Result {
	var errs []error
	for _, p := range s.providers {
		if err := s.pacer.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		obs, err := p.Lookup(ctx, asin)
		s.metrics.Observe(p.Name(), "product", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			s.logger.Debug("stock provider failed", slog.String("asin", asin), slog.String("provider", p.Name()), slog.Any("error", err))
			continue
		}
		inStock := obs.InStock
		res := Result{
			ASIN:      asin,
			InStock:   &inStock,
			Price:     obs.Price,
			Currency:  obs.Currency,
			Source:    p.Name(),
			CheckedAt: s.now(),
		}
		s.cache.Add(asin, res)
		s.record(ctx, res)
		return res
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no stock providers configured"))
	}
	return Result{ASIN: asin, CheckedAt: s.now(), Error: errors.Join(errs...).Error()}
}

func (s *Service) record(ctx context.Context, res Result) {
	if s.catalog == nil {
		return
	}
	a := catalog.Availability{InStock: *res.InStock, CheckedAt: res.CheckedAt}
	if res.Price != nil {
		price := decimal.NewFromFloat(*res.Price)
		a.Price = &price
	}
	if _, err := s.catalog.UpdateAvailability(context.WithoutCancel(ctx), res.ASIN, a); err != nil {
		s.logger.Warn("record availability", slog.String("asin", res.ASIN), slog.Any("error", err))
	}
}

// Purge empties the result cache.
func (s *Service) Purge() {
	s.cache.Purge()
}
