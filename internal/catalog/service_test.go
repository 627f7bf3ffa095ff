package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/sourcing"
)

type memoryRepo struct {
	mu       sync.Mutex
	products map[string]Product
	queued   []string
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[string]Product{}}
}

func (r *memoryRepo) Create(_ context.Context, in NewProduct, enqueue bool) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[in.ASIN]; ok {
		return Product{}, ErrDuplicateASIN
	}
	r.nextID++
	p := Product{
		ID: r.nextID, ASIN: in.ASIN, Title: in.Title, Brand: in.Brand, CostPrice: in.CostPrice, SellPrice: in.SellPrice,
		Currency: in.Currency, Rating: in.Rating, ReviewCount: in.ReviewCount, BSR: in.BSR, IsPrime: in.IsPrime,
		Source: in.Source, SourcingRunID: in.SourcingRunID, SourceURL: in.SourceURL, CreatedAt: time.Now(),
	}
	r.products[in.ASIN] = p
	if enqueue {
		r.queued = append(r.queued, in.ASIN)
	}
	return p, nil
}

func (r *memoryRepo) GetByASIN(_ context.Context, asin string) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[asin]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(_ context.Context, f ListFilter) ([]Product, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Product{}
	for _, p := range r.products {
		if f.Source == "" || p.Source == f.Source {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateAvailability(_ context.Context, asin string, a Availability) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[asin]
	if !ok {
		return false, nil
	}
	p.InStock = &a.InStock
	p.LastCheckedAt = &a.CheckedAt
	if a.Price != nil {
		p.CostPrice = *a.Price
	}
	r.products[asin] = p
	return true, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestImportStoresEvaluatedProductAndQueuesSync(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, 1.7, quietLogger())
	runID := uuid.New()
	rating := 4.4

	p := sourcing.EvaluatedProduct{
		CandidateProduct:   sourcing.CandidateProduct{ASIN: "B0CAT00001", Title: "Lamp", Rating: &rating, Link: "https://amazon.com/dp/B0CAT00001"},
		SourcePrice:        decimal.RequireFromString("9.99"),
		EstimatedSellPrice: decimal.RequireFromString("16.983"),
	}
	require.NoError(t, svc.Import(context.Background(), runID, p))

	stored := repo.products["B0CAT00001"]
	assert.Equal(t, "16.98", stored.SellPrice.StringFixed(2))
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, SourceSourcing, stored.Source)
	assert.Equal(t, runID, *stored.SourcingRunID)
	assert.Equal(t, []string{"B0CAT00001"}, repo.queued)

	err := svc.Import(context.Background(), runID, p)
	assert.ErrorIs(t, err, ErrDuplicateASIN)
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateManual(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, 1.5, quietLogger())

	p, err := svc.CreateManual(context.Background(), NewProduct{ASIN: " b0man00001 ", Title: "Desk", CostPrice: decimal.NewFromInt(20)}, false)
	require.NoError(t, err)
	assert.Equal(t, "B0MAN00001", p.ASIN)
	assert.Equal(t, "30.00", p.SellPrice.StringFixed(2))
	assert.Equal(t, SourceManual, p.Source)
	assert.Empty(t, repo.queued)

	_, err = svc.CreateManual(context.Background(), NewProduct{ASIN: "SHORT", Title: "Desk", CostPrice: decimal.NewFromInt(1)}, false)
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), `"asin"`)

	_, err = svc.CreateManual(context.Background(), NewProduct{ASIN: "B0MAN00002", Title: "Desk"}, false)
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "cost_price")
}

func TestHandlerGetAndList(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, 1.7, quietLogger())
	_, err := svc.CreateManual(context.Background(), NewProduct{ASIN: "B0HAND0001", Title: "Chair", CostPrice: decimal.NewFromInt(10)}, true)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(quietLogger(), svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/b0hand0001", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/B0MISSING1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?source=manual", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?in_stock=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
