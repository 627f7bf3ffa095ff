package sourcing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/throttle"
)

// Importer persists one accepted product.
type Importer interface {
	Import(ctx context.Context, runID uuid.UUID, product EvaluatedProduct) error
}

// ItemResult is the per-product outcome of an import.
type ItemResult struct {
	ASIN     string `json:"asin"`
	Imported bool   `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// ImportSummary aggregates an import batch.
type ImportSummary struct {
	Attempted int
	Imported  int
	Failed    int
	Items     []ItemResult
	Elapsed   time.Duration
}

// ImportExecutor imports products one at a time, spaced by a pacer. A failing
// item is recorded and the batch continues.
type ImportExecutor struct {
	importer Importer
	pacer    *throttle.Pacer
	metrics  *Metrics
	logger   *slog.Logger
}

// NewImportExecutor wires the executor.
func NewImportExecutor(importer Importer, pacer *throttle.Pacer, metrics *Metrics, logger *slog.Logger) *ImportExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportExecutor{importer: importer, pacer: pacer, metrics: metrics, logger: logger}
}

// Execute imports products sequentially in the given order.
func (x *ImportExecutor) Execute(ctx context.Context, runID uuid.UUID, products []EvaluatedProduct) ImportSummary {
	start := time.Now()
	errs := throttle.Each(ctx, x.pacer, products, func(ctx context.Context, _ int, p EvaluatedProduct) error {
		return x.importer.Import(ctx, runID, p)
	})

	summary := ImportSummary{Attempted: len(products), Items: make([]ItemResult, len(products))}
	for i, p := range products {
		item := ItemResult{ASIN: p.ASIN, Imported: errs[i] == nil}
		if errs[i] != nil {
			item.Error = errs[i].Error()
			summary.Failed++
			x.metrics.ObserveImport(false)
			x.logger.Warn("import product", slog.String("run_id", runID.String()), slog.String("asin", p.ASIN), slog.Any("error", errs[i]))
		} else {
			summary.Imported++
			x.metrics.ObserveImport(true)
		}
		summary.Items[i] = item
	}
	summary.Elapsed = time.Since(start)
	return summary
}
