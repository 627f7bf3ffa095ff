package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/platform/throttle"
	"github.com/dropship-ops/opsdash/internal/shopify"
)

// Publisher pushes a product to the storefront.
type Publisher interface {
	CreateProduct(ctx context.Context, input shopify.ProductInput) (int64, error)
}

type actionFunc func(ctx context.Context, req ActionRequest) (ActionResult, error)

// Service implements queue listing, operator actions and draining.
type Service struct {
	repo       Repository
	publisher  Publisher
	pacer      *throttle.Pacer
	batchSize  int
	staleAfter time.Duration
	validate   *validator.Validate
	logger     *slog.Logger
	actions    map[string]actionFunc
}

// NewService wires the service. publisher may be nil when Shopify is not
// configured; processing then fails.
func NewService(repo Repository, publisher Publisher, pacer *throttle.Pacer, batchSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	s := &Service{
		repo:       repo,
		publisher:  publisher,
		pacer:      pacer,
		batchSize:  batchSize,
		staleAfter: DefaultStaleAfter,
		validate:   httpx.NewValidator(),
		logger:     logger,
	}
	s.actions = map[string]actionFunc{
		"pause":        s.pause,
		"resume":       s.resume,
		"retry":        s.retry,
		"retry_failed": s.retryFailed,
		"remove":       s.remove,
		"clear_synced": s.clearSynced,
		"process":      s.process,
	}
	return s
}

// Actions lists the supported action names.
func (s *Service) Actions() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns items, counts and the pause flag.
func (s *Service) Snapshot(ctx context.Context, filter ListFilter) (Snapshot, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Snapshot{}, httpx.Invalid("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return Snapshot{}, err
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	state, err := s.repo.State(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Items: items, Stats: stats, Paused: state.Paused}, nil
}

// Dispatch runs the named action.
func (s *Service) Dispatch(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return ActionResult{}, err
	}
	fn, ok := s.actions[req.Action]
	if !ok {
		return ActionResult{}, httpx.WithCode(CodeUnknownAction, httpx.Invalid("unknown action %q, expected one of %s", req.Action, strings.Join(s.Actions(), ", ")))
	}
	result, err := fn(ctx, req)
	if err != nil {
		return ActionResult{}, err
	}
	result.Action = req.Action
	return result, nil
}

func (s *Service) pause(ctx context.Context, _ ActionRequest) (ActionResult, error) {
	state, err := s.repo.SetPaused(ctx, true)
	if err != nil {
		return ActionResult{}, err
	}
	s.logger.Info("sync queue paused")
	return ActionResult{Paused: state.Paused}, nil
}

func (s *Service) resume(ctx context.Context, _ ActionRequest) (ActionResult, error) {
	state, err := s.repo.SetPaused(ctx, false)
	if err != nil {
		return ActionResult{}, err
	}
	s.logger.Info("sync queue resumed")
	return ActionResult{Paused: state.Paused}, nil
}

func (s *Service) retry(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if len(req.IDs) == 0 {
		return ActionResult{}, httpx.WithCode(CodeIDsRequired, httpx.Invalid("ids required for %s", req.Action))
	}
	return s.withState(ctx, func() (int, error) { return s.repo.Retry(ctx, req.IDs) })
}

func (s *Service) retryFailed(ctx context.Context, _ ActionRequest) (ActionResult, error) {
	return s.withState(ctx, func() (int, error) {
		reclaimed, err := s.repo.ReclaimStale(ctx, s.staleAfter)
		if err != nil {
			return 0, err
		}
		n, err := s.repo.RetryFailed(ctx)
		return n + reclaimed, err
	})
}

func (s *Service) remove(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if len(req.IDs) == 0 {
		return ActionResult{}, httpx.WithCode(CodeIDsRequired, httpx.Invalid("ids required for %s", req.Action))
	}
	return s.withState(ctx, func() (int, error) { return s.repo.Remove(ctx, req.IDs) })
}

func (s *Service) clearSynced(ctx context.Context, _ ActionRequest) (ActionResult, error) {
	return s.withState(ctx, func() (int, error) { return s.repo.ClearSynced(ctx) })
}

func (s *Service) process(ctx context.Context, req ActionRequest) (ActionResult, error) {
	summary, err := s.Process(ctx, req.Limit)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Affected: summary.Synced, Processed: &summary}, nil
}

func (s *Service) withState(ctx context.Context, fn func() (int, error)) (ActionResult, error) {
	n, err := fn()
	if err != nil {
		return ActionResult{}, err
	}
	state, err := s.repo.State(ctx)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Affected: n, Paused: state.Paused}, nil
}

// Process claims up to limit pending items and pushes them to Shopify one at
// a time. Item failures are recorded and never stop the drain.
func (s *Service) Process(ctx context.Context, limit int) (ProcessSummary, error) {
	if s.publisher == nil {
		return ProcessSummary{}, ErrPublisherMissing
	}
	if limit <= 0 || limit > s.batchSize {
		limit = s.batchSize
	}
	if n, err := s.repo.ReclaimStale(ctx, s.staleAfter); err != nil {
		return ProcessSummary{}, err
	} else if n > 0 {
		s.logger.Warn("reclaimed stalled sync items", slog.Int("count", n))
	}
	claimed, err := s.repo.Claim(ctx, limit)
	if err != nil {
		if errors.Is(err, ErrPaused) {
			return ProcessSummary{}, httpx.WithCode(CodePaused, err)
		}
		return ProcessSummary{}, err
	}

	summary := ProcessSummary{Claimed: len(claimed), Items: make([]ProcessResult, len(claimed))}
	ids := make([]int64, len(claimed))
	errs := throttle.Each(ctx, s.pacer, claimed, func(ctx context.Context, i int, c Claimed) error {
		shopifyID, err := s.publisher.CreateProduct(ctx, productInput(c))
		ids[i] = shopifyID
		return err
	})

	// Claimed rows must leave the processing state even if ctx ended.
	markCtx := context.WithoutCancel(ctx)
	for i, c := range claimed {
		res := ProcessResult{ID: c.ItemID, ASIN: c.ASIN}
		if errs[i] != nil {
			res.Error = errs[i].Error()
			summary.Failed++
			if err := s.repo.MarkFailed(markCtx, c.ItemID, res.Error); err != nil {
				s.logger.Error("mark sync item failed", slog.Int64("id", c.ItemID), slog.Any("error", err))
			}
			s.logger.Warn("shopify sync", slog.String("asin", c.ASIN), slog.Any("error", errs[i]))
		} else {
			res.Synced = true
			res.ShopifyProductID = ids[i]
			summary.Synced++
			if err := s.repo.MarkSynced(markCtx, c.ItemID, ids[i]); err != nil {
				s.logger.Error("mark sync item synced", slog.Int64("id", c.ItemID), slog.Any("error", err))
			}
		}
		summary.Items[i] = res
	}
	return summary, nil
}

func productInput(c Claimed) shopify.ProductInput {
	input := shopify.ProductInput{
		Title:    c.Title,
		BodyHTML: c.Description,
		Vendor:   c.Brand,
		Status:   "draft",
		Tags:     fmt.Sprintf("asin:%s", c.ASIN),
		Variants: []shopify.Variant{{
			Price: c.SellPrice.StringFixed(2),
			SKU:   c.ASIN,
		}},
	}
	if c.ImageURL != "" {
		input.Images = []shopify.Image{{Src: c.ImageURL}}
	}
	return input
}
