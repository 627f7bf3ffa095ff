// Package membership reports a user's subscription status.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/cache"
	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// ErrNotFound is returned when a user has no membership.
var ErrNotFound = fmt.Errorf("membership %w", httpx.ErrNotFound)

// Record is the stored membership row.
type Record struct {
	UserID           string     `json:"user_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// Status is the response of GET /membership/status.
type Status struct {
	UserID           string     `json:"user_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	Active           bool       `json:"active"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// Active reports whether the record grants access at now.
func (r Record) Active(now time.Time) bool {
	if r.Status != "active" && r.Status != "trialing" {
		return false
	}
	return r.CurrentPeriodEnd != nil && r.CurrentPeriodEnd.After(now)
}

// Repository loads membership rows.
type Repository interface {
	Get(ctx context.Context, userID string) (Record, error)
}

// PgRepository reads the memberships table.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Get returns the latest membership of a user.
func (r *PgRepository) Get(ctx context.Context, userID string) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, plan, status, current_period_end
		FROM memberships WHERE user_id = $1
		ORDER BY updated_at DESC LIMIT 1`, userID).
		Scan(&rec.UserID, &rec.Plan, &rec.Status, &rec.CurrentPeriodEnd)
	if err != nil {
		if db.IsNoRows(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("membership: get: %w", err)
	}
	return rec, nil
}

// Service resolves membership status through the cache.
type Service struct {
	repo   Repository
	cache  *cache.JSONCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the service. A nil cache reads straight through.
func NewService(repo Repository, jsonCache *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: jsonCache, logger: logger, now: time.Now}
}

// Status returns the membership of userID. Activity is evaluated on every
// call so a cached record expires its access on time.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Status{}, httpx.Invalid("user_id is required")
	}
	rec, err := s.load(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		UserID:           rec.UserID,
		Plan:             rec.Plan,
		Status:           rec.Status,
		Active:           rec.Active(s.now()),
		CurrentPeriodEnd: rec.CurrentPeriodEnd,
	}, nil
}

// Invalidate drops every cached status.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) load(ctx context.Context, userID string) (Record, error) {
	loader := func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, userID)
	}
	key, err := s.cache.Key(ctx, "status", userID)
	if err != nil {
		s.logger.Warn("membership cache unavailable", slog.Any("error", err))
		return s.repo.Get(ctx, userID)
	}
	var rec Record
	if err := s.cache.Fetch(ctx, key, &rec, loader); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Handler exposes GET /membership/status.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers membership routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/membership/status", h.status)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("membership status", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, status)
}
