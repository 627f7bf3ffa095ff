package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropship-ops/opsdash/internal/bulkimport"
	"github.com/dropship-ops/opsdash/internal/catalog"
	"github.com/dropship-ops/opsdash/internal/membership"
	"github.com/dropship-ops/opsdash/internal/observability"
	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/queue"
	"github.com/dropship-ops/opsdash/internal/social"
	"github.com/dropship-ops/opsdash/internal/sourcing"
	"github.com/dropship-ops/opsdash/internal/stock"
	"github.com/dropship-ops/opsdash/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are skipped.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	SourcingHandler   *sourcing.Handler
	StockHandler      *stock.Handler
	QueueHandler      *queue.Handler
	CatalogHandler    *catalog.Handler
	BulkImportHandler *bulkimport.Handler
	SocialHandler     *social.Handler
	MembershipHandler *membership.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with opsdash defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.SourcingHandler != nil {
		params.SourcingHandler.MountRoutes(r)
	}
	if params.StockHandler != nil {
		stockLimit := 10
		if params.Config != nil && params.Config.StockCheckRate > 0 {
			stockLimit = params.Config.StockCheckRate
		}
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(stockLimit, time.Minute))
			params.StockHandler.MountRoutes(r)
		})
	}
	if params.QueueHandler != nil {
		params.QueueHandler.MountRoutes(r)
	}
	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r)
	}
	if params.BulkImportHandler != nil {
		params.BulkImportHandler.MountRoutes(r)
	}
	if params.SocialHandler != nil {
		params.SocialHandler.MountRoutes(r)
	}
	if params.MembershipHandler != nil {
		params.MembershipHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
