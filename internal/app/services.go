package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropship-ops/opsdash/internal/catalog"
	"github.com/dropship-ops/opsdash/internal/membership"
	"github.com/dropship-ops/opsdash/internal/platform/cache"
	"github.com/dropship-ops/opsdash/internal/platform/throttle"
	"github.com/dropship-ops/opsdash/internal/providers"
	"github.com/dropship-ops/opsdash/internal/providers/keepa"
	"github.com/dropship-ops/opsdash/internal/providers/rainforest"
	"github.com/dropship-ops/opsdash/internal/queue"
	"github.com/dropship-ops/opsdash/internal/settings"
	"github.com/dropship-ops/opsdash/internal/shopify"
	"github.com/dropship-ops/opsdash/internal/social"
	"github.com/dropship-ops/opsdash/internal/sourcing"
	"github.com/dropship-ops/opsdash/internal/stock"
)

// Services holds the domain services shared by the API server and the worker.
type Services struct {
	Sourcing   *sourcing.Service
	Catalog    *catalog.Service
	Stock      *stock.Service
	Queue      *queue.Service
	Social     *social.Service
	Membership *membership.Service
}

// BuildServices wires repositories, provider clients and services.
func BuildServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, registerer prometheus.Registerer, logger *slog.Logger) *Services {
	store := settings.NewStore(pool)
	providerMetrics := providers.NewMetrics(registerer)
	sourcingMetrics := sourcing.NewMetrics(registerer)

	rainforestClient := rainforest.NewClient(cfg.RainforestBaseURL, cfg.RainforestAPIKey, cfg.AmazonDomain, cfg.ProviderTimeout)
	keepaClient := keepa.NewClient(cfg.KeepaBaseURL, cfg.KeepaAPIKey, cfg.AmazonDomain, cfg.ProviderTimeout)

	catalogService := catalog.NewService(catalog.NewRepository(pool), cfg.SourcingMarkup, logger)

	sourcingService := sourcing.NewService(sourcing.ServiceConfig{
		Repo:      sourcing.NewRepository(pool, store),
		Search:    sourcing.NewRainforestSearch(rainforestClient, providerMetrics),
		Evaluator: sourcing.NewEvaluator(cfg.SourcingMarkup, logger),
		Executor:  sourcing.NewImportExecutor(catalogService, throttle.NewPacer(cfg.SourcingImportDelay), sourcingMetrics, logger),
		Metrics:   sourcingMetrics,
		Logger:    logger,
		PageSize:  cfg.SourcingPageSize,
	})

	chain := make([]stock.Provider, 0, 2)
	if cfg.RainforestAPIKey != "" {
		chain = append(chain, stock.NewRainforestProvider(rainforestClient))
	}
	if cfg.KeepaAPIKey != "" {
		chain = append(chain, stock.NewKeepaProvider(keepaClient))
	}
	stockService := stock.NewService(chain, throttle.NewPacer(cfg.StockCheckDelay), catalogService, providerMetrics, stock.Config{
		MaxBatch:  cfg.StockCheckMaxBatch,
		CacheSize: cfg.StockCacheSize,
		CacheTTL:  cfg.StockCacheTTL,
	}, logger)

	var publisher queue.Publisher
	if cfg.ShopifyConfigured() {
		publisher = shopify.NewClient(cfg.ShopifyShop, cfg.ShopifyAccessToken, cfg.ShopifyAPIVersion, cfg.ProviderTimeout)
	} else {
		logger.Warn("shopify credentials missing, sync queue processing disabled")
	}
	queueService := queue.NewService(queue.NewRepository(pool, store), publisher, throttle.NewPacer(cfg.QueueSyncDelay), cfg.QueueBatchSize, logger)

	var copywriter social.Copywriter
	if cw, err := social.NewGenAICopywriter(ctx, social.GenAIConfig{APIKey: cfg.GenAIAPIKey, Model: cfg.GenAIModel}); err == nil {
		copywriter = cw
	} else {
		logger.Warn("caption generation disabled", slog.Any("error", err))
	}
	socialService := social.NewService(
		social.NewRepository(pool),
		social.NewWebhookPublisher(cfg.SocialWebhooks, cfg.ProviderTimeout),
		copywriter,
		logger,
	)

	membershipService := membership.NewService(
		membership.NewRepository(pool),
		cache.NewJSONCache(redisClient, "opsdash:membership", cfg.MembershipCacheTTL),
		logger,
	)

	return &Services{
		Sourcing:   sourcingService,
		Catalog:    catalogService,
		Stock:      stockService,
		Queue:      queueService,
		Social:     socialService,
		Membership: membershipService,
	}
}
