package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/leadrank/internal/adapters/cache"
	"github.com/okian/leadrank/internal/adapters/classifier"
	"github.com/okian/leadrank/internal/adapters/pubmed"
	"github.com/okian/leadrank/internal/adapters/ratelimit"
	"github.com/okian/leadrank/internal/adapters/repository"
	app "github.com/okian/leadrank/internal/app"
	"github.com/okian/leadrank/internal/config"
	"github.com/okian/leadrank/internal/domain/dedupe"
	"github.com/okian/leadrank/internal/domain/enrichment"
	"github.com/okian/leadrank/pkg/logger"
)

// pubmedKeyedLimit is NCBI's quota for callers sending an API key.
const pubmedKeyedLimit = 10

// runtimeDeps holds what main builds from the config and must release on
// shutdown.
type runtimeDeps struct {
	store       repository.Store
	redis       *redis.Client
	windowStore *ratelimit.MemoryWindowStore
	closers     []func() error
}

// Close releases resources in reverse order of acquisition.
func (d *runtimeDeps) Close() error {
	var firstErr error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.closers = nil
	return firstErr
}

func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var opts []repository.SQLOption
	switch cfg.StoreDriver {
	case config.StoreSQLite:
	case config.StorePostgres:
		opts = append(opts, repository.WithMaxOpenConns(cfg.StoreMaxOpenConns))
	default:
		return repository.NewMemoryStore(), nil
	}
	opts = append(opts, repository.WithLogger(logger.Get().Named("repository")))
	store, err := repository.OpenSQL(ctx, cfg.StoreDriver, cfg.StoreDSN, opts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func buildRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func buildDeduper(cfg *config.Config, rdb *redis.Client) dedupe.Deduper {
	if cfg.DedupeBackend == config.BackendRedis {
		return dedupe.NewRedisDeduper(rdb, cfg.RedisPrefix+"import:", cfg.DedupeTTL())
	}
	return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
}

// buildEnricher wires the cache, the rate limiter and the two upstreams.
// It returns nil when enrichment is disabled.
func buildEnricher(cfg *config.Config, deps *runtimeDeps) (*enrichment.Enricher, error) {
	if !cfg.EnrichmentEnabled {
		return nil, nil
	}
	log := logger.Get()

	var backend cache.Backend
	if cfg.CacheBackend == config.BackendRedis {
		backend = cache.NewRedisBackend(deps.redis, cfg.RedisPrefix+"cache:")
	} else {
		mem := cache.NewMemoryBackend()
		deps.closers = append(deps.closers, mem.Close)
		backend = mem
	}
	enrichmentCache := cache.New(backend,
		cache.WithComputeTimeout(cfg.CacheComputeTimeout()),
		cache.WithLogger(log.Named("cache")),
	)

	var windows ratelimit.WindowStore
	if cfg.RateLimitBackend == config.BackendRedis {
		windows = ratelimit.NewRedisWindowStore(deps.redis, cfg.RedisPrefix+"ratelimit:")
	} else {
		deps.windowStore = ratelimit.NewMemoryWindowStore()
		windows = deps.windowStore
	}
	limitOpts := []ratelimit.Option{
		ratelimit.WithStore(windows),
		ratelimit.WithDefaultLimit(ratelimit.Limit{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow()}),
		ratelimit.WithMaxWait(cfg.RateLimitMaxWait()),
		ratelimit.WithMaxAttempts(cfg.RetryMaxAttempts),
		ratelimit.WithBackoff(cfg.RetryInitialBackoff(), cfg.RetryMaxBackoff()),
		ratelimit.WithLogger(log.Named("ratelimit")),
	}
	if cfg.PubMedAPIKey != "" {
		keyed := ratelimit.PerSecond(pubmedKeyedLimit)
		limitOpts = append(limitOpts,
			ratelimit.WithLimit(enrichment.EndpointSearch, keyed),
			ratelimit.WithLimit(enrichment.EndpointFetch, keyed),
		)
	}
	limiter, err := ratelimit.NewClient(limitOpts...)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	bib := pubmed.NewClient(pubmed.Config{
		BaseURL: cfg.PubMedBaseURL,
		Tool:    cfg.PubMedTool,
		Email:   cfg.PubMedEmail,
		APIKey:  cfg.PubMedAPIKey,
	})

	var cls enrichment.Classifier = enrichment.StaticClassifier{}
	if cfg.OpenAIAPIKey != "" {
		oa, err := classifier.NewOpenAI(classifier.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		cls = oa
	} else {
		log.Warn(context.Background(), "no OpenAI API key configured; using keyword relevance classifier")
	}

	return enrichment.NewEnricher(bib, cls,
		enrichment.WithCache(enrichmentCache),
		enrichment.WithRateLimiter(limiter),
		enrichment.WithMaxPublications(cfg.MaxPublications),
		enrichment.WithMinAbstractLength(cfg.MinAbstractLength),
		enrichment.WithTimeout(cfg.EnrichmentTimeout()),
		enrichment.WithConcurrency(cfg.EnrichmentConcurrency),
		enrichment.WithCacheTTL(cfg.CacheTTL()),
		enrichment.WithLogger(log.Named("enrichment")),
	), nil
}

// buildService assembles the service from cfg. The caller owns the returned
// deps and must Close them after stopping the service.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, *runtimeDeps, error) {
	deps := &runtimeDeps{}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	deps.store = store
	deps.closers = append(deps.closers, store.Close)

	rdb, err := buildRedis(ctx, cfg)
	if err != nil {
		_ = deps.Close()
		return nil, nil, err
	}
	if rdb != nil {
		deps.redis = rdb
		deps.closers = append(deps.closers, rdb.Close)
	}

	opts := []app.Option{
		app.WithLogger(logger.Get().Named("service")),
		app.WithStore(store),
		app.WithDeduper(buildDeduper(cfg, rdb)),
		app.WithDefaultWeights(cfg.Weights),
		app.WithBonusCap(cfg.BonusCap),
		app.WithBatchConcurrency(cfg.BatchConcurrency),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRankMaxAttempts(cfg.RankMaxAttempts),
	}
	enricher, err := buildEnricher(cfg, deps)
	if err != nil {
		_ = deps.Close()
		return nil, nil, err
	}
	if enricher != nil {
		opts = append(opts, app.WithEnricher(enricher))
	}

	svc, err := app.New(opts...)
	if err != nil {
		_ = deps.Close()
		return nil, nil, err
	}
	return svc, deps, nil
}
