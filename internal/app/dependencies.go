package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-metrature/internal/addon"
	"github.com/noah-isme/backend-metrature/internal/audit"
	"github.com/noah-isme/backend-metrature/internal/common"
	"github.com/noah-isme/backend-metrature/internal/config"
	"github.com/noah-isme/backend-metrature/internal/customer"
	"github.com/noah-isme/backend-metrature/internal/itemconfig"
	"github.com/noah-isme/backend-metrature/internal/lock"
	"github.com/noah-isme/backend-metrature/internal/obs"
	"github.com/noah-isme/backend-metrature/internal/quote"
	"github.com/noah-isme/backend-metrature/internal/ratelimit"
	"github.com/noah-isme/backend-metrature/internal/resilience"
)

// ApplicationName is reported to Postgres and the tracer.
const ApplicationName = "metrature-api"

// Dependencies enumerates the connections and services shared by the API
// and the command line tools.
type Dependencies struct {
	DB              *pgxpool.Pool
	Redis           *redis.Client
	Validator       *common.Validator
	Provider        *itemconfig.Provider
	Customers       customer.Resolver
	AddOns          addon.Store
	Quotes          *quote.Service
	Limiter         *limiter.Limiter
	Audit           audit.Service
	AuditStore      audit.Store
	MetricsRegistry prometheus.Registerer
}

// Options tweaks Open.
type Options struct {
	Logger          zerolog.Logger
	MetricsEnabled  bool
	TracingEnabled  bool
	MetricsRegistry prometheus.Registerer
}

// Open connects Postgres and Redis, applies migrations when configured and
// builds the pricing services. Callers must Close the result.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Dependencies, error) {
	logger := opts.Logger
	reg := opts.MetricsRegistry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, reg)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, reg)

	if cfg.RunMigrations {
		if err := RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	pool, err := newPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rdb, err := newRedis(ctx, cfg.RedisURL, opts, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	deps := &Dependencies{DB: pool, Redis: rdb, Validator: common.NewValidator(), MetricsRegistry: reg}

	cacheBreaker := resilience.NewBreaker("itemconfig_cache", 20, 0.5, 30*time.Second).
		WithLogger(logger.With().Str("component", "breaker").Logger())

	deps.Provider, err = itemconfig.NewProvider(itemconfig.ProviderConfig{
		Store:  itemconfig.NewPGStore(pool),
		Cache:  itemconfig.NewCache(rdb, cfg.ItemConfigCacheTTL).WithBreaker(cacheBreaker),
		Locker: lock.Locker{R: rdb, TTL: cfg.LockTTL, RetryBackoff: cfg.LockRetryBackoff},
		Logger: logger.With().Str("component", "itemconfig").Logger(),
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.AuditStore = audit.NewPGStore(pool)
	deps.Audit = audit.Service{Store: deps.AuditStore, Enabled: cfg.AuditEnabled}
	deps.Customers = customer.NewPGResolver(pool, cfg.DefaultCustomerGroup)
	deps.AddOns = addon.NewPGStore(pool)
	deps.Quotes, err = quote.NewService(quote.ServiceConfig{
		Snapshots: deps.Provider,
		Customers: deps.Customers,
		AddOns:    deps.AddOns,
		Validator: deps.Validator,
		Logger:    logger.With().Str("component", "quote").Logger(),
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Limiter, err = ratelimit.New(cfg.RateLimitPricing, "ratelimit:pricing", rdb)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("rate limit %q: %w", cfg.RateLimitPricing, err)
	}
	return deps, nil
}

// Close releases the connections held by d.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}

func newPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func newRedis(ctx context.Context, url string, opts Options, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if opts.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if opts.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
