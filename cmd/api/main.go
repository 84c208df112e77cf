package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/addon"
	"github.com/noah-isme/backend-metrature/internal/app"
	"github.com/noah-isme/backend-metrature/internal/audit"
	"github.com/noah-isme/backend-metrature/internal/auth"
	"github.com/noah-isme/backend-metrature/internal/config"
	"github.com/noah-isme/backend-metrature/internal/health"
	"github.com/noah-isme/backend-metrature/internal/itemconfig"
	"github.com/noah-isme/backend-metrature/internal/obs"
	"github.com/noah-isme/backend-metrature/internal/quote"
	"github.com/noah-isme/backend-metrature/internal/ratelimit"
	"github.com/noah-isme/backend-metrature/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   app.ApplicationName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	deps, err := app.Open(ctx, cfg, app.Options{
		Logger:         logger,
		MetricsEnabled: cfg.Obs.EnablePrometheus,
		TracingEnabled: tracingEnabled,
	})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	r := newRouter(cfg, deps, logger, tracingEnabled)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	logger.Info().Msg("server draining")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, tracingEnabled bool) http.Handler {
	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), deps.MetricsRegistry)
	}

	r := chi.NewRouter()
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.Security.HeadersEnabled,
		EnableHSTS:            cfg.Security.HSTSEnabled,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		HSTSIncludeSubdomains: cfg.Security.HSTSIncludeSubdomains,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.Security.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF") {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), os.Getenv("SECURE_PPROF_BASIC_AUTH_USER"), os.Getenv("SECURE_PPROF_BASIC_AUTH_PASS")))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: deps.DB, Redis: deps.Redis},
		DBTimeout:    cfg.Obs.ReadyDBTimeout,
		RedisTimeout: cfg.Obs.ReadyRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	itemHandler := itemconfig.NewHandler(itemconfig.HandlerConfig{
		Provider:  deps.Provider,
		Validator: deps.Validator,
		Logger:    logger,
	})
	quoteHandler := quote.NewHandler(deps.Quotes)
	pricingLimit := ratelimit.Handler{
		Limiter: deps.Limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	adminOnly := auth.Middleware{
		Verifier: auth.NewVerifier(cfg.AdminJWTSecret, auth.TokenValidator{
			Issuer:    cfg.AdminJWTIssuer,
			Audience:  cfg.AdminJWTAudience,
			ClockSkew: 30 * time.Second,
		}),
		Logger: logger,
	}
	recordChange := audit.HTTPRecorder{
		Service: deps.Audit,
		OnError: func(err error) { logger.Error().Err(err).Msg("record pricing config audit") },
	}
	auditHandler := audit.Handler{Store: deps.AuditStore}
	addOnHandler := addon.Handler{Store: deps.AddOns, Logger: logger}

	r.Route("/api/v1", func(v chi.Router) {
		v.With(pricingLimit.Middleware).Post("/pricing/resolve", quoteHandler.Resolve)
		v.Get("/items/{itemID}/pricing", itemHandler.ItemPricing)
		v.Get("/items/{itemID}/add-ons", addOnHandler.ItemAddOns)
		v.Get("/customer-groups/{group}/minimums", itemHandler.GroupMinimums)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(adminOnly.RequireAdmin)
			admin.With(recordChange.Middleware(audit.ActionReplaceTiers)).Put("/items/{itemID}/tiers", itemHandler.PutTiers)
			admin.With(recordChange.Middleware(audit.ActionReplaceMinimums)).Put("/items/{itemID}/minimums", itemHandler.PutMinimums)
			admin.Get("/items/{itemID}/audit", auditHandler.List)
			admin.Post("/tiers/validate", itemHandler.ValidateTiers)
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
