package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/app"
	"github.com/noah-isme/sponsor-api/internal/config"
	"github.com/noah-isme/sponsor-api/internal/health"
	"github.com/noah-isme/sponsor-api/internal/notify"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracing := cfg.Obs.TracingEnabled
	if tracing {
		stopTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "sponsor-api",
			Version:       cfg.Obs.Version,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer closeWith(logger, "tracer", func() error { return stopTracer(context.Background()) })
		}
	}

	book, err := sheet.OpenWorkbook(cfg.WorkbookPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.WorkbookPath).Msg("open workbook")
	}
	defer closeWith(logger, "workbook", book.Close)

	rdb := connectRedis(cfg, logger)
	var tasks notify.Enqueuer
	if rdb != nil {
		defer closeWith(logger, "redis", rdb.Close)
		connOpt, err := app.RedisConnOpt(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("task queue redis url")
		}
		client := asynq.NewClient(connOpt)
		defer closeWith(logger, "task client", client.Close)
		tasks = client
	}

	deps := app.New(cfg, logger, book, rdb, tasks)
	if !deps.Tokens.Enabled() {
		logger.Warn().Msg("ADMIN_JWT_SECRET not set, finalize endpoint is unauthenticated")
	}
	if cfg.PayPal.WebhookID == "" {
		logger.Warn().Msg("PP_WEBHOOK_ID not set, paypal webhooks are accepted without signature verification")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           deps.Router(routerOptions(cfg, tracing)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		health.SetReady(false)
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		logger.Info().Dur("grace", cfg.ShutdownGrace).Msg("draining")
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("workbook", cfg.WorkbookPath).Msg("sponsor api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen")
	}
	logger.Info().Msg("sponsor api stopped")
}

func routerOptions(cfg *config.Config, tracing bool) app.RouterOptions {
	opts := app.RouterOptions{
		Tracing:      tracing,
		StoreTimeout: cfg.Obs.ReadyStoreTimeout,
		RedisTimeout: cfg.Obs.ReadyRedisTimeout,
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.HTTPBucketsMS)
		opts.Metrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)
		opts.MetricsHandler = promhttp.Handler()
	}
	if cfg.Obs.PprofEnabled {
		debug := chi.NewRouter()
		if cfg.Obs.PprofUser != "" {
			debug.Use(middleware.BasicAuth("sponsor-debug", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPass}))
		}
		debug.Mount("/", middleware.Profiler())
		opts.Debug = debug
	}
	return opts
}

// connectRedis returns nil without REDIS_URL; every Redis-backed feature
// degrades to a no-op in that case.
func connectRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, replay guard, locks, caches and mailing tasks disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("redis tracing instrumentation")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("redis metrics instrumentation")
		}
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping")
	}
	return client
}

func closeWith(logger zerolog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Error().Err(err).Str("resource", what).Msg("close")
	}
}
