package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/app"
	"github.com/noah-isme/sponsor-api/internal/config"
	"github.com/noah-isme/sponsor-api/internal/notify"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	// The worker never touches the order workbook; an empty in-memory book
	// satisfies the wiring.
	deps := app.New(cfg, logger, sheet.NewMemory(), redisClient, nil)
	if !deps.Mailing.Configured() {
		logger.Warn().Msg("ACY_URL or ACY_API_KEY not set, mailing tasks will be dropped")
	}

	connOpt, err := app.RedisConnOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for tasks")
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{notify.QueueMailing: 1},
		ShutdownTimeout: 10 * time.Second,
		Logger:          asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	deps.SubscribeWorker().Register(mux)

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("queue", notify.QueueMailing).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
