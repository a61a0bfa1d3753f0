package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"taskflow/api/internal/inbox"
	"taskflow/api/internal/jobs"
	"taskflow/api/internal/repos"
	"taskflow/shared/cachex"
	"taskflow/shared/config"
	"taskflow/shared/dbx"
	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
	"taskflow/shared/mqx"
	"taskflow/shared/observability"
)

func main() {
	cfg, problems := config.Load("worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfigFrom(cfg)); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(context.Background(), cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()
	store := repos.NewStore(dbPool)

	// Kafka and the unread cache are optional: jobs still write rows without them.
	var publisher jobs.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "domain stream disabled",
				slog.String("error", err.Error()),
			)
		} else {
			defer producer.Close()
			publisher = producer
		}
	}

	var invalidator jobs.UnreadInvalidator
	if cfg.RedisAddr != "" {
		if cache, err := cachex.New(cfg); err == nil {
			defer cache.Close()
			invalidator = inbox.NewService(store.Notifications, cache, cfg.UnreadCacheTTL(), logger)
		} else {
			logger.Warn(context.Background(), "cache_init_failed", "unread cache invalidation disabled",
				slog.String("error", err.Error()),
			)
		}
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
		RetryDelayFunc:  jobs.RetryDelay,
		ErrorHandler:    jobs.NewErrorHandler(logger),
		Logger:          logx.AsynqLogger{Logger: logger},
		ShutdownTimeout: 10 * time.Second,
	})
	defer server.Shutdown()

	mux := jobs.NewServeMux(
		&jobs.AuditHandler{Store: store, Publisher: publisher, Logger: logger},
		&jobs.NotificationHandler{Store: store, Inbox: invalidator, Publisher: publisher, Logger: logger},
	)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	metricsServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           metricsx.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(context.Background(), "metrics_server_failed", "metrics endpoint stopped",
				slog.String("error", err.Error()),
			)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "fan-out worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
			slog.Int("max_retry", cfg.JobMaxRetry),
			slog.Bool("stream_enabled", publisher != nil),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info(context.Background(), "worker_stop", "fan-out worker stopped")
}
