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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/httpapi"
	"taskflow/api/internal/inbox"
	"taskflow/api/internal/jobs"
	"taskflow/api/internal/middleware"
	"taskflow/api/internal/repos"
	"taskflow/shared/cachex"
	"taskflow/shared/config"
	"taskflow/shared/dbx"
	"taskflow/shared/httpx"
	"taskflow/shared/lockx"
	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
	"taskflow/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}

	if cfg.OtelEnabled {
		shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfigFrom(cfg))
		if err != nil {
			logger.Warn(context.Background(), "otel_init_failed", "tracing disabled",
				slog.String("error", err.Error()),
			)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		var err error
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "cache_init_failed", "unread counts will not be cached",
				slog.String("error", err.Error()),
			)
			cache = nil
		}
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(context.Background(), cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			dbPool = nil
		} else if err := ensureSchema(dbPool, cache); err != nil {
			logger.Error(context.Background(), "schema_init_failed", "schema init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var enqueuer jobs.Enqueuer
	var queueClient *asynq.Client
	if cfg.AsynqRedisAddr != "" {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPass,
			DB:       cfg.AsynqRedisDB,
		})
		enqueuer = jobs.NewAsynqEnqueuer(queueClient, cfg.AsynqQueue, cfg.JobMaxRetry, cfg.JobTimeout())
	}

	store := repos.NewStore(dbPool)
	var inboxCache inbox.Cache
	if cache != nil {
		inboxCache = cache
	}
	handlers := &httpapi.Handlers{
		Recorder: activity.NewRecorder(enqueuer, logger),
		Inbox:    inbox.NewService(store.Notifications, inboxCache, cfg.UnreadCacheTTL(), logger),
		Feed:     store.Activities,
		Logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
	handlers.Register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	isProbe := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}
	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DepsRequiredMiddleware{
		Deps: map[string]bool{
			"database": dbPool != nil,
			"queue":    enqueuer != nil,
		},
		Skip: isProbe,
	}.Wrap(handler)
	handler = middleware.ActorMiddleware{Skip: isProbe}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
			slog.String("queue", cfg.AsynqQueue),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if queueClient != nil {
		_ = queueClient.Close()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}

// ensureSchema serialises schema creation across replicas when Redis is
// available; concurrent CREATE TABLE IF NOT EXISTS can still collide in
// Postgres.
func ensureSchema(pool *pgxpool.Pool, cache *cachex.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	apply := func(ctx context.Context) error {
		return dbx.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return repos.EnsureSchema(ctx, tx)
		})
	}
	if cache == nil {
		return apply(ctx)
	}
	return lockx.WithLock(ctx, cache.Client(), cachex.Key("lock", "schema"), 30*time.Second, 0, apply)
}
