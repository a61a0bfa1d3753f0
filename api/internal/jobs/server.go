package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
)

func NewServeMux(audit *AuditHandler, notifications *NotificationHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(instrument)
	mux.Handle(TypeActivityLog, audit)
	mux.Handle(TypeNotificationCreate, notifications)
	return mux
}

type outcomeKey struct{}

// markSkipped lets a handler report a benign no-op to the instrumentation
// middleware while still returning nil.
func markSkipped(ctx context.Context) {
	if p, ok := ctx.Value(outcomeKey{}).(*string); ok {
		*p = metricsx.OutcomeSkipped
	}
}

func instrument(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("asynq").Start(ctx, t.Type())
		defer span.End()
		if id, ok := asynq.GetTaskID(ctx); ok {
			span.SetAttributes(attribute.String("job.id", id))
		}
		if queue, ok := asynq.GetQueueName(ctx); ok {
			span.SetAttributes(attribute.String("queue", queue))
		}

		outcome := metricsx.OutcomeSuccess
		ctx = context.WithValue(ctx, outcomeKey{}, &outcome)

		start := time.Now()
		err := next.ProcessTask(ctx, t)
		switch {
		case err == nil:
		case errors.Is(err, asynq.SkipRetry):
			outcome = metricsx.OutcomeDropped
		default:
			outcome = metricsx.OutcomeRetry
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metricsx.ObserveJob(t.Type(), outcome, time.Since(start))
		return err
	})
}

// RetryDelay backs off quadratically: 5s, 20s, 45s, ... capped at five
// minutes.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n <= 0 {
		return 5 * time.Second
	}
	delay := time.Duration(n*n) * 5 * time.Second
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}

// NewErrorHandler logs every failed attempt and flags the last one as dead.
func NewErrorHandler(logger logx.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		id, _ := asynq.GetTaskID(ctx)
		attrs := []slog.Attr{
			slog.String("job_id", id),
			slog.String("type", t.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.String("error", err.Error()),
		}
		if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
			metricsx.IncDeadJob(t.Type())
			logger.Error(ctx, "job_dead", "job archived without further retries",
				append(attrs, slog.String("error_code", "INTERNAL_ERROR"))...)
			return
		}
		logger.Warn(ctx, "job_retry", "job failed, will retry", attrs...)
	})
}
