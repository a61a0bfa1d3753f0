package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	slog *slog.Logger
	env  string
}

func New(service string, env string, version string, level string) Logger {
	return NewWithWriter(os.Stdout, service, env, version, level)
}

// NewWithWriter builds the same JSON logger as New but writes to w.
func NewWithWriter(w io.Writer, service string, env string, version string, level string) Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				a.Key = "level"
			case slog.MessageKey:
				a.Key = "event"
			}
			return a
		},
	}

	base := slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", service),
		slog.String("env", env),
	)
	if strings.TrimSpace(version) != "" {
		base = base.With(slog.String("version", strings.TrimSpace(version)))
	}

	return Logger{slog: base, env: env}
}

// Nop discards everything. Handy for tests and optional collaborators.
func Nop() Logger {
	return Logger{slog: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func (l Logger) With(attrs ...slog.Attr) Logger {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return Logger{slog: l.base().With(args...), env: l.env}
}

func (l Logger) Info(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, event, msg, attrs)
}

func (l Logger) Warn(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, event, msg, attrs)
}

func (l Logger) Error(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, event, msg, attrs)
}

func (l Logger) Debug(ctx context.Context, event string, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, event, msg, attrs)
}

func (l Logger) Env() string { return l.env }

func (l Logger) log(ctx context.Context, level slog.Level, event string, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs = append(attrs, slog.String("msg", msg))
	l.base().LogAttrs(ctx, level, event, attrs...)
}

func (l Logger) base() *slog.Logger {
	if l.slog == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return l.slog
}

// AsynqLogger satisfies asynq.Logger so queue internals share the service log stream.
type AsynqLogger struct {
	Logger Logger
}

func (a AsynqLogger) Debug(args ...any) {
	a.Logger.Debug(context.Background(), "asynq", fmt.Sprint(args...))
}

func (a AsynqLogger) Info(args ...any) {
	a.Logger.Info(context.Background(), "asynq", fmt.Sprint(args...))
}

func (a AsynqLogger) Warn(args ...any) {
	a.Logger.Warn(context.Background(), "asynq", fmt.Sprint(args...))
}

func (a AsynqLogger) Error(args ...any) {
	a.Logger.Error(context.Background(), "asynq", fmt.Sprint(args...))
}

func (a AsynqLogger) Fatal(args ...any) {
	a.Logger.Error(context.Background(), "asynq_fatal", fmt.Sprint(args...))
	os.Exit(1)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
