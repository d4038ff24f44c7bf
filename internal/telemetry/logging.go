package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogOptions — настройки логгера.
type LogOptions struct {
	Level  slog.Level
	Format string // "json" или "text"
}

// LogOptionsFromEnv читает LOG_LEVEL (debug, info, warn, error, без учёта
// регистра) и LOG_FORMAT. Неизвестный уровень даёт info, неизвестный
// формат — json.
func LogOptionsFromEnv(getenv func(string) string) LogOptions {
	opts := LogOptions{Level: slog.LevelInfo, Format: "json"}

	if lvl := getenv("LOG_LEVEL"); lvl != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(lvl)); err == nil {
			opts.Level = l
		}
	}
	if strings.EqualFold(getenv("LOG_FORMAT"), "text") {
		opts.Format = "text"
	}
	return opts
}

// NewLogger создаёт логгер с выводом в w. На debug добавляется
// файл и строка вызова.
func NewLogger(w io.Writer, opts LogOptions) *slog.Logger {
	hopts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.Level <= slog.LevelDebug,
	}
	if opts.Format == "text" {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// SetupLogger настраивает логгер сервиса по окружению и делает его
// глобальным.
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stdout)
}

// SetupLoggerTo — SetupLogger с выводом в w.
// CLI пишет логи в stderr: stdout занят отчётом.
func SetupLoggerTo(w io.Writer) *slog.Logger {
	logger := NewLogger(w, LogOptionsFromEnv(os.Getenv))
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста или возвращает slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, slog.Default())
}

func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

func WithWorkflow(logger *slog.Logger, workflow string) *slog.Logger {
	return logger.With("workflow", workflow)
}

// WithJob добавляет имя job и его позицию в матрице.
func WithJob(logger *slog.Logger, name string, index int) *slog.Logger {
	return logger.With("job", name, "job_index", index)
}
