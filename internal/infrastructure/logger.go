package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"

	"captainpulse/internal/config"
)

// process-wide logger state
var (
	loggerMu   sync.Mutex
	baseLogger *slog.Logger
	logFile    *os.File
)

type correlationKey string

// Context keys for the identifiers stamped onto every log record
const (
	TraceIDContextKey   correlationKey = "trace_id"
	SessionIDContextKey correlationKey = "session_id"
	ReportIDContextKey  correlationKey = "report_id"
)

// InitializeLogger builds the process logger from cfg and installs it as the
// slog default. Only the first call configures anything; later calls return
// the same logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if baseLogger != nil {
		return baseLogger, nil
	}

	out, file, err := logOutput(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel(cfg.Level),
		AddSource: cfg.Development || logLevel(cfg.Level) == slog.LevelDebug,
	}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	logFile = file
	baseLogger = slog.New(correlationHandler{next: h}).With(slog.String("app", config.AppName))
	slog.SetDefault(baseLogger)
	return baseLogger, nil
}

// logOutput resolves the configured destination. "file" and "both" append
// to cfg.FilePath; anything else writes to stdout.
func logOutput(cfg config.LoggingConfig) (io.Writer, *os.File, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Output))
	if mode != "file" && mode != "both" {
		return os.Stdout, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", cfg.FilePath, err)
	}
	if mode == "both" {
		return io.MultiWriter(os.Stdout, f), f, nil
	}
	return f, f, nil
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		if strings.EqualFold(s, "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return level
}

// correlationHandler copies request, span, session and report identifiers
// from the context into each record.
type correlationHandler struct {
	next slog.Handler
}

func (h correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	if id := TraceIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("otel_trace_id", id))
	}
	if id, _ := ctx.Value(SessionIDContextKey).(string); id != "" {
		r.AddAttrs(slog.String("session_id", id))
	}
	if id, _ := ctx.Value(ReportIDContextKey).(string); id != "" {
		r.AddAttrs(slog.String("report_id", id))
	}
	return h.next.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{next: h.next.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{next: h.next.WithGroup(name)}
}

// WithTraceID stores the request's correlation id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the correlation id, or the chi request id when none was
// stored.
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return id
	}
	return middleware.GetReqID(ctx)
}

// WithSessionID tags ctx with the dataset session a request works on
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, SessionIDContextKey, sessionID)
}

// WithReportID tags ctx with the report a request edits
func WithReportID(ctx context.Context, reportID string) context.Context {
	if reportID == "" {
		return ctx
	}
	return context.WithValue(ctx, ReportIDContextKey, reportID)
}

// CloseLogFile flushes and closes the log file opened for "file" or "both"
// output.
func CloseLogFile() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting forgets the configured logger so a test can
// initialise a fresh one.
func ResetLoggerForTesting() {
	CloseLogFile()
	loggerMu.Lock()
	baseLogger = nil
	loggerMu.Unlock()
}
