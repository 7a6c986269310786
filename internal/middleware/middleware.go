package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"captainpulse/internal/config"
	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/infrastructure"
)

type contextKey string

// RequestIDKey is the context key for request ID
const RequestIDKey contextKey = "request-id"

const requestIDHeader = "X-Request-ID"

// RequestID assigns every request an id, reusing a client supplied
// X-Request-ID. It runs first so everything downstream can log it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)

		traceID := id
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		next.ServeHTTP(w, r.WithContext(infrastructure.WithTraceID(ctx, traceID)))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return infrastructure.GetTraceID(ctx)
}

// Correlation copies the session and report handles of a request into its
// context so every log line written while serving it carries them.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := infrastructure.WithSessionID(r.Context(), handle(r, config.SessionHeader, "session_id"))
		ctx = infrastructure.WithReportID(ctx, handle(r, config.ReportHeader, "report_id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func handle(r *http.Request, header, param string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(param))
}

// StructuredLogger writes one access log line per request. Client errors
// log at warn and server errors at error.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			} else if status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// clientIdle is how long an unused per-client bucket is kept
const clientIdle = 10 * time.Minute

// RateLimiter throttles each client address with its own token bucket so one
// caller replaying uploads cannot starve the others.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	swept   time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter allows rps requests per second per client with the given
// burst.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
		clients: make(map[string]*client),
		swept:   time.Now(),
	}
}

func (rl *RateLimiter) allow(addr string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.swept) > clientIdle {
		for k, c := range rl.clients {
			if now.Sub(c.seen) > clientIdle {
				delete(rl.clients, k)
			}
		}
		rl.swept = now
	}

	c, ok := rl.clients[addr]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[addr] = c
	}
	c.seen = now
	return c.limiter.AllowN(now, 1)
}

// Handler rejects requests over the client's budget with 429
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if rl.allow(addr) {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("client", addr),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", "1")
		writeProblem(w, r, http.StatusTooManyRequests, apierrors.TypeRateLimit, "Rate limit exceeded. Please retry later")
	})
}

// Timeout puts a deadline on the request context. Handlers notice it through
// their context and write the 504 themselves.
func Timeout(timeout time.Duration, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if ctx.Err() == context.DeadlineExceeded {
				logger.WarnContext(r.Context(), "request deadline exceeded",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", timeout),
				)
			}
		})
	}
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	Logger           *slog.Logger
}

func (c CORSConfig) allows(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func orDefault(values []string, def ...string) string {
	if len(values) == 0 {
		values = def
	}
	return strings.Join(values, ", ")
}

// CORS answers preflights and decorates responses for the browser client.
// Exposed headers default to the download and handle headers the client reads.
func CORS(cfg CORSConfig) func(next http.Handler) http.Handler {
	methods := orDefault(cfg.AllowedMethods, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions)
	headers := orDefault(cfg.AllowedHeaders, "Accept", "Content-Type", requestIDHeader, config.SessionHeader, config.ReportHeader)
	exposed := orDefault(cfg.ExposedHeaders, "Content-Disposition", requestIDHeader, config.SessionHeader, config.ReportHeader)
	maxAge := "300"
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := cfg.allows(origin)

			h := w.Header()
			if allowed && origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Expose-Headers", exposed)
			h.Set("Access-Control-Max-Age", maxAge)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.Logger != nil {
				cfg.Logger.DebugContext(r.Context(), "CORS preflight",
					slog.String("origin", origin),
					slog.Bool("allowed", allowed))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// RealIP sets RemoteAddr from X-Real-IP or X-Forwarded-For
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}

// Compress gzips responses at the given level
func Compress(level int) func(next http.Handler) http.Handler {
	return middleware.Compress(level)
}

// writeProblem renders an RFC 7807 body for failures raised by the chain
// itself, before any handler runs.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, detail string) {
	problem := apierrors.NewProblemDetails(status, problemType, http.StatusText(status), detail, r.URL.Path).
		WithExtension("trace_id", GetRequestID(r.Context()))
	render.Render(w, r, problem)
}
