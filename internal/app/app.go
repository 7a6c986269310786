package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"captainpulse/internal/config"
	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/infrastructure"
	customMiddleware "captainpulse/internal/middleware"
	"captainpulse/internal/report"
	"captainpulse/internal/services"
	"captainpulse/internal/session"
	handlers "captainpulse/internal/transport/http"
	"captainpulse/internal/warehouse"
	"captainpulse/pkg/contracts"
)

// compressionLevel is the gzip level of JSON responses
const compressionLevel = 5

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.AnalyticsMetrics
	Sessions      *session.MemoryStore
	Reports       *report.Store
	Warehouse     *warehouse.Client
	Services      *ServiceContainer

	errorHandler *apierrors.ErrorHandler
	validator    *customMiddleware.Validator
	stopSweeper  context.CancelFunc
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Session   *services.SessionService
	Analysis  *services.AnalysisService
	Report    *services.ReportService
	Warehouse *services.WarehouseService
	Health    *services.HealthService
}

// NewApplication loads the configuration and logger from the environment
// and builds the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from an explicit configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
		validator:     customMiddleware.NewValidator(customMiddleware.DefaultMaxBodySize),
	}

	if otelProviders.Meter != nil {
		if app.Metrics, err = infrastructure.CreateAnalyticsMetrics(otelProviders.Meter); err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	a.Sessions = session.NewMemoryStore(a.Config.Session.TTL, a.Config.Session.MaxSessions, a.Logger)
	a.Sessions.OnChange = func(delta int) {
		a.Metrics.RecordSessionChange(context.Background(), delta)
	}
	a.Reports = report.NewStore(a.Logger)

	// a nil client, not a typed nil, marks the warehouse as absent
	var client services.WarehouseClient
	if a.Config.Warehouse.Enabled {
		wh, err := warehouse.Open(a.Config.Warehouse, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open warehouse: %w", err)
		}
		a.Warehouse = wh
		client = wh
	}

	sessionService := services.NewSessionService(a.Sessions, a.Metrics, a.Logger)
	reportService := services.NewReportService(a.Reports, a.Config.Analytics, a.Metrics, a.Logger)

	var pinger services.Pinger
	if client != nil {
		pinger = client
	}

	a.Services = &ServiceContainer{
		Session:   sessionService,
		Analysis:  services.NewAnalysisService(a.Sessions, a.Config.Analytics, a.Metrics, a.Logger),
		Report:    reportService,
		Warehouse: services.NewWarehouseService(a.Sessions, client, sessionService, a.Metrics, a.Logger),
		Health:    services.NewHealthService(contracts.Version, a.Sessions, reportService, pinger, a.Logger),
	}

	a.Logger.Info("Services initialized",
		slog.Bool("warehouse_enabled", client != nil),
		slog.Duration("session_ttl", a.Config.Session.TTL),
		slog.Int("max_sessions", a.Config.Session.MaxSessions))
	return nil
}

// setupRouter builds the middleware chain and mounts the API.
// Order: RequestID → Correlation → RealIP → OTel → Logger → Recoverer →
// headers → CORS → rate limit → Timeout.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.Correlation)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(a.errorHandler.Recoverer)

	secure := customMiddleware.DefaultSecureHeaders()
	secure.DevMode = a.Config.Logging.Development
	r.Use(secure.Handler)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
	}
	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	r.Route(config.APIBasePath, a.setupAPIRoutes)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes mounts every handler under the API base path
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout, a.Logger))
	r.Use(customMiddleware.ContentTypeValidator("application/json", "multipart/form-data"))

	healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Get(config.HealthEndpoint, healthHandler.HealthCheck)
	r.Get(config.HealthEndpoint+"/ready", healthHandler.ReadinessCheck)
	r.Get(config.HealthEndpoint+"/live", healthHandler.LivenessCheck)
	r.Get("/version", healthHandler.Version)

	maxUpload := a.Config.Session.MaxUploadBytes

	// uploads and CSV exports stay uncompressed
	r.Mount("/sessions", handlers.NewSessionHandler(a.Services.Session, maxUpload, a.Logger, a.errorHandler).Routes())
	r.Mount("/warehouse", handlers.NewWarehouseHandler(a.Services.Warehouse, a.validator, maxUpload, a.Logger, a.errorHandler).Routes())

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.Compress(compressionLevel))
		r.Mount("/analysis", handlers.NewAnalysisHandler(a.Services.Analysis, a.validator, a.Logger, a.errorHandler).Routes())
		r.Mount("/reports", handlers.NewReportHandler(a.Services.Report, a.validator, a.Logger, a.errorHandler).Routes())
	})
}

// getCORSConfig builds the CORS policy from the security settings
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			config.SessionHeader,
			config.ReportHeader,
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"X-Request-ID",
			config.SessionHeader,
			config.ReportHeader,
		},
		MaxAge: 300,
		Logger: a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}
}

// Start starts the session sweeper and the HTTP server. A server failure
// cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	sweepCtx, stop := context.WithCancel(ctx)
	a.stopSweeper = stop
	go a.Sessions.Run(sweepCtx, a.Config.Session.SweepInterval)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d%s", a.Config.Server.Port, config.APIBasePath)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.stopSweeper != nil {
		a.stopSweeper()
	}

	if a.Warehouse != nil {
		if err := a.Warehouse.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing warehouse", slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete",
		slog.Int("sessions_dropped", a.Sessions.Len()),
		slog.Int("reports_dropped", a.Reports.Len()))
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-sigCtx.Done()
	a.Logger.InfoContext(ctx, "Received shutdown signal")

	return a.Stop(ctx)
}
