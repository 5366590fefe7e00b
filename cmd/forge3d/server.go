package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/api/handlers"
	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/export"
	"github.com/openfoundry/forge3d/genai/image"
	"github.com/openfoundry/forge3d/genai/threed"
	"github.com/openfoundry/forge3d/internal/metrics"
	"github.com/openfoundry/forge3d/internal/server"
	"github.com/openfoundry/forge3d/panels"
	"github.com/openfoundry/forge3d/pipeline"
	"github.com/openfoundry/forge3d/state"
)

// Server wires the store, provider clients, services, and handlers, and
// runs the API and metrics listeners on separate ports.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	store      state.Store
	redisStore *state.RedisStore
	runner     *pipeline.Runner

	healthHandler    *handlers.HealthHandler
	productHandler   *handlers.ProductHandler
	packagingHandler *handlers.PackagingHandler
	demoHandler      *handlers.DemoHandler

	metricsCollector *metrics.Collector

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server from loaded configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Start initializes all components and starts both listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("forge3d", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("mock_mode", s.cfg.Demo.MockMode),
	)

	return nil
}

// initStore connects to Redis, falling back to the in-memory store so the
// service stays usable for local development without one.
func (s *Server) initStore() error {
	rs, err := state.NewRedisStore(s.cfg.Redis, s.logger)
	if err != nil {
		s.logger.Warn("Redis unavailable, using in-memory state store",
			zap.String("addr", s.cfg.Redis.Addr),
			zap.Error(err))
		s.store = state.NewMemoryStore()
		return nil
	}
	s.redisStore = rs
	s.store = rs
	s.logger.Info("Connected to Redis state store", zap.String("addr", s.cfg.Redis.Addr))
	return nil
}

// initHandlers builds the provider clients, services, and HTTP handlers.
// A missing provider API key disables that provider rather than failing
// startup; affected operations report not-configured errors when called.
func (s *Server) initHandlers() error {
	s.runner = pipeline.NewRunner(s.logger)

	var imageGen image.Generator
	if gemini, err := image.NewClient(s.cfg.Gemini, s.logger); err != nil {
		s.logger.Warn("Gemini client disabled", zap.Error(err))
	} else {
		imageGen = gemini
	}

	var meshGen threed.Generator
	if trellis, err := threed.NewClient(s.cfg.Trellis, s.logger); err != nil {
		s.logger.Warn("Trellis client disabled", zap.Error(err))
	} else {
		meshGen = trellis
	}

	pipelineSvc := pipeline.NewService(s.store, imageGen, meshGen, s.metricsCollector, s.logger)

	var mockSvc handlers.MockPipeline
	if s.cfg.Demo.MockMode {
		mockSvc = pipeline.NewMockService(s.store, s.cfg.Demo, s.logger)
		s.logger.Info("Mock mode enabled, create/edit runs use fixtures",
			zap.String("fixtures_path", s.cfg.Demo.FixturesPath))
	}

	panelSvc := panels.NewService(imageGen, s.store, s.logger)

	exportSvc, err := export.NewService(s.cfg.Export, s.metricsCollector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init export service: %w", err)
	}

	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	if s.redisStore != nil {
		s.healthHandler.RegisterCheck(handlers.PingCheck{
			CheckName: "redis",
			Ping:      s.redisStore.Ping,
		})
	}

	s.productHandler = handlers.NewProductHandler(s.store, pipelineSvc, mockSvc, exportSvc, s.runner, s.logger)
	s.packagingHandler = handlers.NewPackagingHandler(s.store, panelSvc, exportSvc, s.runner, s.logger)
	s.demoHandler = handlers.NewDemoHandler(s.store, s.cfg.Demo, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	s.healthHandler.RegisterRoutes(mux)
	s.productHandler.RegisterRoutes(mux)
	s.packagingHandler.RegisterRoutes(mux)
	s.demoHandler.RegisterRoutes(mux)

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal arrives, then shuts
// everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listeners, waits for in-flight generation runs, and
// closes the store.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.runner != nil {
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.runner.Wait(waitCtx); err != nil {
			s.logger.Warn("Background runs did not finish before shutdown", zap.Error(err))
		}
	}

	if s.redisStore != nil {
		if err := s.redisStore.Close(); err != nil {
			s.logger.Error("Redis store close error", zap.Error(err))
		}
	}

	s.logger.Info("Shutdown complete")
}
