package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/api/handlers"
	"github.com/mindpattern/voicegate/config"
	"github.com/mindpattern/voicegate/internal/metrics"
	"github.com/mindpattern/voicegate/internal/server"
	"github.com/mindpattern/voicegate/internal/session"
	"github.com/mindpattern/voicegate/internal/telemetry"
	"github.com/mindpattern/voicegate/llm"
	"github.com/mindpattern/voicegate/llm/providers/openai"
	"github.com/mindpattern/voicegate/llm/tools"
	"github.com/mindpattern/voicegate/orchestrator"
	"github.com/mindpattern/voicegate/voice"
)

// Server wires the gateway together: provider, tools, orchestrator,
// session store, handlers, and the two HTTP listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	voiceGateway  *voice.Gateway

	metricsCollector *metrics.Collector
	store            session.Store
	redisStore       *session.RedisStore
	provider         llm.Provider

	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// Start brings up every component and both listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("voicegate", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init session store: %w", err)
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
	)

	return nil
}

// initStore selects the primary transcript store (redis when an address
// is configured, in-memory otherwise) and tees writes into the sqlite
// archive when a database path is set.
func (s *Server) initStore() error {
	var primary session.Store
	if s.cfg.Redis.Addr != "" {
		redisStore, err := session.NewRedisStore(session.RedisConfig{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
			TTL:          s.cfg.Redis.SessionTTL,
		}, s.logger)
		if err != nil {
			return err
		}
		s.redisStore = redisStore
		primary = redisStore
	} else {
		primary = session.NewMemoryStore(0, s.logger)
		s.logger.Info("using in-memory session store")
	}

	if s.cfg.Database.Path == "" {
		s.store = primary
		return nil
	}

	archive, err := session.NewArchiveStore(s.cfg.Database.Path, s.logger)
	if err != nil {
		s.logger.Warn("transcript archive unavailable", zap.Error(err))
		s.store = primary
		return nil
	}
	s.store = &session.Tee{Primary: primary, Archive: archive, Logger: s.logger}
	return nil
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	if s.cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is not configured")
	}

	s.provider = openai.New(openai.Config{
		BaseURL:    s.cfg.LLM.BaseURL,
		APIKey:     s.cfg.LLM.APIKey,
		Model:      s.cfg.Gateway.Model,
		Timeout:    s.cfg.LLM.Timeout,
		MaxRetries: s.cfg.LLM.MaxRetries,
	}, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderCheck(s.provider))
	if s.redisStore != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.redisStore.Ping))
	}

	registry := tools.NewRegistry(s.logger)
	if s.cfg.Tools.FakeWeather {
		if err := registry.Register(tools.NewFakeWeatherTool()); err != nil {
			return err
		}
		s.logger.Info("registered canned weather tool")
	} else {
		if err := registry.Register(tools.NewWeatherTool(s.cfg.Tools.WeatherAPIKey, "")); err != nil {
			return err
		}
		s.logger.Info("registered live weather tool")
	}

	executor := tools.NewExecutor(registry, s.logger,
		tools.WithTimeout(s.cfg.Tools.Timeout),
		tools.WithConcurrency(s.cfg.Tools.Concurrency),
	)

	orch := orchestrator.New(s.provider, registry, executor, s.logger)

	s.chatHandler = handlers.NewChatHandler(orch, s.store, s.metricsCollector,
		s.cfg.Gateway, s.provider.Name(), s.logger)
	s.voiceGateway = voice.NewGateway(s.cfg.Voice, s.store, s.metricsCollector, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/v1/chat/completions/stream", s.chatHandler.HandleStream)
	mux.HandleFunc("/api/v1/voice", s.voiceGateway.HandleVoice)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		BearerAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
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

// WaitForShutdown blocks on the HTTP manager's signal handling, then
// tears everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown closes components in reverse dependency order.
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

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Session store close error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
