package server

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/api/middleware"
	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/config"
	"github.com/scriptbox/scriptbox/internal/http"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/monitoring"
	"github.com/scriptbox/scriptbox/internal/providers"
	"github.com/scriptbox/scriptbox/internal/sandbox"
	"github.com/scriptbox/scriptbox/internal/ws"
)

// Version is the service version reported by the API and the system
// capability.
const Version = "0.1.0"

// Server wraps the HTTP server and engine dependencies.
type Server struct {
	cfg      *config.Config
	router   *gin.Engine
	srv      *nethttp.Server
	pool     *sandbox.Pool
	registry *capability.Registry
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// New creates a server instance from configuration.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics()

	registry := capability.NewRegistry()
	if err := registerProviders(registry, cfg, logger); err != nil {
		return nil, err
	}

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.DeadlineMs = cfg.Sandbox.DeadlineMs
	sandboxCfg.OuterBufferMs = cfg.Sandbox.OuterBufferMs
	sandboxCfg.MaxCallStack = cfg.Sandbox.MaxCallStack
	sandboxCfg.EnableConsole = cfg.Sandbox.EnableConsole
	sandboxCfg.HostCallTimeout = time.Duration(cfg.Sandbox.HostCallTimeout) * time.Millisecond

	pool, err := sandbox.NewPool(sandboxCfg, registry, logger, metrics, cfg.Sandbox.PoolSize)
	if err != nil {
		return nil, err
	}

	router := buildRouter(cfg, pool, registry, metrics, logger)

	return &Server{
		cfg:      cfg,
		router:   router,
		pool:     pool,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func buildRouter(
	cfg *config.Config,
	pool *sandbox.Pool,
	registry *capability.Registry,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := http.NewHandlers(pool, registry, metrics, logger, Version)
	wsHandler := ws.NewHandler(pool, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/capabilities", handlers.ListCapabilities)
	router.POST("/execute", handlers.Execute)
	router.POST("/executions/:id/terminate", handlers.Terminate)

	router.GET("/stream", wsHandler.HandleConnection)

	return router
}

func registerProviders(registry *capability.Registry, cfg *config.Config, logger *logging.Logger) error {
	if err := registry.Register(providers.NewStore()); err != nil {
		return err
	}
	if err := registry.Register(providers.NewFetch(providers.FetchConfig{
		Timeout:           time.Duration(cfg.Fetch.TimeoutMs) * time.Millisecond,
		MaxRetries:        cfg.Fetch.MaxRetries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxResponseBytes:  cfg.Fetch.MaxResponseBytes,
	})); err != nil {
		return err
	}
	if err := registry.Register(providers.NewSystem(Version)); err != nil {
		return err
	}

	logger.Info("capability providers registered",
		zap.Strings("capabilities", registry.Names()))
	return nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.srv = &nethttp.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("starting scriptbox service", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if err == nethttp.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and destroys the sandbox pool. Pending
// executions are failed with a Terminated outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.pool.Close()
	s.logger.Info("scriptbox service stopped")
	return err
}

// Router exposes the Gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
