package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/bdarnell/tornado-tracing/internal/api/http"
	"github.com/bdarnell/tornado-tracing/internal/api/middleware"
	"github.com/bdarnell/tornado-tracing/internal/appstats"
	"github.com/bdarnell/tornado-tracing/internal/cache"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/monitoring"
	"github.com/bdarnell/tornado-tracing/internal/ioloop"
	"github.com/bdarnell/tornado-tracing/internal/recording"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	loop      *ioloop.Loop
	cache     *cache.Adapter
	recording *recording.Recording
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a new server instance. A nil logger is built from
// cfg.Logging.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = newLogger(cfg.Logging)
	}

	logger.Info("Initializing tracing demo server",
		zap.String("addr", cfg.Server.Address()),
		zap.Bool("appstats", cfg.Appstats.Enabled),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// Metrics on a private registry so servers can be built side by side
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	loop := ioloop.New(logger.Logger)

	// Tracing backend, only built when enabled
	var (
		backend recording.Backend
		ui      *appstats.UI
		store   *cache.Adapter
	)
	if cfg.Appstats.Enabled {
		opts, err := loadOptions(cfg.Appstats)
		if err != nil {
			return nil, err
		}
		store, err = cache.Open(cfg.Cache, logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		lib := appstats.New(opts, store, logger.Logger)
		backend = recording.NewAppstatsBackend(lib)
		ui = appstats.NewUI(lib.Store(), logger.Logger)
		logger.Info("Appstats recording enabled",
			zap.Float64("record_fraction", opts.RecordFraction),
			zap.String("key_prefix", opts.KeyPrefix),
			zap.Int64("key_modulus", opts.KeyModulus),
		)
	}

	rec := recording.New(cfg.Appstats.Enabled, backend,
		recording.WithLoop(loop),
		recording.WithLogger(logger.Logger),
		recording.WithMetrics(metrics),
	)
	client := recording.NewAsyncHTTPClient(rec, loop, cfg.Client, logger.Logger)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	handlers := apihttp.NewHandlers(rec, client, loop, metrics, cfg.Appstats.MountPrefix, logger.Logger)

	// Traced demo routes
	traced := router.Group("/", rec.Middleware())
	traced.GET("/", handlers.Root)
	traced.GET("/delay", handlers.Delay)

	// Plain handler behind the recording fallback
	router.GET("/echo", rec.Fallback(apihttp.EchoHandler()))

	// Operational endpoints
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if ui != nil {
		mountUI(router, cfg, ui, logger)
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		loop:      loop,
		cache:     store,
		recording: rec,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Loop returns the callback loop the server delivers fetches on.
func (s *Server) Loop() *ioloop.Loop {
	return s.loop
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() {
		if err := s.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Callback loop stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{Handler: s.router}
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	// let trace ends queued by the last requests run before the loop stops
	if err := s.loop.Do(shutdownCtx, func() {}); err != nil {
		s.logger.Warn("Callback loop not drained", zap.Error(err))
	}
	return nil
}

// Close releases the cache connection and flushes the logger.
func (s *Server) Close() error {
	s.loop.Stop()

	var err error
	if s.cache != nil {
		if err = s.cache.Close(); err != nil {
			s.logger.Error("Failed to close cache", zap.Error(err))
			err = fmt.Errorf("failed to close cache: %w", err)
		}
	}

	// Sync logger before exit
	_ = s.logger.Sync()
	return err
}

func newLogger(cfg config.LogConfig) *logging.Logger {
	logCfg := logging.DefaultConfig()
	if cfg.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		logCfg.Level = cfg.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return logging.NewDefault()
	}
	return logger
}

// loadOptions layers APPSTATS_OPTIONS over the options file.
func loadOptions(cfg config.AppstatsConfig) (appstats.Options, error) {
	var fromFile map[string]string
	if cfg.OptionsFile != "" {
		var err error
		if fromFile, err = appstats.LoadOptionsFile(cfg.OptionsFile); err != nil {
			return appstats.Options{}, err
		}
	}
	return appstats.ParseOptions(appstats.MergeOptions(fromFile, cfg.Options))
}

// mountUI serves the appstats UI under the configured prefix, rate limited
// and open to cross-origin reads.
func mountUI(router *gin.Engine, cfg *config.Config, ui http.Handler, logger *logging.Logger) {
	prefix := "/" + strings.Trim(cfg.Appstats.MountPrefix, "/")
	handler := gin.WrapH(http.StripPrefix(prefix, ui))

	group := router.Group(prefix)
	group.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	group.Use(middleware.RateLimit(cfg.RateLimit))

	// relative links in the listing need the trailing slash
	group.GET("", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, prefix+"/")
	})
	group.GET("/*path", handler)
	group.HEAD("/*path", handler)
	group.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	logger.Info("Appstats UI mounted",
		zap.String("prefix", prefix),
		zap.Bool("rate_limited", cfg.RateLimit.Enabled),
	)
}
