package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	apihttp "github.com/GriffinCanCode/AgentOS/exokernel/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/programs"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ws"
)

// ConsolePath is the WebSocket console stream.
const ConsolePath = "/ws/console"

const shutdownGrace = 5 * time.Second

// Kernel is everything the monitor reads from a running kernel.
type Kernel interface {
	apihttp.Source
	Done() <-chan struct{}
}

// Server is the read-only monitor HTTP server.
type Server struct {
	router  *gin.Engine
	handler http.Handler
	logger  *logging.Logger
	config  config.MonitorConfig
}

// NewServer wires the monitor routes for k. tracer may be nil.
func NewServer(cfg config.MonitorConfig, k Kernel, registry *programs.Registry, logger *logging.Logger, tracer *tracing.Tracer) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("server")
	metrics := k.Metrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if tracer != nil {
		router.Use(tracing.HTTPMiddleware(tracer))
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowOrigins)))
	if cfg.RateLimit > 0 {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit),
			zap.Int("burst", cfg.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             cfg.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(k, registry, logger)
	aggregator := apihttp.NewMetricsAggregator(k)
	wsHandler := ws.NewHandler(k, metrics, logger)

	router.GET("/", func(c *gin.Context) {
		var routes []string
		for _, r := range router.Routes() {
			routes = append(routes, r.Method+" "+r.Path)
		}
		c.JSON(http.StatusOK, gin.H{
			"service": "exokernel monitor",
			"boot_id": k.Snapshot().BootID,
			"routes":  routes,
		})
	})
	router.GET("/health", handlers.Health)

	router.GET("/envs", handlers.ListEnvs)
	router.GET("/envs/:id", handlers.GetEnv)
	router.GET("/clocks", handlers.Clocks)

	router.GET("/programs", handlers.ListPrograms)
	router.GET("/programs/discover", handlers.DiscoverPrograms)

	router.GET("/monitor/:cmd", handlers.Command)
	router.GET("/console/tail", handlers.ConsoleTail)
	router.GET(ConsolePath, wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)

	s := &Server{router: router, handler: router, logger: logger, config: cfg}
	if cfg.Gzip {
		gz := gzhttp.GzipHandler(router)
		s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// upgrades need the raw connection
			if r.URL.Path == ConsolePath {
				router.ServeHTTP(w, r)
				return
			}
			gz.ServeHTTP(w, r)
		})
	}
	return s
}

// Handler is the root handler, compression included.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConns)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("Monitor listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down monitor...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("monitor shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
