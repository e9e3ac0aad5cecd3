// Package server exposes an Engine over HTTP: a JSON command API, a
// WebSocket hub that pushes state after every engine event, Prometheus
// metrics and an embedded browser client.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/ratelimit"
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds graceful shutdown once the context is cancelled.
const shutdownTimeout = 5 * time.Second

// Config configures a Server. Zero values fall back to the package defaults.
type Config struct {
	Addr string

	// TickInterval is used when a client resumes the driver.
	TickInterval time.Duration

	// CommandRate and CommandBurst bound mutating commands per client and
	// action.
	CommandRate  float64
	CommandBurst int

	// Gatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = constants.DefaultAddr
	}
	if c.TickInterval <= 0 {
		c.TickInterval = constants.DefaultTickInterval
	}
	if c.CommandRate <= 0 {
		c.CommandRate = constants.DefaultCommandRate
	}
	if c.CommandBurst <= 0 {
		c.CommandBurst = constants.DefaultCommandBurst
	}
	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Server serves the command API and live state stream for one engine.
type Server struct {
	engine  *simulation.Engine
	cfg     Config
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	hub     *Hub
	router  *gin.Engine

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewServer builds the router and subscribes the WebSocket hub to e. Call
// Close (or let ListenAndServe return) to release the subscription.
func NewServer(e *simulation.Engine, cfg Config) *Server {
	cfg = cfg.withDefaults()
	limiter := ratelimit.NewLimiter(cfg.CommandRate, cfg.CommandBurst)

	s := &Server{
		engine:  e,
		cfg:     cfg,
		logger:  cfg.Logger,
		limiter: limiter,
		hub:     NewHub(e, limiter, cfg.TickInterval, cfg.Logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/", handleIndex)
	router.GET("/ws", s.hub.ServeWS)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/state", s.handleState)
		api.GET("/stats", s.handleStats)
		api.POST("/step", s.throttle("step"), s.handleStep)
		api.POST("/params", s.throttle("set_params"), s.handleParams)
		api.POST("/rotate", s.throttle("rotate"), s.handleRotate)
		api.POST("/nodes", s.throttle("add_node"), s.handleAddNode)
		api.DELETE("/nodes", s.throttle("remove_node"), s.handleRemoveNode)
		api.DELETE("/nodes/:id", s.throttle("remove_node"), s.handleRemoveNodeByID)
		api.POST("/nodes/:id/collapse", s.throttle("collapse"), s.handleCollapse)
		api.POST("/reconnect", s.throttle("reconnect"), s.handleReconnect)
		api.POST("/population", s.throttle("set_node_count"), s.handlePopulation)
		api.POST("/driver", s.throttle("driver"), s.handleDriver)
	}
	return router
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Addr returns the address the server is listening on. Returns empty string
// if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close disconnects WebSocket clients and unsubscribes from the engine.
func (s *Server) Close() { s.hub.Close() }

// ListenAndServe serves on the configured address and blocks until ctx is
// cancelled. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", "error", err)
		}
	}()

	err = srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
