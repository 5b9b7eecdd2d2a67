// Package server provides the HTTP surface of playertrackd.
//
// Routes:
//
//	GET  /ws                      live viewer WebSocket
//	POST /api/ingest              poll rounds from the pinger (bearer token)
//	GET  /api/servers             roster with current value, record and peak
//	GET  /api/servers/:id/summary window statistics of one server
//	GET  /metrics                 Prometheus exposition
//
// Every response carries the browser hardening headers.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/governor"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/ingest"
	"github.com/xtxerr/playertrack/internal/live"
	"github.com/xtxerr/playertrack/internal/loader"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/metrics"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// HTTP holds the listen address, timeouts and CSP.
	HTTP loader.HTTPConfig

	// MaxPayload caps a single inbound WebSocket frame.
	MaxPayload int64

	// IngestToken enables POST /api/ingest when set.
	IngestToken string
}

// Deps are the components the server exposes.
type Deps struct {
	State    *live.State
	Hub      *hub.Hub
	Governor *governor.Governor
	Pipeline *ingest.Pipeline
	Exporter *metrics.Exporter
}

// =============================================================================
// Server
// =============================================================================

// Server serves viewers, ingestion and metrics.
type Server struct {
	cfg      Config
	state    *live.State
	hub      *hub.Hub
	governor *governor.Governor
	pipeline *ingest.Pipeline
	exporter *metrics.Exporter

	authLimiter *RateLimiter
	upgrader    websocket.Upgrader
	router      *gin.Engine
	http        *http.Server
}

// New creates a server.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = defaults.DefaultMaxPayload
	}

	s := &Server{
		cfg:         cfg,
		state:       deps.State,
		hub:         deps.Hub,
		governor:    deps.Governor,
		pipeline:    deps.Pipeline,
		exporter:    deps.Exporter,
		authLimiter: NewRateLimiter(defaults.DefaultAuthFailureLimit, defaults.DefaultAuthFailureWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the governor before upgrading.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router = s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(), securityHeaders(s.cfg.HTTP.ContentSecurityPolicy))

	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	api.GET("/servers", s.handleServers)
	api.GET("/servers/:id/summary", s.handleSummary)
	if s.cfg.IngestToken != "" && s.pipeline != nil {
		api.POST("/ingest", s.ingestAuth(), s.handleIngest)
	} else {
		log.Info("ingest endpoint disabled, no token configured")
	}

	if s.exporter != nil {
		r.GET("/metrics", gin.WrapH(s.exporter.Handler()))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr())
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and
// closes every viewer connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info("listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	cleanup := time.NewTicker(defaults.DefaultAuthFailureWindow)
	defer cleanup.Stop()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "serve")
		case <-cleanup.C:
			s.authLimiter.Cleanup()
		case <-ctx.Done():
			return s.shutdown()
		}
	}
}

func (s *Server) shutdown() error {
	log.Info("shutting down")

	timeout := s.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaults.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.http.Shutdown(ctx)

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.hub.CloseAll()

	log.Info("shutdown complete")
	return err
}
