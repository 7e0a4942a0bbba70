// Package httpapi is the service's HTTP surface: storage notification
// pushes, signed read URLs, health probes, and a websocket feed of
// pipeline events.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/bus"
	"github.com/tiroq/scribed/internal/store"
	"github.com/tiroq/scribed/internal/trigger"
)

// Config holds the listen address and the default signed URL lifetime.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
}

// Server wires the routes to the dispatcher, store, and event bus.
type Server struct {
	cfg        Config
	store      store.Store
	dispatcher *trigger.Dispatcher
	bus        *bus.Bus
	logger     zerolog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg Config, st store.Store, d *trigger.Dispatcher, b *bus.Bus, logger zerolog.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:        cfg,
		store:      st,
		dispatcher: d,
		bus:        b,
		logger:     logger,
		engine:     gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine.Use(s.recovery(), s.requestID(), s.requestLogger())
	s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)

	v1 := s.engine.Group("/v1")
	v1.POST("/events", s.handleEvent)
	v1.GET("/signed-url", s.handleSignedURL)
	v1.GET("/events/stream", s.handleStream)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx ends, then drains connections with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady probes the store. Providers report a missing object as a
// clean miss, so any error here means the backend itself is unreachable.
func (s *Server) handleReady(c *gin.Context) {
	if _, err := s.store.Exists(c.Request.Context(), ".ready"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleSignedURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	ttl := s.cfg.SignedURLTTL
	if q := c.Query("ttl"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
		ttl = d
	}

	url, err := s.store.SignedReadURL(c.Request.Context(), key, ttl)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
	case errors.Is(err, store.ErrSignedURLUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "signed URLs not supported by this store"})
	case err != nil:
		s.logger.Error().Err(err).Str("key", key).Msg("signed URL failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signing failed"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"key":        key,
			"url":        url,
			"expires_at": time.Now().UTC().Add(ttl),
		})
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/readyz" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("http request")
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
