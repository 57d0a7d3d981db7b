package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sitestats/internal/api/handlers"
	"sitestats/internal/ingestion"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Server represents the HTTP server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	limiter *clientLimiter
	logger  *pterm.Logger
	port    int
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Production bool
	TrackPath  string // GET requests to this path are recorded as visits

	// RateLimit requests per client IP within RateWindow; 0 disables the limiter
	RateLimit  int
	RateWindow time.Duration
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config, visitsHandler *handlers.VisitsHandler, realtimeHandler *handlers.RealtimeHandler, recorder *ingestion.Recorder, logger *pterm.Logger) *Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(requestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/visits/stream"})))

	var limiter *clientLimiter
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		limiter = newClientLimiter(cfg.RateLimit, cfg.RateWindow)
		router.Use(rateLimitMiddleware(limiter))
	}

	trackPath := cfg.TrackPath
	if trackPath == "" {
		trackPath = "/"
	}
	if recorder != nil {
		router.Use(trackVisits(recorder, trackPath, logger))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "sitestats API server",
			"stats":   "/api/visits/stats",
			"count":   "/api/visits/count",
			"health":  "/health",
		})
	})

	// The tracked page may live elsewhere; it still needs a route for the middleware to run
	if trackPath != "/" {
		router.GET(trackPath, func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
	}

	api := router.Group("/api")
	{
		api.GET("/visits/stats", visitsHandler.GetStats)
		api.GET("/visits/count", visitsHandler.GetCount)

		if realtimeHandler != nil {
			api.GET("/visits/realtime", realtimeHandler.GetCurrentMetrics)
			api.GET("/visits/stream", realtimeHandler.StreamMetrics)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router:  router,
		limiter: limiter,
		logger:  logger,
		port:    cfg.Port,
		server: &http.Server{
			Addr:           addr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   300 * time.Second, // Long timeout for SSE streams
			MaxHeaderBytes: 1 << 20,
		},
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("Starting web server", s.logger.Args("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithCaller().Error("Web server failed", s.logger.Args("error", err))
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs each request through pterm instead of gin's default writer
func requestLogger(logger *pterm.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Trace("HTTP request",
			logger.Args(
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", c.ClientIP(),
			))
	}
}

// trackVisits records a visit for every GET of path before the handler runs.
// Recording failures are logged and never block the page.
func trackVisits(recorder *ingestion.Recorder, path string, logger *pterm.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == path {
			_, err := recorder.Record(c.Request.Context(), ingestion.Request{
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
				Referrer:  c.Request.Referer(),
				URL:       c.Request.URL.RequestURI(),
			})
			if err != nil {
				logger.Warn("Visit not recorded", logger.Args("error", err, "path", path))
			}
		}

		c.Next()
	}
}
