package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/config"
	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/db"
	"github.com/voxel-agent/agentlink/internal/events"
	intnet "github.com/voxel-agent/agentlink/internal/network"
)

// ChatHistory returns stored chat lines, newest first.
type ChatHistory interface {
	RecentChat(limit int) ([]db.ChatRecord, error)
}

// Server is the agent HTTP API.
type Server struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	commander connector.Commander
	history   ChatHistory
	logger    zerolog.Logger

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. history may be nil when the journal
// is disabled.
func NewServer(cfg *config.Config, eventBus *events.EventBus, commander connector.Commander, history ChatHistory) *Server {
	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		commander: commander,
		history:   history,
		logger:    log.With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.API.Listen
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", addr).Msg("agent API starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(RequireToken(s.cfg.API.Token))
	{
		protected.GET("/status", s.handleStatus)
		protected.GET("/system", s.handleSystem)
		protected.GET("/config", s.handleGetConfig)
		protected.GET("/chat/history", s.handleChatHistory)
		protected.GET("/events", s.handleEvents)

		protected.POST("/chat", s.handleChat)
		protected.POST("/move", s.handleMove)
		protected.POST("/dig", s.handleDig)
		protected.POST("/place", s.handlePlace)
		protected.POST("/disconnect", s.handleDisconnect)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "agentlink API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
