package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/service"
	"github.com/harpou/ai-gateway/internal/infrastructure/auth"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
	"github.com/harpou/ai-gateway/internal/infrastructure/llm"
	"github.com/harpou/ai-gateway/internal/infrastructure/logger"
	"github.com/harpou/ai-gateway/internal/interfaces/http/handlers"
)

// Deps aggregates everything the HTTP surface needs.
type Deps struct {
	Config     *config.Config
	Connector  *llm.Connector
	Catalog    *llm.Catalog
	Refresher  *llm.CatalogRefresher
	Queue      service.TaskQueue
	Principals *auth.Store
	Audit      *logger.AuditLogger
	Logger     *zap.Logger
}

// Server is the OpenAI-compatible HTTP surface.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the router and handlers.
func NewServer(deps Deps) *Server {
	if deps.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(deps.Logger))
	router.Use(requestIDMiddleware())

	chatHandler := handlers.NewChatHandler(
		deps.Connector, deps.Queue, deps.Config.AgentModelPrefix, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Catalog, deps.Refresher, deps.Logger)
	taskHandler := handlers.NewTaskHandler(deps.Queue, deps.Logger)

	// Liveness plus per-backend circuit state. Unauthenticated.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"time":     time.Now().Unix(),
			"backends": deps.Connector.Health(),
		})
	})

	limiters := auth.NewLimiterPool()

	v1 := router.Group("/v1")
	v1.Use(authMiddleware(deps.Principals, deps.Logger))
	v1.Use(rateLimitMiddleware(limiters))
	{
		v1.GET("/models", modelsHandler.List)
		v1.POST("/chat/completions", auditMiddleware(deps.Audit), chatHandler.ChatCompletions)
		v1.GET("/tasks/status/:id", taskHandler.Status)
	}

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: deps.Logger,
	}
}

// Start launches the listener in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// ginLogger logs one structured line per request.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
