package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agoramesh/agora-backend/pkg/logging"

	"github.com/agoramesh/agora-backend/internal/economy/api/handlers"
	"github.com/agoramesh/agora-backend/internal/economy/api/middleware"
)

// Server is the node's HTTP surface: the economy API plus the Prometheus
// scrape endpoint on the same listener.
type Server struct {
	router  *gin.Engine
	handler *handlers.Handler
	logger  logging.Logger
	srv     *http.Server
}

func NewServer(handler *handlers.Handler, logger logging.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())

	// Configure CORS
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Content-Length, Accept-Encoding, Origin, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s := &Server{
		router:  router,
		handler: handler,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/status", s.handler.GetStatus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")

	api.POST("/tasks", s.handler.CreateTask)
	api.GET("/tasks/:id", s.handler.GetTask)
	api.POST("/tasks/:id/bids", s.handler.SubmitBid)
	api.POST("/tasks/:id/complete", s.handler.CompleteTask)
	api.POST("/tasks/:id/fail", s.handler.FailTask)

	api.GET("/account", s.handler.GetAccount)
	api.GET("/protocols", s.handler.ListProtocols)

	api.POST("/proposals", s.handler.CreateProposal)
	api.GET("/proposals", s.handler.ListProposals)
	api.GET("/proposals/:id", s.handler.GetProposal)
	api.POST("/proposals/:id/votes", s.handler.SubmitVote)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start(port string) error {
	s.logger.Infof("Starting server on port %s", port)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.router,
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
