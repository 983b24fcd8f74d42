// Package server assembles the gin engine and runs it with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketopshq/connecthub/internal/config"
	"github.com/marketopshq/connecthub/internal/handler"
	"github.com/marketopshq/connecthub/internal/pkg/response"
	"github.com/marketopshq/connecthub/internal/server/middleware"
)

// Server is the HTTP front of the subsystem.
type Server struct {
	engine *gin.Engine
	addr   string
	logger *zap.Logger
}

// New builds the engine, middleware stack and routes. rdb may be nil, which
// disables rate limiting (tests).
func New(cfg *config.Config, connectionHandler *handler.ConnectionHandler, jwtSecret string, rdb *redis.Client, logger *zap.Logger) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.ForwardedByClientIP = true

	engine.Use(
		middleware.Recovery(),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.CORS),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	tokenLimit := passthrough()
	connectLimit := passthrough()
	if rdb != nil {
		limiter := middleware.NewRateLimiter(rdb)
		// token reads are the hot path; connects hit provider endpoints and
		// get a much tighter budget
		tokenLimit = limiter.Limit("token", 600, time.Minute)
		connectLimit = limiter.Limit("connect", 30, time.Minute)
	}

	api := engine.Group("/api/v1", middleware.JWTAuth(jwtSecret))
	{
		api.GET("/providers", connectionHandler.ListProviders)

		api.GET("/connections", connectionHandler.List)
		api.GET("/connections/:provider", connectionHandler.Get)
		api.POST("/connections/:provider", connectLimit, connectionHandler.Create)
		api.DELETE("/connections/:provider", connectionHandler.Revoke)
		api.PATCH("/connections/:provider/metadata", connectionHandler.UpdateMetadata)
		api.GET("/connections/:provider/token", tokenLimit, connectionHandler.Token)

		api.GET("/audit", connectionHandler.AuditTrail)
	}

	return &Server{
		engine: engine,
		addr:   cfg.Server.Addr(),
		logger: logger,
	}
}

func passthrough() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

// Engine exposes the router, used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
