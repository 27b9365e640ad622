// Package server exposes the HTTP API: the SSE chat stream, cancellation,
// status probes, resume, and history.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tripwise/server/internal/agent/graph"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/core"
	"github.com/tripwise/server/internal/interrupt"
	logx "github.com/tripwise/server/pkg/logger"
)

// Config holds HTTP listener settings, sourced from env.
type Config struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// Server wires the pipeline runner and shared services into the HTTP API.
type Server struct {
	engine     *gin.Engine
	runner     graph.Runner
	states     repo.StateRepository
	interrupts *interrupt.Registry
	rdb        redis.Cmdable
	port       int
}

// Options are the dependencies the server needs. RDB may be nil when the
// deployment runs on in-memory state.
type Options struct {
	Runner     graph.Runner
	States     repo.StateRepository
	Interrupts *interrupt.Registry
	RDB        redis.Cmdable
	Config     Config
	Env        core.Environment
}

func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("server: runner is required")
	}
	if opts.States == nil {
		return nil, fmt.Errorf("server: state repository is required")
	}
	if opts.Interrupts == nil {
		return nil, fmt.Errorf("server: interrupt registry is required")
	}
	if opts.Config.Port <= 0 {
		opts.Config.Port = 8080
	}

	if opts.Env == core.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), cors())

	s := &Server{
		engine:     engine,
		runner:     opts.Runner,
		states:     opts.States,
		interrupts: opts.Interrupts,
		rdb:        opts.RDB,
		port:       opts.Config.Port,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/api/health", s.handleHealth)

	chat := s.engine.Group("/api/chat")
	chat.POST("/stream", s.handleChatStream)
	chat.POST("/cancel", s.handleCancel)
	chat.GET("/status/:query_id", s.handleStatus)
	chat.POST("/resume", s.handleResume)
	chat.GET("/history/:thread_id", s.handleHistory)
}

// cors allows browser clients on any origin; the API carries no cookies.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Expose-Headers", "X-Query-ID, X-Thread-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Start launches the server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Warn().Err(err).Msg("server shutdown")
		}
	}()

	logx.Info().Int("port", s.port).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}
