// Package server exposes the HTTP API: task and project management, streamed
// user turns, the scheduler trigger and project agent callbacks.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/metrics"
	"github.com/dotcommander/pawject/internal/scheduler"
	"github.com/dotcommander/pawject/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

// Server owns the gin engine and the background tickers.
type Server struct {
	Service    *actions.Service
	Scheduler  *scheduler.Scheduler
	Supervisor *supervisor.Supervisor
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger

	engine *gin.Engine
}

// New builds the router. gatherer backs /metrics and may be nil.
func New(svc *actions.Service, sched *scheduler.Scheduler, sup *supervisor.Supervisor, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		Service:    svc,
		Scheduler:  sched,
		Supervisor: sup,
		Metrics:    m,
		Gatherer:   gatherer,
		Logger:     logger.With("component", "server"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(s.observe())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.POST("/scheduler", s.handleTick)

		api.GET("/project-agent", s.handleAgentStatus)
		api.POST("/project-agent", s.handleAgentControl)
		api.PATCH("/project-agent", s.handleAgentHeartbeat)

		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.POST("/projects/:id/context", s.handleAddContext)
		api.GET("/projects/:id/drafts", s.handleListDrafts)
		api.GET("/projects/:id/history", s.handleHistory)
		api.DELETE("/context/:id", s.handleRemoveContext)

		api.GET("/outputs", s.handleListOutputs)
		api.DELETE("/outputs/:id", s.handleDeleteOutput)

		api.GET("/user-todos", s.handleListUserTodos)
		api.POST("/user-todos", s.handleCreateUserTodo)
		api.PATCH("/user-todos", s.handleResolveUserTodo)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id/messages", s.handleListMessages)
		api.POST("/tasks/:id/control", s.handleTaskControl)

		api.POST("/messages", s.handleSendMessage)
		api.GET("/ask-user-queries", s.handleAskUserQueries)
		api.GET("/events", s.handleEvents)
	}
	return r
}

// Run serves addr and drives the scheduler and crash reaper until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, tickEvery, reapEvery time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.Scheduler != nil && tickEvery > 0 {
		g.Go(func() error {
			s.Scheduler.Run(gctx, tickEvery)
			return nil
		})
	}
	if s.Supervisor != nil && reapEvery > 0 {
		g.Go(func() error {
			s.Supervisor.RunReaper(gctx, reapEvery)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if s.Supervisor != nil {
			s.Supervisor.Shutdown(shutdownCtx)
		}
		if s.Service != nil && s.Service.Pool != nil {
			if err := s.Service.Pool.Shutdown(shutdownCtx); err != nil {
				s.Logger.Warn("background turns still running at shutdown", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
