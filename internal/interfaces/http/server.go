// Package http exposes the workflow service over a role-gated REST API.
// Callers identify themselves with the X-Actor-Role and X-Actor-ID headers,
// which are trusted as given.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tutor-matching/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Exporter writes the admin pipeline workbook
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// HealthChecker reports component health for GET /health
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string // gin mode: release, debug or test
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server. exporter and health may be nil.
func NewServer(config ServerConfig, svc service.WorkflowService, exporter Exporter, health HealthChecker, logger Logger) *Server {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(svc, exporter, health, logger),
		logger:   logger,
	}
	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1", actorMiddleware())
	{
		api.GET("/requirements", h.ListRequirements)
		api.POST("/requirements", h.PostRequirement)
		api.GET("/requirements/:id", h.GetRequirement)
		api.PUT("/requirements/:id", h.UpdateRequirement)
		api.DELETE("/requirements/:id", h.DeleteRequirement)
		api.POST("/requirements/:id/close", h.CloseRequirement)
		api.POST("/requirements/:id/reopen", h.ReopenRequirement)
		api.GET("/requirements/:id/events", h.ListRequirementEvents)

		api.GET("/requirements/:id/associations", h.ListAssociations)
		api.POST("/requirements/:id/associations", h.RecordTutorInterest)
		api.POST("/requirements/:id/reject-others", h.RejectOtherCandidates)
		api.POST("/requirements/:id/associations/:tutorId/apply", h.ApplyToRecommendation)
		api.POST("/requirements/:id/associations/:tutorId/promote", h.PromoteAssociation)
		api.POST("/requirements/:id/associations/:tutorId/reject", h.RejectAssociation)
		api.POST("/requirements/:id/associations/:tutorId/withdraw", h.WithdrawAssociation)
		api.GET("/tutors/:tutorId/associations", h.ListTutorAssociations)

		api.GET("/requirements/:id/demos", h.ListDemos)
		api.POST("/demos", h.ScheduleDemo)
		api.POST("/demo-requests", h.RequestDemo)
		api.GET("/demos/:id", h.GetDemo)
		api.POST("/demos/:id/confirm", h.ConfirmDemo)
		api.POST("/demos/:id/reschedule", h.RequestReschedule)
		api.POST("/demos/:id/reschedule/resolve", h.ResolveReschedule)
		api.POST("/demos/:id/complete", h.CompleteDemo)
		api.POST("/demos/:id/cancel", h.CancelDemo)

		api.GET("/requirements/:id/classes", h.ListClasses)
		api.POST("/classes", h.CreateClass)
		api.GET("/classes/:id", h.GetClass)
		api.POST("/classes/:id/cancel", h.CancelClass)

		api.GET("/events", h.ListEvents)

		admin := api.Group("/admin", requireAdmin())
		admin.GET("/reports/pipeline.xlsx", h.ExportPipeline)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
