package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/database"
	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/middleware"
	"github.com/trial-progress-dashboard/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Dashboards is the dashboard service as seen by the HTTP API.
type Dashboards interface {
	Latest() (*service.Snapshot, error)
	Section(name string) (interface{}, error)
	Refresh(ctx context.Context) (*service.Snapshot, error)
	Runs(ctx context.Context, limit int) ([]*domain.RunRecord, error)
	Run(ctx context.Context, id string) (*domain.RunRecord, error)
}

// Database is the optional ledger database checked by /health.
type Database interface {
	Health(ctx context.Context) error
	Stats() database.PoolStats
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	dashboards    Dashboards
	database      Database
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, dashboards Dashboards, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())

	server := &Server{
		configManager: configManager,
		dashboards:    dashboards,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// SetDatabase attaches the ledger database to the health check.
func (s *Server) SetDatabase(db Database) {
	s.database = db
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(s.configManager.GetServerConfig().WriteTimeout))
	{
		v1.GET("/dashboard", s.handleDashboard)
		v1.GET("/dashboard/:section", s.handleSection)
		v1.POST("/refresh", s.handleRefresh)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/export.xlsx", s.handleExport)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// respondError writes a DashboardError with the status implied by err.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.AbortWithStatusJSON(status, domain.NewDashboardError(code, http.StatusText(status), err.Error(), c.GetString(middleware.RequestIDKey)))
}

func classify(err error) (int, string) {
	var schemaErr *domain.SchemaError
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNoDashboard):
		return http.StatusServiceUnavailable, domain.ErrCodeNotReady
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeInvalidInput
	case errors.Is(err, domain.ErrInvalidSummary):
		return http.StatusNotFound, domain.ErrCodeInvalidInput
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, domain.ErrCodeValidation
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity, domain.ErrCodeSchema
	case errors.Is(err, domain.ErrSourceUnavailable):
		return http.StatusBadGateway, domain.ErrCodeSource
	case errors.Is(err, domain.ErrLedger):
		return http.StatusInternalServerError, domain.ErrCodeLedger
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrCodeRefreshFailed
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternal
	}
}
