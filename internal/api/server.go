// Package api exposes the dispute lifecycle over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/settleline/internal/api/auth"
	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/events"
	"github.com/settleline/internal/evidence"
)

// AnalysisEnqueuer queues a background analysis run.
type AnalysisEnqueuer interface {
	EnqueueAnalysis(ctx context.Context, disputeID string, force bool) error
}

// EventReader exposes recent dispute events for polling clients. Nil when no
// database-backed sink is configured.
type EventReader interface {
	Recent(ctx context.Context, disputeID string, limit int) ([]events.StoredEvent, error)
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Machine      *dispute.StateMachine
	Ingest       *evidence.Ingest
	Blobs        *evidence.LocalBlobStore
	TokenService *auth.TokenService
	Analysis     AnalysisEnqueuer
	Events       EventReader
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Dependencies
}

// NewServer creates a new API server
func NewServer(port int, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")
	v1.Use(auth.RequireAuth(s.deps.TokenService))

	// Dispute lifecycle
	v1.POST("/disputes", s.createDispute)
	v1.GET("/disputes/:id", s.getDispute)
	v1.POST("/disputes/:id/accept", s.acceptDispute)
	v1.GET("/disputes/:id/messages", s.listMessages)
	v1.POST("/disputes/:id/messages", s.sendMessage)
	v1.POST("/disputes/:id/decision", s.submitDecision)
	v1.POST("/disputes/:id/sign", s.signAgreement)
	v1.POST("/disputes/:id/reanalysis", s.requestReanalysis)

	// Evidence
	v1.POST("/disputes/:id/evidence", s.uploadEvidence)
	v1.GET("/disputes/:id/evidence", s.listEvidence)
	v1.GET("/disputes/:id/evidence/:evidenceID/file", s.downloadEvidence)

	// Event polling
	v1.GET("/disputes/:id/events", s.listEvents)

	// Admin endpoints
	admin := v1.Group("/admin", auth.RequireAdmin())
	admin.POST("/disputes/:id/approve", s.approveResolution)
	admin.POST("/disputes/:id/forward-to-court", s.forwardToCourt)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
