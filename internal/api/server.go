// Package api provides the HTTP API server for Ozwald. It uses the Echo
// framework to serve REST endpoints and a WebSocket feed of instance
// lifecycle events.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ozwald-dev/ozwald/internal/auth"
	"github.com/ozwald-dev/ozwald/internal/catalog"
	"github.com/ozwald-dev/ozwald/internal/config"
	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/provisioner"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/internal/version"
	"github.com/ozwald-dev/ozwald/models"
)

// Server represents the Ozwald API server.
type Server struct {
	echo        *echo.Echo
	config      *config.Config
	catalog     *catalog.Catalog
	store       statestore.Store
	provisioner *provisioner.Provisioner
	queue       footprint.Queue
	logs        footprint.LogStore
	blobs       vault.BlobStore
	wsHub       *Hub
	authMiddle  *auth.Middleware
}

// Options bundles the collaborators the server needs.
type Options struct {
	Config      *config.Config
	Catalog     *catalog.Catalog
	Store       statestore.Store
	Provisioner *provisioner.Provisioner
	Queue       footprint.Queue
	Logs        footprint.LogStore
	Blobs       vault.BlobStore
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Server) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates a new API server instance.
func New(opts Options) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = opts.Config.Server.Debug

	e.HTTPErrorHandler = HTTPErrorHandler

	hub := NewHub()

	server := &Server{
		echo:        e,
		config:      opts.Config,
		catalog:     opts.Catalog,
		store:       opts.Store,
		provisioner: opts.Provisioner,
		queue:       opts.Queue,
		logs:        opts.Logs,
		blobs:       opts.Blobs,
		wsHub:       hub,
		authMiddle:  auth.NewMiddleware(opts.Config),
	}

	// Start WebSocket hub in background
	go hub.Run()

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	s.echo.Use(middleware.Recover())

	s.echo.Use(SecurityHeaders)

	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	s.echo.Use(middleware.RequestID())

	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	s.echo.Use(ValidateContentType)
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	// Host inventory
	v1.GET("/hosts", s.listHosts, s.authMiddle.RequireAuth)

	// Realm routes
	realms := v1.Group("/realms")
	realms.GET("", s.listRealms, s.authMiddle.RequireAuth)
	realms.GET("/:realm/services", s.listServices, s.authMiddle.RequireAuth)
	realms.PUT("/:realm/services", s.applyDesiredState, s.authMiddle.RequireAuth)
	realms.GET("/:realm/instances", s.listInstances, s.authMiddle.RequireAuth)
	realms.GET("/:realm/instances/:service", s.getInstance, s.authMiddle.RequireAuth)
	realms.PUT("/:realm/lockers/:locker", s.putLocker, s.authMiddle.RequireAuth)

	// Footprint routes
	footprints := v1.Group("/footprints")
	footprints.GET("", s.listFootprintRequests, s.authMiddle.RequireAuth)
	footprints.POST("", s.enqueueFootprintRequest, s.authMiddle.RequireAuth)
	footprints.GET("/logs", s.getFootprintLogs, s.authMiddle.RequireAuth)

	// WebSocket event feed
	v1.GET("/ws", s.handleWebSocket, s.authMiddle.RequireAuth)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	log.Printf("Starting Ozwald API server on http://%s (host %s, debug=%v)",
		addr, s.config.Provisioner.Host, s.config.Server.Debug)

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down Ozwald API server...")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	return nil
}

// InstanceChanged implements provisioner.Notifier by broadcasting the
// updated record to websocket subscribers.
func (s *Server) InstanceChanged(inst models.Instance) {
	s.debugLog("broadcasting instance change: %s -> %s", inst.Identity, inst.State)
	if err := s.wsHub.BroadcastEvent(Event{Type: EventInstanceChanged, Data: inst}); err != nil {
		log.Printf("Error broadcasting instance change: %v", err)
	}
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	info := version.Get()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "ozwald",
		"version": info.Version,
		"host":    s.config.Provisioner.Host,
	})
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:  s.wsHub,
		conn: ws,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
