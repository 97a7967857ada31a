// Package httpapi exposes the workspace version store and share registry
// over the REST/JSON interface the clients speak.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avoronov/planvault/internal/logging"
	"github.com/avoronov/planvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Server wires the gin engine to the services.
type Server struct {
	address     string
	logger      logging.Logger
	workspaces  *services.WorkspaceService
	shares      *services.ShareService
	sharingKeys *services.SharingKeyService
	jwtSecret   []byte
}

func NewServer(address string, l logging.Logger,
	ws *services.WorkspaceService, ss *services.ShareService, ks *services.SharingKeyService,
	secretKey string) *Server {
	return &Server{
		address:     address,
		logger:      l.With("module", "httpapi"),
		workspaces:  ws,
		shares:      ss,
		sharingKeys: ks,
		jwtSecret:   []byte(secretKey),
	}
}

// Handler builds the gin engine with all routes registered. Split out from
// Run so handler tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	api := engine.Group("/api", s.authMiddleware())
	{
		api.GET("/workspace", s.getWorkspace)
		api.POST("/workspace", s.pushWorkspace)

		api.POST("/sharing/keys", s.registerSharingKey)
		api.GET("/sharing/keys", s.lookupSharingKey)

		api.POST("/shares", s.createShare)
		api.GET("/shares/incoming", s.listIncomingShares)
		api.GET("/shares/outgoing", s.listOutgoingShares)
		api.PUT("/shares/:id/data", s.pushShareData)
		api.PUT("/shares/:id/wrapping", s.updateWrapping)
		api.PATCH("/shares/:id/recipients/:userId", s.updateRecipient)
		api.DELETE("/shares/:id/recipients/:userId", s.revokeRecipient)
		api.DELETE("/shares/:id", s.deleteShare)
	}

	return engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
