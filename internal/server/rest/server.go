// Package rest exposes the certificate services as JSON over HTTP using echo.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MaxBodySize bounds request bodies; template uploads are the largest.
const MaxBodySize = "25M"

// Services are the handlers' collaborators.
type Services struct {
	Events       *services.EventService
	Configs      *services.ConfigService
	Generation   *services.GenerationService
	Verification *services.VerificationService
	Stats        *services.StatsService
	Templates    *services.TemplateService
}

type Server struct {
	address         string
	echo            *echo.Echo
	svc             Services
	logger          logging.Logger
	jwtSecret       []byte
	dev             bool
	shutdownTimeout time.Duration
}

// NewServer builds the router. In dev mode internal error details are
// included in responses.
func NewServer(addr string, l logging.Logger, svc Services, secretKey string, dev bool, shutdownTimeout time.Duration) *Server {
	s := &Server{
		address:         addr,
		echo:            echo.New(),
		svc:             svc,
		logger:          l.With("module", "http_server"),
		jwtSecret:       []byte(secretKey),
		dev:             dev,
		shutdownTimeout: shutdownTimeout,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	e := s.echo
	e.Use(s.accessLog())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(MaxBodySize))

	e.GET("/health", s.health)

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.GET("/verify/:uuid", s.verify)

	auth := api.Group("", s.authenticate)

	auth.POST("/events", s.createEvent)
	auth.GET("/events/:id", s.getEvent)

	auth.POST("/addCertificateConfig", s.createConfig)
	auth.GET("/config/:id", s.getConfigByEvent)
	auth.PUT("/config/:id", s.updateConfig)

	auth.POST("/templates", s.uploadTemplate)
	auth.POST("/templates/upload-url", s.templateUploadURL)

	auth.POST("/sample", s.sample)
	auth.POST("/generate", s.generate)

	auth.POST("/storeGenerated", s.storeGenerated)
	auth.GET("/generated", s.listGenerated)
	auth.POST("/generated/decrypt", s.decryptGenerated)
	auth.GET("/generated/:id/uuids", s.listTokens)

	auth.GET("/organization-stats/:name", s.getStats)
	auth.GET("/all-organization-stats", s.allStats)
	auth.POST("/update-recipient-count", s.updateRecipientCount)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		errCh <- s.echo.Start(s.address)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
