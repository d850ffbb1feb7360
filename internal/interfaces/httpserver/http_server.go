package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"canvas-server/services/media-engine/internal/config"
	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/infrastructure/auth"
	"canvas-server/services/media-engine/internal/interfaces/httpserver/handlers"
	v1 "canvas-server/services/media-engine/internal/interfaces/httpserver/routes/v1"
)

// StorageHealth is the readiness probe surface of the blob store backends.
type StorageHealth interface {
	Health(ctx context.Context) error
}

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
	auth   *auth.Validator
	store  StorageHealth
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg *config.Config, log zerolog.Logger, service *domain.Service, sweeper *domain.Sweeper, store StorageHealth, authValidator *auth.Validator) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), gin.Logger())
	engine.MaxMultipartMemory = cfg.MaxUploadBytes

	handlerProvider := handlers.NewProvider(cfg, service, sweeper, log)
	routeProvider := v1.NewRoutes(handlerProvider)
	if authValidator != nil {
		engine.Use(authValidator.Middleware())
	}

	server := &HttpServer{
		cfg:    cfg,
		engine: engine,
		log:    log,
		auth:   authValidator,
		store:  store,
	}
	server.registerCoreRoutes(routeProvider)
	return server
}

// Run starts the HTTP listener and handles graceful shutdown via context
// cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("media-engine HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *HttpServer) registerCoreRoutes(routes *v1.Routes) {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": s.cfg.ServiceName, "status": "ok"})
	})
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/readyz", func(c *gin.Context) {
		if err := s.store.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unavailable"})
			return
		}
		if s.auth != nil && !s.auth.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "auth initializing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.Register(s.engine.Group("/"))
}
