package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"canvas-server/services/media-engine/internal/config"
	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/infrastructure/auth"
	"canvas-server/services/media-engine/internal/infrastructure/database"
	"canvas-server/services/media-engine/internal/infrastructure/logger"
	"canvas-server/services/media-engine/internal/infrastructure/observability"
	"canvas-server/services/media-engine/internal/infrastructure/storage"
	repo "canvas-server/services/media-engine/internal/infrastructure/repository/media"
	"canvas-server/services/media-engine/internal/interfaces/httpserver"
)

// blobStore is the full backend surface main wires: domain storage plus the
// readiness probe.
type blobStore interface {
	domain.BlobStore
	Health(ctx context.Context) error
}

type Application struct {
	httpServer *httpserver.HttpServer
	sweeper    *domain.Sweeper
	cfg        *config.Config
	log        zerolog.Logger
}

func NewApplication(cfg *config.Config, httpServer *httpserver.HttpServer, sweeper *domain.Sweeper, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		sweeper:    sweeper,
		cfg:        cfg,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	if a.cfg.GCInterval > 0 {
		go a.runGCTicker(ctx)
	}
	return a.httpServer.Run(ctx)
}

// runGCTicker runs periodic garbage collection until the context is
// cancelled. Sweeps are also available on demand through the admin endpoint.
func (a *Application) runGCTicker(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.GCInterval)
	defer ticker.Stop()
	a.log.Info().Dur("interval", a.cfg.GCInterval).Msg("gc ticker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweeper.Sweep(ctx)
		}
	}
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.GetDatabaseWriteDSN(),
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store, err := provideStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth")
	}

	mediaRepository := repo.NewRepository(db)
	mediaService := domain.NewService(cfg, mediaRepository, store, log)
	sweeper := domain.NewSweeper(mediaRepository, store, cfg.ProcessingStaleAfter, log)

	httpServer := httpserver.New(cfg, log, mediaService, sweeper, store, authValidator)
	app := NewApplication(cfg, httpServer, sweeper, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// provideStorage creates the blob store backend selected by configuration.
func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (blobStore, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(cfg.LocalStoragePath, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
