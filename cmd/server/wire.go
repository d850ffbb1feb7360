//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"canvas-server/services/media-engine/internal/config"
	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/infrastructure/auth"
	"canvas-server/services/media-engine/internal/infrastructure/database"
	"canvas-server/services/media-engine/internal/infrastructure/logger"
	repo "canvas-server/services/media-engine/internal/infrastructure/repository/media"
	"canvas-server/services/media-engine/internal/interfaces/httpserver"
)

var mediaSet = wire.NewSet(
	repo.NewRepository,
	wire.Bind(new(domain.Repository), new(*repo.Repository)),
	provideStorage,
	wire.Bind(new(domain.BlobStore), new(blobStore)),
	wire.Bind(new(httpserver.StorageHealth), new(blobStore)),
	domain.NewService,
	provideSweeper,
)

// BuildApplication assembles the media engine with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		mediaSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.GetDatabaseWriteDSN(),
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func provideSweeper(cfg *config.Config, r domain.Repository, store domain.BlobStore, log zerolog.Logger) *domain.Sweeper {
	return domain.NewSweeper(r, store, cfg.ProcessingStaleAfter, log)
}
