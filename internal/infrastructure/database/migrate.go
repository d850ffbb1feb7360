package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"canvas-server/services/media-engine/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.Media{},
		&entities.MediaVariant{},
		&entities.MediaUsage{},
		&entities.MediaBlob{},
	); err != nil {
		return err
	}
	log.Info().Msg("applied media catalog migrations")
	return nil
}
