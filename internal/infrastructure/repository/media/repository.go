package media

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/infrastructure/database/entities"
	"canvas-server/services/media-engine/internal/utils/platformerrors"
)

// Repository handles media catalog persistence. Every state transition on a
// media row is a conditional update gated on (id, status, version); zero
// affected rows means another worker won the transition.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, m *domain.Media) error {
	entity := toEntity(m)
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create media record",
			err,
			"2f8c1a4d-9e3b-4c6a-8d1f-5a7b9c0e2d4f",
		)
	}
	m.CreatedAt = entity.CreatedAt
	m.UpdatedAt = entity.UpdatedAt
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	var entity entities.Media
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to get media by id",
			err,
			"6b3d9f1e-2a5c-4e8b-9c0d-7f4a1b6e3c8d",
		)
	}
	m := mapEntity(entity)
	return &m, nil
}

// FindReadyByChecksum returns the oldest live ready record carrying the
// checksum, or nil. Soft-deleted rows are excluded so a pending deletion
// never becomes a dedup source.
func (r *Repository) FindReadyByChecksum(ctx context.Context, checksum string) (*domain.Media, error) {
	var entity entities.Media
	err := r.db.WithContext(ctx).
		Where("checksum = ? AND status = ? AND deleted_at IS NULL", checksum, string(domain.StatusReady)).
		Order("created_at ASC").
		First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find media by checksum",
			err,
			"8e1f4a7b-3c6d-4b9e-8a2f-0d5c7e9b1f3a",
		)
	}
	m := mapEntity(entity)
	return &m, nil
}

// ClaimBlob attempts the first-writer insert for a checksum. A conflict on
// the primary key means another upload already claimed it.
func (r *Repository) ClaimBlob(ctx context.Context, checksum, storagePath string) (bool, error) {
	blob := entities.MediaBlob{Checksum: checksum, StoragePath: storagePath}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&blob)
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to claim blob checksum",
			result.Error,
			"4a9c2e7f-1b5d-4f8a-9e3c-6d0b8f2a5c7e",
		)
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, checksum string) error {
	err := r.db.WithContext(ctx).
		Where("checksum = ?", checksum).
		Delete(&entities.MediaBlob{}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete blob claim",
			err,
			"7d2b5f8a-4e1c-4a6d-8b9f-3c0e6a2d7f4b",
		)
	}
	return nil
}

// PruneOrphanBlobs removes claims older than the threshold whose storage
// path no longer backs any media row. The age gate keeps in-flight ingests
// from losing their claim between insert and row creation.
func (r *Repository) PruneOrphanBlobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", olderThan).
		Where("storage_path NOT IN (?)",
			r.db.Model(&entities.Media{}).Select("storage_path")).
		Delete(&entities.MediaBlob{})
	if result.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to prune orphan blob claims",
			result.Error,
			"9f4e7a2c-6b3d-4d1e-8f5a-0c8b2e6d9a3f",
		)
	}
	return result.RowsAffected, nil
}

// AcquireProcessing stamps the processing timestamp on a row this worker
// believes it owns. Losing the race surfaces as ErrAlreadyProcessing.
func (r *Repository) AcquireProcessing(ctx context.Context, id string, version int) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ?", id, string(domain.StatusProcessing), version).
		Update("processing_at", time.Now())
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to acquire processing lock",
			result.Error,
			"1e8a3c6f-9d2b-4b7e-8c4a-5f0d7b3e9a1c",
		)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAlreadyProcessing
	}
	return nil
}

// BeginReprocessing flips a row from a stable status back into processing,
// conditioned on the status and version the caller observed.
func (r *Repository) BeginReprocessing(ctx context.Context, id string, from domain.Status, version int) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ? AND deleted_at IS NULL", id, string(from), version).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusProcessing),
			"processing_at": time.Now(),
		})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to begin reprocessing",
			result.Error,
			"3c7f1b9e-5a4d-4e2c-8d6b-9a0f4c8e2b5d",
		)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAlreadyProcessing
	}
	return nil
}

// MarkReady publishes processing results, conditioned on still holding the
// lock at the worker's version.
func (r *Repository) MarkReady(ctx context.Context, m *domain.Media) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ?", m.ID, string(domain.StatusProcessing), m.Version).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusReady),
			"processing_at": nil,
			"mime_type":     m.MimeType,
			"storage_path":  m.StoragePath,
			"checksum":      m.Checksum,
			"width":         m.Width,
			"height":        m.Height,
			"file_size":     m.FileSize,
		})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark media ready",
			result.Error,
			"5b9d4f2a-7c1e-4a8b-9f3d-6e0a8c4b7d2f",
		)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAlreadyProcessing
	}
	m.Status = domain.StatusReady
	m.ProcessingAt = nil
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id string, version int) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ?", id, string(domain.StatusProcessing), version).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusFailed),
			"processing_at": nil,
		})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark media failed",
			result.Error,
			"8a2e6c9f-4b7d-4d3a-8e1c-0f5b9d3a6c8e",
		)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAlreadyProcessing
	}
	return nil
}

// CommitReplacement publishes a replacement: new storage fields and ready
// status in the same conditional update that bumps the version. On success
// the in-memory record reflects the bumped version.
func (r *Repository) CommitReplacement(ctx context.Context, m *domain.Media) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ?", m.ID, string(domain.StatusProcessing), m.Version).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusReady),
			"processing_at": nil,
			"mime_type":     m.MimeType,
			"storage_path":  m.StoragePath,
			"checksum":      m.Checksum,
			"width":         m.Width,
			"height":        m.Height,
			"file_size":     m.FileSize,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to commit media replacement",
			result.Error,
			"0d6f3a8c-2e9b-4c5f-8a7d-1b4e6c0f3a9d",
		)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAlreadyProcessing
	}
	m.Status = domain.StatusReady
	m.ProcessingAt = nil
	m.Version++
	return nil
}

// CountByStoragePath counts every row referencing a physical path,
// regardless of status or soft-deletion. A soft-deleted row still pins its
// file until the reclamation pass removes the row itself.
func (r *Repository) CountByStoragePath(ctx context.Context, storagePath string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("storage_path = ?", storagePath).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to count storage path references",
			err,
			"2c8b5e1f-7a4d-4f9c-8d0e-3a6f9b2d5c8a",
		)
	}
	return count, nil
}

func (r *Repository) VariantsByMediaID(ctx context.Context, mediaID string) ([]domain.Variant, error) {
	var rows []entities.MediaVariant
	err := r.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list media variants",
			err,
			"4f1d8b3a-9c6e-4e2b-8f5a-7d0c3e9b1f4a",
		)
	}
	variants := make([]domain.Variant, 0, len(rows))
	for _, row := range rows {
		variants = append(variants, domain.Variant{
			MediaID:     row.MediaID,
			Kind:        domain.VariantKind(row.Kind),
			StoragePath: row.StoragePath,
			MimeType:    row.MimeType,
			Width:       row.Width,
			Height:      row.Height,
			Size:        row.Size,
		})
	}
	return variants, nil
}

// ReplaceVariants swaps a record's variant rows wholesale in one
// transaction. A nil slice clears them.
func (r *Repository) ReplaceVariants(ctx context.Context, mediaID string, variants []domain.Variant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("media_id = ?", mediaID).Delete(&entities.MediaVariant{}).Error; err != nil {
			return err
		}
		if len(variants) == 0 {
			return nil
		}
		rows := make([]entities.MediaVariant, 0, len(variants))
		for _, v := range variants {
			rows = append(rows, entities.MediaVariant{
				MediaID:     mediaID,
				Kind:        string(v.Kind),
				StoragePath: v.StoragePath,
				MimeType:    v.MimeType,
				Width:       v.Width,
				Height:      v.Height,
				Size:        v.Size,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to replace media variants",
			err,
			"6e3a9d5c-1f8b-4b7e-8c2d-9a4f0b6e3d8c",
		)
	}
	return nil
}

// SoftDelete hides a live ready or failed record and schedules reclamation.
// Returns false when the row was concurrently deleted or moved into
// processing.
func (r *Repository) SoftDelete(ctx context.Context, id string, deleteAfter time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status <> ? AND deleted_at IS NULL", id, string(domain.StatusProcessing)).
		Updates(map[string]interface{}{
			"deleted_at":   time.Now(),
			"delete_after": deleteAfter,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to soft delete media",
			result.Error,
			"8c5f2b9d-3e7a-4d1c-8b6f-0e9a4c7d2b5f",
		)
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) RevertSoftDelete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_at":   nil,
			"delete_after": nil,
		}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to revert soft delete",
			err,
			"0a7d4f1b-5c9e-4e8a-8d3b-2f6c8a0e5d7b",
		)
	}
	return nil
}

func (r *Repository) UsageCount(ctx context.Context, mediaID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.MediaUsage{}).
		Where("media_id = ?", mediaID).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to count media usages",
			err,
			"2e9b6d3f-7a1c-4c5e-8f0a-4d8b2c6e9f1a",
		)
	}
	return count, nil
}

// ReplaceUsages swaps one (entity, field) slot's usage rows wholesale in a
// transaction, so the table always reflects the content save it accompanies.
func (r *Repository) ReplaceUsages(ctx context.Context, entityType, entityID, field string, mediaIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("entity_type = ? AND entity_id = ? AND field = ?", entityType, entityID, field).
			Delete(&entities.MediaUsage{}).Error; err != nil {
			return err
		}
		if len(mediaIDs) == 0 {
			return nil
		}
		rows := make([]entities.MediaUsage, 0, len(mediaIDs))
		for _, mediaID := range mediaIDs {
			rows = append(rows, entities.MediaUsage{
				MediaID:    mediaID,
				EntityType: entityType,
				EntityID:   entityID,
				Field:      field,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to replace media usages",
			err,
			"4b1e8f5a-9d3c-4a7b-8e2f-6c0d9a3b7e5c",
		)
	}
	return nil
}

// StuckProcessing lists rows abandoned in processing past the staleness
// threshold.
func (r *Repository) StuckProcessing(ctx context.Context, olderThan time.Time) ([]domain.Media, error) {
	var rows []entities.Media
	err := r.db.WithContext(ctx).
		Where("status = ? AND processing_at IS NOT NULL AND processing_at < ?", string(domain.StatusProcessing), olderThan).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list stuck media",
			err,
			"6d3f0b7c-2e8a-4f4d-8a9b-1c5e7f0d4a8b",
		)
	}
	return mapEntities(rows), nil
}

// ForceFail repairs one stuck row, re-checking staleness inside the update
// so a worker that resumed meanwhile keeps its lock.
func (r *Repository) ForceFail(ctx context.Context, id string, olderThan time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND processing_at IS NOT NULL AND processing_at < ?",
			id, string(domain.StatusProcessing), olderThan).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusFailed),
			"processing_at": nil,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to force-fail stuck media",
			result.Error,
			"8f5b2d9e-4a7c-4b1f-8c6d-3e0a5b8f2c7d",
		)
	}
	return result.RowsAffected == 1, nil
}

// Reclaimable lists soft-deleted rows whose grace window has elapsed.
func (r *Repository) Reclaimable(ctx context.Context, now time.Time) ([]domain.Media, error) {
	var rows []entities.Media
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND delete_after IS NOT NULL AND delete_after < ?", now).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list reclaimable media",
			err,
			"0b8e5a3d-6f1c-4d9e-8b4a-7c2f9e5d0a3b",
		)
	}
	return mapEntities(rows), nil
}

// DeleteRecord hard-deletes a media row and its variant rows in one
// transaction.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("media_id = ?", id).Delete(&entities.MediaVariant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("media_id = ?", id).Delete(&entities.MediaUsage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Media{}).Error
	})
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete media record",
			err,
			"2d0a7c4f-8b3e-4e6a-8f1c-5a9d0c4e7b2f",
		)
	}
	return nil
}

// AllReferencedPaths returns every storage path any media or variant row
// points at, soft-deleted rows included. The orphan sweep treats this set as
// the ground truth for what must stay on disk.
func (r *Repository) AllReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	var mediaPaths []string
	if err := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Distinct().
		Pluck("storage_path", &mediaPaths).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list referenced media paths",
			err,
			"4a6c3e0b-1d8f-4c2a-8e7b-9f4d6a0c3e8f",
		)
	}

	var variantPaths []string
	if err := r.db.WithContext(ctx).
		Model(&entities.MediaVariant{}).
		Distinct().
		Pluck("storage_path", &variantPaths).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list referenced variant paths",
			err,
			"6c2f9b5e-3a0d-4f7c-8d4e-1b8a3f6c9d0e",
		)
	}

	referenced := make(map[string]struct{}, len(mediaPaths)+len(variantPaths))
	for _, p := range mediaPaths {
		referenced[p] = struct{}{}
	}
	for _, p := range variantPaths {
		referenced[p] = struct{}{}
	}
	return referenced, nil
}

// ReadyMedia lists every live ready record, for the missing-file pass.
func (r *Repository) ReadyMedia(ctx context.Context) ([]domain.Media, error) {
	var rows []entities.Media
	err := r.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL", string(domain.StatusReady)).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list ready media",
			err,
			"8e4a1d7c-5b2f-4a9e-8c0b-3d6f8e1a4c7b",
		)
	}
	return mapEntities(rows), nil
}

// DemoteMissing flips a ready record whose backing file vanished to failed,
// conditioned on status and version so a concurrent replacement wins.
func (r *Repository) DemoteMissing(ctx context.Context, id string, version int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Media{}).
		Where("id = ? AND status = ? AND version = ?", id, string(domain.StatusReady), version).
		Update("status", string(domain.StatusFailed))
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to demote media with missing file",
			result.Error,
			"0f6b3a8d-7c4e-4d1b-8a5f-9e2c6b0d4f8a",
		)
	}
	return result.RowsAffected == 1, nil
}

func toEntity(m *domain.Media) entities.Media {
	return entities.Media{
		ID:           m.ID,
		Filename:     m.Filename,
		MimeType:     m.MimeType,
		StoragePath:  m.StoragePath,
		Checksum:     m.Checksum,
		Width:        m.Width,
		Height:       m.Height,
		FileSize:     m.FileSize,
		Status:       string(m.Status),
		Version:      m.Version,
		ProcessingAt: m.ProcessingAt,
		DeletedAt:    m.DeletedAt,
		DeleteAfter:  m.DeleteAfter,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func mapEntity(entity entities.Media) domain.Media {
	return domain.Media{
		ID:           entity.ID,
		Filename:     entity.Filename,
		MimeType:     entity.MimeType,
		StoragePath:  entity.StoragePath,
		Checksum:     entity.Checksum,
		Width:        entity.Width,
		Height:       entity.Height,
		FileSize:     entity.FileSize,
		Status:       domain.Status(entity.Status),
		Version:      entity.Version,
		ProcessingAt: entity.ProcessingAt,
		DeletedAt:    entity.DeletedAt,
		DeleteAfter:  entity.DeleteAfter,
		CreatedBy:    entity.CreatedBy,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.UpdatedAt,
	}
}

func mapEntities(rows []entities.Media) []domain.Media {
	out := make([]domain.Media, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapEntity(row))
	}
	return out
}
