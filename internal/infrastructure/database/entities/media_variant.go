package entities

import "time"

// MediaVariant is a derived rendition of a raster media asset. Variant rows
// are owned by their media row and cascade with it; the files they point at
// may still be shared with dedup copies of the same content.
type MediaVariant struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MediaID     string `gorm:"type:varchar(40);not null;index;uniqueIndex:idx_media_variant_kind,priority:1"`
	Kind        string `gorm:"type:varchar(16);not null;uniqueIndex:idx_media_variant_kind,priority:2"`
	StoragePath string `gorm:"type:varchar(255);not null"`
	MimeType    string `gorm:"type:varchar(64);not null"`
	Width       int
	Height      int
	Size        int64
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (MediaVariant) TableName() string {
	return "media_variants"
}
