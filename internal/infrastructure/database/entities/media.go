package entities

import "time"

// Media represents one logical asset. Several rows may share one physical
// file through content-addressed deduplication; the file may only be removed
// once no row references its storage path.
type Media struct {
	ID           string `gorm:"type:varchar(40);primaryKey"`
	Filename     string `gorm:"type:varchar(255);not null"`
	MimeType     string `gorm:"type:varchar(64);not null"`
	StoragePath  string `gorm:"type:varchar(255);not null;index"`
	Checksum     string `gorm:"type:char(64);not null;index"`
	Width        *int
	Height       *int
	FileSize     *int64
	Status       string `gorm:"type:varchar(16);not null;index"`
	Version      int    `gorm:"not null;default:1"`
	ProcessingAt *time.Time
	DeletedAt    *time.Time `gorm:"index"`
	DeleteAfter  *time.Time
	CreatedBy    string    `gorm:"type:varchar(64)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (Media) TableName() string {
	return "media"
}
