package entities

import "time"

// MediaBlob is the first-writer claim on a content checksum. Two uploads
// racing to store the same bytes both attempt the insert; the loser treats
// the conflict as a dedup hit instead of assuming its read-then-write
// sequence was atomic.
type MediaBlob struct {
	Checksum    string    `gorm:"type:char(64);primaryKey"`
	StoragePath string    `gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (MediaBlob) TableName() string {
	return "media_blobs"
}
