package entities

import "time"

// MediaUsage records that an external entity's content currently embeds a
// media asset. Rows are replaced wholesale whenever the entity is saved, so
// the table reflects current embeds, never history.
type MediaUsage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	MediaID    string    `gorm:"type:varchar(40);not null;index;uniqueIndex:idx_usage_tuple,priority:1"`
	EntityType string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_tuple,priority:2"`
	EntityID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_tuple,priority:3"`
	Field      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_tuple,priority:4"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (MediaUsage) TableName() string {
	return "media_usages"
}
