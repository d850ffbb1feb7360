package requests

// SyncUsageRequest carries one entity's raw content for usage
// synchronization. The server extracts the embedded media references itself;
// clients never submit reference lists directly.
type SyncUsageRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
	Field      string `json:"field" binding:"required"`
	Content    string `json:"content"`
}
