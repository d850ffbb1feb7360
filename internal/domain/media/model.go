package media

import (
	"context"
	"errors"
	"io"
	"time"
)

// Status is the lifecycle state of a media record. processing is transient
// and must be recoverable by the garbage collector if abandoned; ready and
// failed are stable.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// VariantKind enumerates the derived renditions of a raster asset.
type VariantKind string

const (
	VariantThumbnail VariantKind = "thumbnail"
	VariantMedium    VariantKind = "medium"
	VariantLarge     VariantKind = "large"
	VariantWebP      VariantKind = "webp"
	VariantPNG       VariantKind = "png"
)

// VariantKinds is the declared variant order. It is zipped positionally
// against VariantPaths, so the two must never be reordered independently.
var VariantKinds = [5]VariantKind{
	VariantThumbnail,
	VariantMedium,
	VariantLarge,
	VariantWebP,
	VariantPNG,
}

// Media is one logical asset. Several records may share one physical file
// through content-addressed deduplication.
type Media struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	MimeType     string     `json:"mime_type"`
	StoragePath  string     `json:"storage_path"`
	Checksum     string     `json:"checksum"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	FileSize     *int64     `json:"file_size,omitempty"`
	Status       Status     `json:"status"`
	Version      int        `json:"version"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeleteAfter  *time.Time `json:"delete_after,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Variant is a derived rendition row.
type Variant struct {
	MediaID     string      `json:"media_id"`
	Kind        VariantKind `json:"kind"`
	StoragePath string      `json:"storage_path"`
	MimeType    string      `json:"mime_type"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Size        int64       `json:"size"`
}

// Usage is a back-reference from an external entity's content to a media
// record.
type Usage struct {
	MediaID    string `json:"media_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Field      string `json:"field"`
}

// UploadInput is the intake contract for new uploads and replacements.
type UploadInput struct {
	Filename     string
	Reader       io.Reader
	DeclaredSize int64
	ActorID      string
}

// UploadResult is the discriminated success result of an upload.
type UploadResult struct {
	Media        *Media `json:"media"`
	Deduplicated bool   `json:"deduplicated"`
}

// Domain sentinel errors. The pipeline translates I/O and codec failures into
// the failed status plus one of these, never a raw panic.
var (
	ErrNotFound          = errors.New("media not found")
	ErrAlreadyProcessing = errors.New("media is already being processed")
	ErrEmptyUpload       = errors.New("file is empty")
	ErrTooLarge          = errors.New("file exceeds the maximum allowed size")
	ErrUnsupportedType   = errors.New("unsupported or undetectable file type")
	ErrUnsafeVector      = errors.New("vector image contains active content that could not be removed")
)

// Repository defines the catalog operations needed by the service and the
// garbage collector. The conditional updates gated on (status, version) are
// the system's only concurrency-control primitive: zero affected rows means
// another worker holds or has passed the lock window.
type Repository interface {
	Create(ctx context.Context, m *Media) error
	GetByID(ctx context.Context, id string) (*Media, error)
	FindReadyByChecksum(ctx context.Context, checksum string) (*Media, error)

	ClaimBlob(ctx context.Context, checksum, storagePath string) (bool, error)
	DeleteBlob(ctx context.Context, checksum string) error
	PruneOrphanBlobs(ctx context.Context, olderThan time.Time) (int64, error)

	AcquireProcessing(ctx context.Context, id string, version int) error
	BeginReprocessing(ctx context.Context, id string, from Status, version int) error
	MarkReady(ctx context.Context, m *Media) error
	MarkFailed(ctx context.Context, id string, version int) error
	CommitReplacement(ctx context.Context, m *Media) error

	CountByStoragePath(ctx context.Context, storagePath string) (int64, error)
	VariantsByMediaID(ctx context.Context, mediaID string) ([]Variant, error)
	ReplaceVariants(ctx context.Context, mediaID string, variants []Variant) error

	SoftDelete(ctx context.Context, id string, deleteAfter time.Time) (bool, error)
	RevertSoftDelete(ctx context.Context, id string) error
	UsageCount(ctx context.Context, mediaID string) (int64, error)
	ReplaceUsages(ctx context.Context, entityType, entityID, field string, mediaIDs []string) error

	StuckProcessing(ctx context.Context, olderThan time.Time) ([]Media, error)
	ForceFail(ctx context.Context, id string, olderThan time.Time) (bool, error)
	Reclaimable(ctx context.Context, now time.Time) ([]Media, error)
	DeleteRecord(ctx context.Context, id string) error
	AllReferencedPaths(ctx context.Context) (map[string]struct{}, error)
	ReadyMedia(ctx context.Context) ([]Media, error)
	DemoteMissing(ctx context.Context, id string, version int) (bool, error)
}

// BlobStore defines byte-level storage operations. It has no knowledge of
// media semantics.
type BlobStore interface {
	Write(ctx context.Context, key string, body io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(key string, size int64) error) error
}
