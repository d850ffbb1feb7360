package responses

import (
	"strings"
	"time"

	domain "canvas-server/services/media-engine/internal/domain/media"
)

// MediaResponse is the public metadata view of a media record.
type MediaResponse struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	MimeType     string            `json:"mime_type"`
	Width        *int              `json:"width,omitempty"`
	Height       *int              `json:"height,omitempty"`
	FileSize     *int64            `json:"file_size,omitempty"`
	Status       string            `json:"status"`
	Version      int               `json:"version"`
	URL          string            `json:"url"`
	VersionedURL string            `json:"versioned_url"`
	Variants     []VariantResponse `json:"variants,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// VariantResponse is the public view of one derived rendition.
type VariantResponse struct {
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// UploadResponse wraps a media view with the dedup outcome.
type UploadResponse struct {
	Media        MediaResponse `json:"media"`
	Deduplicated bool          `json:"deduplicated"`
}

// SyncUsageResponse reports how many references the sync extracted.
type SyncUsageResponse struct {
	References int `json:"references"`
}

// NewMediaResponse maps a domain record and its variants to the public view.
// baseURL, when set, absolutizes the request paths (e.g. behind a CDN host).
// Variant URLs are the record URL with the variant selector attached.
func NewMediaResponse(m *domain.Media, variants []domain.Variant, baseURL string) MediaResponse {
	baseURL = strings.TrimSuffix(baseURL, "/")
	resp := MediaResponse{
		ID:           m.ID,
		Filename:     m.Filename,
		MimeType:     m.MimeType,
		Width:        m.Width,
		Height:       m.Height,
		FileSize:     m.FileSize,
		Status:       string(m.Status),
		Version:      m.Version,
		URL:          baseURL + domain.PublicURL(m, false),
		VersionedURL: baseURL + domain.PublicURL(m, true),
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, v := range variants {
		resp.Variants = append(resp.Variants, VariantResponse{
			Kind:     string(v.Kind),
			MimeType: v.MimeType,
			Width:    v.Width,
			Height:   v.Height,
			Size:     v.Size,
			URL:      baseURL + domain.PublicURL(m, false) + "?variant=" + string(v.Kind),
		})
	}
	return resp
}
