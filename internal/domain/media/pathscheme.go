package media

import (
	"fmt"
	"path"
	"strings"
)

// The path scheme is pure string math: no I/O, deterministic, and stable
// across upload order. Identical content always lands at the same location.

const storagePrefix = "sha256"

// StoragePath maps a content checksum and extension to the blob location
// sha256/<c[0:2]>/<c[2:4]>/<c>.<ext>. The two-level fan-out bounds the tree
// at 256x256 leaf directories for a uniform hash distribution.
func StoragePath(checksum, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s/%s/%s/%s.%s", storagePrefix, checksum[0:2], checksum[2:4], checksum, ext)
}

// VariantPaths derives the five variant locations from a base storage path,
// in the order declared by VariantKinds. The order is zipped positionally
// against variant metadata elsewhere and must never change independently.
func VariantPaths(basePath string) [5]string {
	return [5]string{
		VariantPath(basePath, VariantThumbnail),
		VariantPath(basePath, VariantMedium),
		VariantPath(basePath, VariantLarge),
		VariantPath(basePath, VariantWebP),
		VariantPath(basePath, VariantPNG),
	}
}

// VariantPath derives one variant location. Size variants keep the base
// codec; the alternate-codec variants replace the extension.
func VariantPath(basePath string, kind VariantKind) string {
	ext := path.Ext(basePath)
	stem := strings.TrimSuffix(basePath, ext)
	switch kind {
	case VariantThumbnail:
		return stem + "_thumb" + ext
	case VariantMedium:
		return stem + "_medium" + ext
	case VariantLarge:
		return stem + "_large" + ext
	case VariantWebP:
		return stem + "_full.webp"
	case VariantPNG:
		return stem + "_full.png"
	}
	return basePath
}

// CanonicalFilename combines the user-chosen base name with the real on-disk
// extension. Display-name edits never change the extension, and format
// changes on replacement never change the base name, so URLs stay valid
// across both.
func CanonicalFilename(displayName, storagePath string) string {
	base := strings.TrimSuffix(path.Base(displayName), path.Ext(displayName))
	if base == "" || base == "." {
		base = "file"
	}
	return base + path.Ext(storagePath)
}

// PublicURL derives the request path for a media record. The versioned form
// is immutable and long-cacheable; the unversioned form must be revalidated
// by ETag on every request.
func PublicURL(m *Media, versioned bool) string {
	url := fmt.Sprintf("/v1/media/%s/%s", m.ID, CanonicalFilename(m.Filename, m.StoragePath))
	if versioned {
		url = fmt.Sprintf("%s?v=%d", url, m.Version)
	}
	return url
}

// ETag returns the strong validator for a media record, derived from the
// content hash.
func ETag(m *Media) string {
	return `"` + m.Checksum + `"`
}
