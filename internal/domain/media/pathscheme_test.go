package media_test

import (
	"strings"
	"testing"

	media "canvas-server/services/media-engine/internal/domain/media"
)

const testChecksum = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestStoragePath(t *testing.T) {
	tests := []struct {
		name     string
		checksum string
		ext      string
		want     string
	}{
		{
			name:     "jpeg",
			checksum: testChecksum,
			ext:      "jpg",
			want:     "sha256/9f/86/" + testChecksum + ".jpg",
		},
		{
			name:     "extension with leading dot",
			checksum: testChecksum,
			ext:      ".png",
			want:     "sha256/9f/86/" + testChecksum + ".png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := media.StoragePath(tt.checksum, tt.ext)
			if got != tt.want {
				t.Errorf("StoragePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStoragePath_Deterministic(t *testing.T) {
	first := media.StoragePath(testChecksum, "webp")
	second := media.StoragePath(testChecksum, "webp")
	if first != second {
		t.Errorf("same content mapped to different paths: %q vs %q", first, second)
	}
}

func TestVariantPaths_OrderMatchesKinds(t *testing.T) {
	base := media.StoragePath(testChecksum, "jpg")
	paths := media.VariantPaths(base)

	for i, kind := range media.VariantKinds {
		if paths[i] != media.VariantPath(base, kind) {
			t.Errorf("paths[%d] = %q, want path for kind %s", i, paths[i], kind)
		}
	}
}

func TestVariantPath(t *testing.T) {
	base := "sha256/9f/86/" + testChecksum + ".jpg"
	tests := []struct {
		kind media.VariantKind
		want string
	}{
		{media.VariantThumbnail, "sha256/9f/86/" + testChecksum + "_thumb.jpg"},
		{media.VariantMedium, "sha256/9f/86/" + testChecksum + "_medium.jpg"},
		{media.VariantLarge, "sha256/9f/86/" + testChecksum + "_large.jpg"},
		{media.VariantWebP, "sha256/9f/86/" + testChecksum + "_full.webp"},
		{media.VariantPNG, "sha256/9f/86/" + testChecksum + "_full.png"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := media.VariantPath(base, tt.kind); got != tt.want {
				t.Errorf("VariantPath(%s) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestCanonicalFilename(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		storagePath string
		want        string
	}{
		{
			name:        "extension follows storage not display name",
			displayName: "holiday.HEIC",
			storagePath: "sha256/ab/cd/abcd.jpg",
			want:        "holiday.jpg",
		},
		{
			name:        "no display extension",
			displayName: "diagram",
			storagePath: "sha256/ab/cd/abcd.svg",
			want:        "diagram.svg",
		},
		{
			name:        "empty display name",
			displayName: "",
			storagePath: "sha256/ab/cd/abcd.png",
			want:        "file.png",
		},
		{
			name:        "path components stripped",
			displayName: "../../etc/passwd.txt",
			storagePath: "sha256/ab/cd/abcd.pdf",
			want:        "passwd.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := media.CanonicalFilename(tt.displayName, tt.storagePath); got != tt.want {
				t.Errorf("CanonicalFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	m := &media.Media{
		ID:          "med_01hxyzabcdefghjkmnpqrstvwx",
		Filename:    "photo.heic",
		StoragePath: "sha256/ab/cd/abcd.jpg",
		Version:     3,
	}

	plain := media.PublicURL(m, false)
	if plain != "/v1/media/med_01hxyzabcdefghjkmnpqrstvwx/photo.jpg" {
		t.Errorf("PublicURL(false) = %q", plain)
	}

	versioned := media.PublicURL(m, true)
	if !strings.HasSuffix(versioned, "?v=3") {
		t.Errorf("PublicURL(true) = %q, want ?v=3 suffix", versioned)
	}
}

func TestETag(t *testing.T) {
	m := &media.Media{Checksum: testChecksum}
	if got := media.ETag(m); got != `"`+testChecksum+`"` {
		t.Errorf("ETag() = %q", got)
	}
}

func TestExtractMediaIDs(t *testing.T) {
	content := `<p><img src="/v1/media/med_01hxyzabcdefghjkmnpqrstvwx/a.jpg">` +
		`<img src="/v1/media/med_01hxyzabcdefghjkmnpqrstvwx/a.jpg">` +
		`<a href="/v1/media/med_01bbbbbbbbbbccccccccccdddd/b.pdf">doc</a></p>`

	ids := media.ExtractMediaIDs(content)
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2 (duplicates collapsed): %v", len(ids), ids)
	}
	if ids[0] != "med_01hxyzabcdefghjkmnpqrstvwx" || ids[1] != "med_01bbbbbbbbbbccccccccccdddd" {
		t.Errorf("unexpected ids: %v", ids)
	}
}
