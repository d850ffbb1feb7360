package media_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	media "canvas-server/services/media-engine/internal/domain/media"
)

func encodeTestImage(t *testing.T, width, height int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestTranscoder() *media.Transcoder {
	return media.NewTranscoder(1920, 85)
}

func TestTranscoder_Normalize_BoundsLongEdge(t *testing.T) {
	data := encodeTestImage(t, 2000, 1500, imaging.JPEG)

	normalized, info, err := newTestTranscoder().Normalize(data, "image/jpeg")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if info.Width != 1920 || info.Height != 1440 {
		t.Errorf("normalized to %dx%d, want 1920x1440", info.Width, info.Height)
	}
	if info.MIME != "image/jpeg" || info.Ext != "jpg" {
		t.Errorf("normalized format = %s/%s, want image/jpeg/jpg", info.MIME, info.Ext)
	}

	decoded, err := imaging.Decode(bytes.NewReader(normalized))
	if err != nil {
		t.Fatalf("normalized output does not decode: %v", err)
	}
	if decoded.Bounds().Dx() != 1920 {
		t.Errorf("decoded width = %d, want 1920", decoded.Bounds().Dx())
	}
}

func TestTranscoder_Normalize_NeverUpscales(t *testing.T) {
	data := encodeTestImage(t, 100, 80, imaging.PNG)

	_, info, err := newTestTranscoder().Normalize(data, "image/png")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if info.Width != 100 || info.Height != 80 {
		t.Errorf("small image resized to %dx%d, want untouched 100x80", info.Width, info.Height)
	}
	if info.MIME != "image/png" {
		t.Errorf("png lost its codec: %s", info.MIME)
	}
}

func TestTranscoder_Normalize_ExoticFormatsBecomeJPEG(t *testing.T) {
	data := encodeTestImage(t, 50, 50, imaging.BMP)

	_, info, err := newTestTranscoder().Normalize(data, "image/bmp")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if info.MIME != "image/jpeg" || info.Ext != "jpg" {
		t.Errorf("bmp normalized to %s/%s, want image/jpeg/jpg", info.MIME, info.Ext)
	}
}

func TestTranscoder_Normalize_RejectsGarbage(t *testing.T) {
	if _, _, err := newTestTranscoder().Normalize([]byte("not an image"), "image/jpeg"); err == nil {
		t.Error("Normalize() accepted undecodable bytes")
	}
}

func TestTranscoder_GenerateVariants(t *testing.T) {
	normalized, info, err := newTestTranscoder().Normalize(encodeTestImage(t, 2000, 1500, imaging.JPEG), "image/jpeg")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	variants, err := newTestTranscoder().GenerateVariants(normalized, info.MIME)
	if err != nil {
		t.Fatalf("GenerateVariants() error = %v", err)
	}
	if len(variants) != len(media.VariantKinds) {
		t.Fatalf("got %d variants, want %d", len(variants), len(media.VariantKinds))
	}

	bounds := map[media.VariantKind]int{
		media.VariantThumbnail: 150,
		media.VariantMedium:    300,
		media.VariantLarge:     1024,
		media.VariantWebP:      1920,
		media.VariantPNG:       1920,
	}
	for i, v := range variants {
		if v.Kind != media.VariantKinds[i] {
			t.Errorf("variants[%d].Kind = %s, want %s", i, v.Kind, media.VariantKinds[i])
		}
		max := bounds[v.Kind]
		if v.Width > max || v.Height > max {
			t.Errorf("%s variant is %dx%d, exceeds bound %d", v.Kind, v.Width, v.Height, max)
		}
		if len(v.Data) == 0 {
			t.Errorf("%s variant has no data", v.Kind)
		}
		if _, err := imaging.Decode(bytes.NewReader(v.Data)); err != nil {
			t.Errorf("%s variant does not decode: %v", v.Kind, err)
		}
	}

	if variants[3].MIME != "image/webp" {
		t.Errorf("webp variant MIME = %s", variants[3].MIME)
	}
	if variants[4].MIME != "image/png" {
		t.Errorf("png variant MIME = %s", variants[4].MIME)
	}
}

func TestTranscoder_GenerateVariants_SmallSourceNeverUpscaled(t *testing.T) {
	normalized, info, err := newTestTranscoder().Normalize(encodeTestImage(t, 120, 90, imaging.PNG), "image/png")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	variants, err := newTestTranscoder().GenerateVariants(normalized, info.MIME)
	if err != nil {
		t.Fatalf("GenerateVariants() error = %v", err)
	}
	for _, v := range variants {
		if v.Width > 120 || v.Height > 90 {
			t.Errorf("%s variant upscaled to %dx%d from 120x90", v.Kind, v.Width, v.Height)
		}
	}
}
