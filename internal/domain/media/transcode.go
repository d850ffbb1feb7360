package media

import (
	"bytes"
	"fmt"
	"image"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"

	// Registers WebP decoding for image.Decode / imaging.Decode.
	_ "golang.org/x/image/webp"
)

// Variant size points: fixed-size re-encodes bounded on the long edge, plus
// the alternate-codec renditions bounded to the primary normalization limit.
const (
	thumbnailBound = 150
	mediumBound    = 300
	largeBound     = 1024
)

// ImageInfo describes a normalized raster image.
type ImageInfo struct {
	Width  int
	Height int
	MIME   string
	Ext    string
}

// VariantBlob is one generated rendition ready to be written to storage.
type VariantBlob struct {
	Kind   VariantKind
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Transcoder normalizes raster images and derives their variant set.
type Transcoder struct {
	maxDimension int
	quality      int
}

func NewTranscoder(maxDimension, quality int) *Transcoder {
	return &Transcoder{
		maxDimension: maxDimension,
		quality:      quality,
	}
}

// Normalize decodes a raster upload with auto-orientation, bounds its long
// edge to the configured maximum without upscaling, and re-encodes it at the
// fixed quality. Exotic formats (bmp, tiff) normalize to jpeg; jpeg, png,
// gif and webp keep their codec.
func (t *Transcoder) Normalize(data []byte, srcMIME string) ([]byte, ImageInfo, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("decode image: %w", err)
	}

	img = bound(img, t.maxDimension)
	mime, ext := normalizedFormat(srcMIME)

	encoded, err := t.encode(img, mime)
	if err != nil {
		return nil, ImageInfo{}, err
	}

	info := ImageInfo{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		MIME:   mime,
		Ext:    ext,
	}
	return encoded, info, nil
}

// GenerateVariants derives the five renditions from normalized bytes, in
// VariantKinds order: three size points in the normalized codec plus the
// webp and png renditions at the normalization bound. Resizes preserve
// aspect ratio and never upscale.
func (t *Transcoder) GenerateVariants(normalized []byte, normalizedMIME string) ([]VariantBlob, error) {
	img, err := imaging.Decode(bytes.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("decode normalized image: %w", err)
	}

	specs := []struct {
		kind  VariantKind
		bound int
		mime  string
	}{
		{VariantThumbnail, thumbnailBound, normalizedMIME},
		{VariantMedium, mediumBound, normalizedMIME},
		{VariantLarge, largeBound, normalizedMIME},
		{VariantWebP, t.maxDimension, "image/webp"},
		{VariantPNG, t.maxDimension, "image/png"},
	}

	variants := make([]VariantBlob, 0, len(specs))
	for _, spec := range specs {
		resized := bound(img, spec.bound)
		encoded, err := t.encode(resized, spec.mime)
		if err != nil {
			return nil, fmt.Errorf("encode %s variant: %w", spec.kind, err)
		}
		variants = append(variants, VariantBlob{
			Kind:   spec.kind,
			Data:   encoded,
			MIME:   spec.mime,
			Width:  resized.Bounds().Dx(),
			Height: resized.Bounds().Dy(),
		})
	}
	return variants, nil
}

func (t *Transcoder) encode(img image.Image, mime string) ([]byte, error) {
	var buf bytes.Buffer
	switch mime {
	case "image/jpeg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
			return nil, err
		}
	case "image/png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
	case "image/gif":
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, err
		}
	case "image/webp":
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no encoder for %s", mime)
	}
	return buf.Bytes(), nil
}

// bound fits img inside max x max, preserving aspect ratio, never upscaling.
func bound(img image.Image, max int) image.Image {
	b := img.Bounds()
	if b.Dx() <= max && b.Dy() <= max {
		return img
	}
	return imaging.Fit(img, max, max, imaging.Lanczos)
}

func normalizedFormat(srcMIME string) (mime, ext string) {
	switch srcMIME {
	case "image/png":
		return "image/png", "png"
	case "image/gif":
		return "image/gif", "gif"
	case "image/webp":
		return "image/webp", "webp"
	default:
		// jpeg stays jpeg; bmp and tiff normalize to jpeg.
		return "image/jpeg", "jpg"
	}
}
