package media

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// TypeClass partitions accepted uploads by how the pipeline treats them.
type TypeClass int

const (
	// ClassRaster images are normalized and get the full variant set.
	ClassRaster TypeClass = iota
	// ClassVector images are sanitized and stored as rewritten markup.
	ClassVector
	// ClassBinary uploads pass through unmodified.
	ClassBinary
)

// SniffResult is the detected type of an upload, derived from its bytes and
// never from a client-declared content type.
type SniffResult struct {
	MIME  string
	Ext   string
	Class TypeClass
}

var rasterMIMEs = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
}

var binaryMIMEs = map[string]string{
	"application/pdf": "pdf",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
}

// deniedExtensions are rejected outright even when the byte signature looks
// plausible.
var deniedExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {}, ".msi": {},
	".dll": {}, ".sh": {}, ".ps1": {}, ".php": {}, ".js": {}, ".mjs": {},
	".html": {}, ".htm": {}, ".jar": {}, ".vbs": {},
}

const svgNamespace = "http://www.w3.org/2000/svg"

// Sniff determines the real type of an upload from its bytes. Unknown binary
// signatures fall through to a textual SVG check; anything else is rejected
// as undetectable.
func Sniff(data []byte, filename string) (SniffResult, error) {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, denied := deniedExtensions[ext]; denied {
			return SniffResult{}, fmt.Errorf("%w: extension %s is not allowed", ErrUnsupportedType, ext)
		}
	}

	detected := mimetype.Detect(data)
	mime := detected.String()
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}

	if ext, ok := rasterMIMEs[mime]; ok {
		return SniffResult{MIME: mime, Ext: ext, Class: ClassRaster}, nil
	}
	if mime == "image/svg+xml" || looksLikeSVG(data) {
		return SniffResult{MIME: "image/svg+xml", Ext: "svg", Class: ClassVector}, nil
	}
	if ext, ok := binaryMIMEs[mime]; ok {
		return SniffResult{MIME: mime, Ext: ext, Class: ClassBinary}, nil
	}

	return SniffResult{}, fmt.Errorf("%w: detected %s", ErrUnsupportedType, mime)
}

// looksLikeSVG is the fallback signature check for SVG documents the byte
// sniffer reports as plain text or octet-stream: valid UTF-8 whose first
// element, after an optional XML prolog, doctype and comments, is an svg
// root carrying the SVG namespace.
func looksLikeSVG(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	content := strings.TrimLeft(string(data), " \t\r\n\uFEFF")

	for {
		switch {
		case strings.HasPrefix(content, "<?"):
			end := strings.Index(content, "?>")
			if end < 0 {
				return false
			}
			content = content[end+2:]
		case strings.HasPrefix(content, "<!--"):
			end := strings.Index(content, "-->")
			if end < 0 {
				return false
			}
			content = content[end+3:]
		case strings.HasPrefix(content, "<!"):
			end := strings.IndexByte(content, '>')
			if end < 0 {
				return false
			}
			content = content[end+1:]
		default:
			content = strings.TrimLeft(content, " \t\r\n")
			if !strings.HasPrefix(content, "<svg") {
				return false
			}
			end := strings.IndexByte(content, '>')
			if end < 0 {
				return false
			}
			return strings.Contains(content[:end], svgNamespace)
		}
		content = strings.TrimLeft(content, " \t\r\n")
	}
}
