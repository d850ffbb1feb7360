package media

import (
	"fmt"
	"regexp"
	"strings"
)

// The sanitizer rewrites SVG markup to strip active content, then re-scans
// its own output and fails closed if anything dangerous survived. It returns
// a new document rather than mutating in place so the re-check is
// structurally unavoidable.

var (
	scriptBlockPattern    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptSelfClosing     = regexp.MustCompile(`(?i)<script\b[^>]*/\s*>`)
	foreignObjectPattern  = regexp.MustCompile(`(?is)<foreignObject\b[^>]*>.*?</foreignObject\s*>`)
	iframePattern         = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>|<iframe\b[^>]*/\s*>`)
	eventHandlerPattern   = regexp.MustCompile(`(?i)\son[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsSchemePattern       = regexp.MustCompile(`(?i)\s(?:xlink:)?href\s*=\s*("\s*javascript:[^"]*"|'\s*javascript:[^']*')`)
	externalHrefPattern   = regexp.MustCompile(`(?i)\s(?:xlink:)?href\s*=\s*("\s*(?:https?:)?//[^"]*"|'\s*(?:https?:)?//[^']*')`)
	residualScriptPattern = regexp.MustCompile(`(?i)<script`)
	residualJSPattern     = regexp.MustCompile(`(?i)javascript\s*:`)
)

// SanitizeSVG strips script elements, embedded foreign documents, inline
// frames, event-handler attributes, javascript-scheme links and external
// references from an SVG document, failing closed if any remain detectable
// after rewriting.
func SanitizeSVG(data []byte) ([]byte, error) {
	content := string(data)

	content = scriptBlockPattern.ReplaceAllString(content, "")
	content = scriptSelfClosing.ReplaceAllString(content, "")
	content = foreignObjectPattern.ReplaceAllString(content, "")
	content = iframePattern.ReplaceAllString(content, "")
	content = eventHandlerPattern.ReplaceAllString(content, "")
	content = jsSchemePattern.ReplaceAllString(content, "")
	content = externalHrefPattern.ReplaceAllString(content, "")

	// A rewrite that leaves any of these behind is treated as a bypass, not
	// a best-effort pass.
	switch {
	case residualScriptPattern.MatchString(content):
		return nil, fmt.Errorf("%w: script element survived sanitization", ErrUnsafeVector)
	case residualJSPattern.MatchString(content):
		return nil, fmt.Errorf("%w: javascript scheme survived sanitization", ErrUnsafeVector)
	case externalHrefPattern.MatchString(" " + content):
		return nil, fmt.Errorf("%w: external reference survived sanitization", ErrUnsafeVector)
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: nothing left after sanitization", ErrUnsafeVector)
	}

	return []byte(content), nil
}
