package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector decides whether a fetched page needs a JavaScript render
// before extraction, using simple HTML signals.
type Detector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// defaultKeywords are markers of client-side rendered applications.
var defaultKeywords = []string{
	"__NEXT_DATA__",
	"data-reactroot",
	"ng-app",
	"window.__APOLLO_STATE__",
}

// NewDetector constructs a Detector. Zero minBytes disables the size
// signal; nil keywords selects the defaults.
func NewDetector(minBytes int, keywords []string) *Detector {
	if keywords == nil {
		keywords = defaultKeywords
	}
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &Detector{
		minHTMLBytes: minBytes,
		keywords:     lowered,
	}
}

// NeedsRender inspects the body for signals that a headless render is
// required to see the real content.
func (d *Detector) NeedsRender(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes:
		return true
	case d.containsKeywords(body):
		return true
	default:
		return d.emptyBody(body)
	}
}

func (d *Detector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

// emptyBody reports whether the parsed document has essentially no text,
// a strong hint that everything is injected client-side.
func (d *Detector) emptyBody(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	text := strings.TrimSpace(doc.Find("body").Text())
	return len(text) < 80
}
