package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Heuristic extracts a best-effort title and body without a skill by
// finding the largest contiguous block of paragraph text in the document.
// Used only when no skill exists and generation failed; callers mark the
// result with low confidence.
func Heuristic(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", ingest.Errorf(ingest.KindParseFailure, "parse document: %v", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	type block struct {
		parent *html.Node
		parts  []string
		size   int
	}
	blocks := make(map[*html.Node]*block)
	var best *block

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || len(s.Nodes) == 0 {
			return
		}
		parent := s.Nodes[0].Parent
		b, ok := blocks[parent]
		if !ok {
			b = &block{parent: parent}
			blocks[parent] = b
		}
		b.parts = append(b.parts, text)
		b.size += len(text)
		if best == nil || b.size > best.size {
			best = b
		}
	})

	if best == nil {
		// No paragraphs at all; fall back to the whole body text.
		text := strings.TrimSpace(doc.Find("body").Text())
		if text == "" {
			return "", "", ingest.Errorf(ingest.KindParseFailure, "no extractable text")
		}
		return title, text, nil
	}
	return title, strings.Join(best.parts, "\n\n"), nil
}
