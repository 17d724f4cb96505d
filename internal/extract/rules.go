// Package extract applies declarative skill rulesets to pages and watches
// live extraction quality for drift. Rule application is pure: the same
// input page always yields the same output fields.
package extract

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Field names with meaning to the ingestion pipeline. A ruleset may emit
// other fields; they ride along into CleanContent metadata unused.
const (
	FieldTitle        = "title"
	FieldBody         = "body"
	FieldCanonicalURL = "canonical_url"
	FieldPublishedAt  = "published_at"
	FieldAuthor       = "author"
)

// Result is the outcome of applying a ruleset to one page.
type Result struct {
	Fields map[string]string
	// Coverage is the fraction of rules that produced a non-empty value.
	Coverage float64
}

// Apply evaluates every rule against the document. Selector application
// never executes page logic; transforms are a closed set.
func Apply(rules []ingest.Rule, body []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, ingest.Errorf(ingest.KindParseFailure, "parse document: %v", err)
	}

	fields := make(map[string]string, len(rules))
	hits := 0
	for _, rule := range rules {
		value := applyRule(doc, rule)
		if value != "" {
			hits++
		}
		fields[rule.Field] = value
	}

	coverage := 0.0
	if len(rules) > 0 {
		coverage = float64(hits) / float64(len(rules))
	}
	return Result{Fields: fields, Coverage: coverage}, nil
}

func applyRule(doc *goquery.Document, rule ingest.Rule) string {
	sel := doc.Find(rule.Selector)
	if sel.Length() == 0 {
		return ""
	}

	transform := rule.Transform
	switch {
	case transform == "" || transform == "text":
		return strings.TrimSpace(sel.First().Text())
	case transform == "html":
		html, err := sel.First().Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(html)
	case transform == "join":
		parts := make([]string, 0, sel.Length())
		sel.Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		return strings.Join(parts, "\n\n")
	case strings.HasPrefix(transform, "attr:"):
		val, _ := sel.First().Attr(strings.TrimPrefix(transform, "attr:"))
		return strings.TrimSpace(val)
	default:
		// Unknown transform: fail closed to empty rather than guessing.
		return ""
	}
}

// KnownTransform reports whether the generator proposed a transform this
// module can execute.
func KnownTransform(transform string) bool {
	switch transform {
	case "", "text", "html", "join":
		return true
	}
	return strings.HasPrefix(transform, "attr:")
}

// Validate checks the gate shared by the skill generator and the live
// extraction path: title present, body present and long enough.
func Validate(fields map[string]string, minBodyLength int) error {
	if strings.TrimSpace(fields[FieldTitle]) == "" {
		return ingest.Errorf(ingest.KindParseFailure, "extraction missing title")
	}
	body := strings.TrimSpace(fields[FieldBody])
	if body == "" {
		return ingest.Errorf(ingest.KindParseFailure, "extraction missing body")
	}
	if len(body) < minBodyLength {
		return ingest.Errorf(ingest.KindParseFailure,
			"extracted body too short: %d < %d", len(body), minBodyLength)
	}
	return nil
}

// publishedAtLayouts are tried in order when parsing a published_at field.
var publishedAtLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParsePublishedAt converts a scraped timestamp string to a time, nil when
// the value is empty or unrecognized.
func ParsePublishedAt(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
