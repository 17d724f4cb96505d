package fetch

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/newsloom/ingestd/internal/ingest"
)

// FeedItem is a single entry extracted from an RSS or Atom feed.
type FeedItem struct {
	URL         string
	Title       string
	Content     string
	PublishedAt *time.Time
}

// ParseFeed parses an RSS/Atom body and returns the discovered items.
// Items without a usable link are silently skipped. A malformed feed is a
// parse failure for health-tracking purposes.
func ParseFeed(body []byte) ([]FeedItem, error) {
	parser := gofeed.NewParser()

	parsed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, ingest.Errorf(ingest.KindParseFailure, "parse feed: %v", err)
	}

	items := make([]FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}
		content := entry.Content
		if content == "" {
			content = entry.Description
		}
		items = append(items, FeedItem{
			URL:         link,
			Title:       entry.Title,
			Content:     content,
			PublishedAt: entry.PublishedParsed,
		})
	}
	return items, nil
}

// extractLink returns the best available URL from a feed entry, preferring
// the explicit link and falling back to a URL-shaped GUID.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}
