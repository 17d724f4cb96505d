package memory

import (
	"context"
	"sync"

	"github.com/newsloom/ingestd/internal/ingest"
)

// ArticleStore implements ingest.ArticleStore in memory, tracking only the
// keys needed for dedupe plus the records themselves.
type ArticleStore struct {
	mu       sync.RWMutex
	byURL    map[string]struct{}
	byHash   map[string]struct{}
	articles []ingest.Article
}

// NewArticleStore constructs an ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		byURL:  make(map[string]struct{}),
		byHash: make(map[string]struct{}),
	}
}

// Seen reports whether the canonical URL or content hash was already
// recorded for the source.
func (s *ArticleStore) Seen(_ context.Context, sourceID, canonicalURL, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byURL[sourceID+"\x00"+canonicalURL]; ok {
		return true, nil
	}
	if contentHash != "" {
		if _, ok := s.byHash[sourceID+"\x00"+contentHash]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Record remembers an ingested article.
func (s *ArticleStore) Record(_ context.Context, article ingest.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURL[article.SourceID+"\x00"+article.CanonicalURL] = struct{}{}
	if article.RawHTMLHash != "" {
		s.byHash[article.SourceID+"\x00"+article.RawHTMLHash] = struct{}{}
	}
	s.articles = append(s.articles, article)
	return nil
}

// Articles returns a copy of all recorded articles, oldest first.
func (s *ArticleStore) Articles() []ingest.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Article, len(s.articles))
	copy(out, s.articles)
	return out
}
