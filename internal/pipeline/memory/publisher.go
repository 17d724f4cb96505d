// Package memory contains an in-memory downstream publisher for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Publisher records enqueued articles for inspection.
type Publisher struct {
	mu       sync.RWMutex
	articles []ingest.Article
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the article.
func (p *Publisher) Publish(_ context.Context, article ingest.Article) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.articles = append(p.articles, article)
	return nil
}

// Articles returns the recorded enqueues.
func (p *Publisher) Articles() []ingest.Article {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ingest.Article, len(p.articles))
	copy(out, p.articles)
	return out
}
