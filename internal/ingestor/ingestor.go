// Package ingestor is the idempotent ingestion boundary: candidate
// articles are deduplicated and validated here before the downstream
// hand-off.
package ingestor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Decision is the outcome of one ingestion attempt.
type Decision string

// Ingestion decisions.
const (
	DecisionAccepted  Decision = "accepted"
	DecisionDuplicate Decision = "duplicate"
	DecisionRejected  Decision = "rejected"
)

// Ingestor deduplicates by canonical URL and content hash per source,
// rejects empty candidates, and enqueues accepted articles downstream.
type Ingestor struct {
	articles  ingest.ArticleStore
	publisher ingest.Publisher
	logger    *zap.Logger
}

// New constructs an Ingestor.
func New(articles ingest.ArticleStore, publisher ingest.Publisher, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		articles:  articles,
		publisher: publisher,
		logger:    logger,
	}
}

// Ingest decides the candidate's fate. The downstream enqueue is
// fire-and-forget: a pipeline failure is logged but never rolls back the
// ingestion record, so re-ingesting the same URL stays idempotent.
func (i *Ingestor) Ingest(ctx context.Context, article ingest.Article) (Decision, error) {
	if strings.TrimSpace(article.CleanContent) == "" {
		ingest.ArticlesTotal.WithLabelValues(string(DecisionRejected)).Inc()
		return DecisionRejected, nil
	}

	seen, err := i.articles.Seen(ctx, article.SourceID, article.CanonicalURL, article.RawHTMLHash)
	if err != nil {
		return DecisionRejected, fmt.Errorf("dedupe lookup: %w", err)
	}
	if seen {
		ingest.ArticlesTotal.WithLabelValues(string(DecisionDuplicate)).Inc()
		return DecisionDuplicate, nil
	}

	if err := i.articles.Record(ctx, article); err != nil {
		return DecisionRejected, fmt.Errorf("record article: %w", err)
	}

	if i.publisher != nil {
		if err := i.publisher.Publish(ctx, article); err != nil {
			i.logger.Warn("downstream enqueue failed",
				zap.String("article_id", article.ID),
				zap.String("source_id", article.SourceID),
				zap.Error(err),
			)
		}
	}

	ingest.ArticlesTotal.WithLabelValues(string(DecisionAccepted)).Inc()
	return DecisionAccepted, nil
}
