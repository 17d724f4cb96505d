package ingestor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
	memorypipeline "github.com/newsloom/ingestd/internal/pipeline/memory"
	"github.com/newsloom/ingestd/internal/store/memory"
)

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(_ context.Context, _ ingest.Article) error {
	p.calls++
	return errors.New("pipeline unavailable")
}

func candidate(id, canonicalURL, hash string) ingest.Article {
	return ingest.Article{
		ID:           id,
		SourceID:     "src-1",
		SourceURL:    "https://example.com",
		CanonicalURL: canonicalURL,
		Title:        "A Story",
		RawHTMLHash:  hash,
		CleanContent: "Some extracted content.",
	}
}

func TestIngestor_Ingest_AcceptsAndPublishes(t *testing.T) {
	t.Parallel()

	store := memory.NewArticleStore()
	publisher := memorypipeline.New()
	ing := New(store, publisher, zap.NewNop())

	decision, err := ing.Ingest(context.Background(), candidate("art-1", "https://example.com/a", "h1"))
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)
	require.Len(t, store.Articles(), 1)
	require.Len(t, publisher.Articles(), 1)
}

func TestIngestor_Ingest_DuplicateCanonicalURL(t *testing.T) {
	t.Parallel()

	store := memory.NewArticleStore()
	publisher := memorypipeline.New()
	ing := New(store, publisher, zap.NewNop())
	ctx := context.Background()

	decision, err := ing.Ingest(ctx, candidate("art-1", "https://example.com/a", "h1"))
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)

	// Same canonical URL, different content hash: still a duplicate.
	decision, err = ing.Ingest(ctx, candidate("art-2", "https://example.com/a", "h2"))
	require.NoError(t, err)
	require.Equal(t, DecisionDuplicate, decision)
	require.Len(t, store.Articles(), 1)
	require.Len(t, publisher.Articles(), 1)
}

func TestIngestor_Ingest_DuplicateContentHash(t *testing.T) {
	t.Parallel()

	store := memory.NewArticleStore()
	ing := New(store, memorypipeline.New(), zap.NewNop())
	ctx := context.Background()

	_, err := ing.Ingest(ctx, candidate("art-1", "https://example.com/a", "same-hash"))
	require.NoError(t, err)

	decision, err := ing.Ingest(ctx, candidate("art-2", "https://example.com/b", "same-hash"))
	require.NoError(t, err)
	require.Equal(t, DecisionDuplicate, decision)
}

func TestIngestor_Ingest_RejectsEmptyContent(t *testing.T) {
	t.Parallel()

	store := memory.NewArticleStore()
	ing := New(store, memorypipeline.New(), zap.NewNop())

	article := candidate("art-1", "https://example.com/a", "h1")
	article.CleanContent = "   \n\t "
	decision, err := ing.Ingest(context.Background(), article)
	require.NoError(t, err)
	require.Equal(t, DecisionRejected, decision)
	require.Empty(t, store.Articles())
}

func TestIngestor_Ingest_PublishFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	store := memory.NewArticleStore()
	publisher := &failingPublisher{}
	ing := New(store, publisher, zap.NewNop())
	ctx := context.Background()

	decision, err := ing.Ingest(ctx, candidate("art-1", "https://example.com/a", "h1"))
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)
	require.Equal(t, 1, publisher.calls)
	require.Len(t, store.Articles(), 1)

	// Re-ingesting the same URL after a publish failure stays idempotent.
	decision, err = ing.Ingest(ctx, candidate("art-1", "https://example.com/a", "h1"))
	require.NoError(t, err)
	require.Equal(t, DecisionDuplicate, decision)
	require.Equal(t, 1, publisher.calls)
}
