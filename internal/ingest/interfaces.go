package ingest

import (
	"context"
	"time"
)

// SourceStore persists source records. Implementations must tolerate
// concurrent access scoped to distinct source IDs.
type SourceStore interface {
	Load(ctx context.Context, id string) (Source, error)
	Save(ctx context.Context, source Source) error
	List(ctx context.Context) ([]Source, error)
	// ListDue returns active sources whose backoff window has expired.
	// Fetch-interval and single-flight filtering is the scheduler's job.
	ListDue(ctx context.Context, now time.Time) ([]Source, error)
}

// SkillStore persists versioned skills. Published skills are immutable;
// Save of an existing ID is an error.
type SkillStore interface {
	Load(ctx context.Context, id string) (Skill, error)
	Save(ctx context.Context, skill Skill) error
	// LatestVersion returns the highest published version for a source,
	// 0 when the source has no skills yet.
	LatestVersion(ctx context.Context, sourceID string) (int, error)
}

// ArticleStore remembers which articles have been ingested, for dedupe.
type ArticleStore interface {
	// Seen reports whether the canonical URL or content hash was already
	// ingested for the source.
	Seen(ctx context.Context, sourceID, canonicalURL, contentHash string) (bool, error)
	Record(ctx context.Context, article Article) error
}

// Fetcher performs a plain HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Renderer loads a URL in a headless browser and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// LLM is the language-model capability consumed by the skill generator.
// Rate-limit failures are distinguishable via KindOf(err) == KindRateLimited.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// GenerateStructured asks for a JSON response and unmarshals it into out.
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Publisher hands accepted articles to the downstream processing pipeline.
// Fire-and-forget from the core's perspective.
type Publisher interface {
	Publish(ctx context.Context, article Article) error
}

// BlobStore writes raw artifacts (sample-page snapshots) and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Sum(data []byte) string
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
