package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

// PageLoader is the slice of the fetch layer the agent needs.
type PageLoader interface {
	LoadPage(ctx context.Context, url string) (ingest.Page, error)
}

// AgentConfig tunes live extraction validation and fallback behavior.
type AgentConfig struct {
	MinBodyLength      int
	FallbackConfidence float64
}

// Agent applies a published skill to live pages. It mirrors the skill
// generator's validation gate so that a page failing extraction is an
// error, not a crash, and feeds every result into the drift tracker.
type Agent struct {
	loader PageLoader
	drift  *DriftTracker
	hasher ingest.Hasher
	ids    ingest.IDGenerator
	cfg    AgentConfig
	logger *zap.Logger
}

// NewAgent constructs an Agent.
func NewAgent(
	loader PageLoader,
	drift *DriftTracker,
	hasher ingest.Hasher,
	ids ingest.IDGenerator,
	cfg AgentConfig,
	logger *zap.Logger,
) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		loader: loader,
		drift:  drift,
		hasher: hasher,
		ids:    ids,
		cfg:    cfg,
		logger: logger,
	}
}

// Extract fetches the source's live page and applies the skill. Fetch
// failures do not count against the drift window; drift means selector
// rot, not network weather.
func (a *Agent) Extract(ctx context.Context, src ingest.Source, skill ingest.Skill) (ingest.Article, error) {
	page, err := a.loader.LoadPage(ctx, src.URL)
	if err != nil {
		return ingest.Article{}, err
	}

	result, err := Apply(skill.Rules, page.Body)
	if err != nil {
		a.observe(skill, false)
		return ingest.Article{}, err
	}
	if err := Validate(result.Fields, a.cfg.MinBodyLength); err != nil {
		a.observe(skill, false)
		return ingest.Article{}, err
	}
	a.observe(skill, true)

	return a.buildArticle(src, page, result.Fields, result.Coverage)
}

// ExtractFallback applies the generic content heuristic when no skill is
// usable. The result is explicitly marked with lower confidence.
func (a *Agent) ExtractFallback(ctx context.Context, src ingest.Source) (ingest.Article, error) {
	page, err := a.loader.LoadPage(ctx, src.URL)
	if err != nil {
		return ingest.Article{}, err
	}

	title, body, err := Heuristic(page.Body)
	if err != nil {
		return ingest.Article{}, err
	}
	fields := map[string]string{
		FieldTitle: title,
		FieldBody:  body,
	}
	if err := Validate(fields, a.cfg.MinBodyLength); err != nil {
		return ingest.Article{}, err
	}
	return a.buildArticle(src, page, fields, a.cfg.FallbackConfidence)
}

// RegenerationDue reports whether drift has flagged the skill.
func (a *Agent) RegenerationDue(skillID string) bool {
	return a.drift.RegenerationDue(skillID)
}

// ClearRegeneration drops a pending drift request after a regeneration
// attempt.
func (a *Agent) ClearRegeneration(skillID string) {
	a.drift.Clear(skillID)
}

func (a *Agent) observe(skill ingest.Skill, ok bool) {
	if a.drift == nil {
		return
	}
	if drifted := a.drift.Observe(skill.ID, ok); drifted {
		a.logger.Warn("skill drift threshold crossed, regeneration requested",
			zap.String("skill_id", skill.ID),
			zap.String("source_id", skill.SourceID),
			zap.Int("version", skill.Version),
		)
	}
}

func (a *Agent) buildArticle(
	src ingest.Source,
	page ingest.Page,
	fields map[string]string,
	confidence float64,
) (ingest.Article, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return ingest.Article{}, fmt.Errorf("article id: %w", err)
	}

	canonical := fields[FieldCanonicalURL]
	if canonical == "" {
		canonical = page.FinalURL
	}
	if canonical == "" {
		canonical = src.URL
	}

	return ingest.Article{
		ID:                   id,
		SourceID:             src.ID,
		SourceURL:            src.URL,
		CanonicalURL:         canonical,
		Title:                fields[FieldTitle],
		RawHTMLHash:          a.hasher.Sum(page.Body),
		CleanContent:         fields[FieldBody],
		PublishedAt:          ParsePublishedAt(fields[FieldPublishedAt]),
		ExtractionConfidence: confidence,
	}, nil
}
