// Package dispatch chooses and runs the ingestion strategy for a source:
// feed parsing for syndicated sources, skill-based extraction for the
// rest. It is the unit of work the scheduler executes per source.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/extract"
	"github.com/newsloom/ingestd/internal/fetch"
	"github.com/newsloom/ingestd/internal/ingest"
	"github.com/newsloom/ingestd/internal/ingestor"
)

// maxFeedItemsPerJob bounds how many feed entries one job will ingest so a
// huge backfill cannot monopolize a tick.
const maxFeedItemsPerJob = 25

// Generator is the slice of the skill generator the dispatcher needs.
type Generator interface {
	Generate(ctx context.Context, src ingest.Source) (ingest.Skill, error)
}

// Agent is the slice of the extraction agent the dispatcher needs.
type Agent interface {
	Extract(ctx context.Context, src ingest.Source, skill ingest.Skill) (ingest.Article, error)
	ExtractFallback(ctx context.Context, src ingest.Source) (ingest.Article, error)
	RegenerationDue(skillID string) bool
	ClearRegeneration(skillID string)
}

// Ingestor is the ingestion boundary the dispatcher hands articles to.
type Ingestor interface {
	Ingest(ctx context.Context, article ingest.Article) (ingestor.Decision, error)
}

// Choose picks the strategy for a source. Feed wins when the source is
// declared a feed or a feed URL was discovered upstream; the variant set
// is closed and handled exhaustively in RunJob.
func Choose(src ingest.Source) ingest.Strategy {
	if src.Type == ingest.SourceTypeFeed || src.FeedURL != "" {
		return ingest.StrategyFeed
	}
	return ingest.StrategySkill
}

// Dispatcher runs one ingestion job per call.
type Dispatcher struct {
	fetcher   ingest.Fetcher
	agent     Agent
	generator Generator
	skills    ingest.SkillStore
	sink      Ingestor
	hasher    ingest.Hasher
	ids       ingest.IDGenerator
	clock     ingest.Clock
	logger    *zap.Logger
}

// New constructs a Dispatcher.
func New(
	fetcher ingest.Fetcher,
	agent Agent,
	generator Generator,
	skills ingest.SkillStore,
	sink Ingestor,
	hasher ingest.Hasher,
	ids ingest.IDGenerator,
	clock ingest.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		fetcher:   fetcher,
		agent:     agent,
		generator: generator,
		skills:    skills,
		sink:      sink,
		hasher:    hasher,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

// RunJob executes one ingestion attempt for the source and reports the
// outcome. Errors never escape; they are folded into the returned job for
// the health tracker.
func (d *Dispatcher) RunJob(ctx context.Context, src ingest.Source) ingest.Job {
	started := d.clock.Now()
	strategy := Choose(src)

	var (
		produced []string
		err      error
	)
	switch strategy {
	case ingest.StrategyFeed:
		produced, err = d.runFeed(ctx, src)
	case ingest.StrategySkill:
		produced, err = d.runSkill(ctx, src)
	}

	job := ingest.Job{
		SourceID:           src.ID,
		Strategy:           strategy,
		StartedAt:          started,
		Outcome:            ingest.OutcomeFor(err),
		ErrorKind:          ingest.KindOf(err),
		Duration:           d.clock.Now().Sub(started),
		ProducedArticleIDs: produced,
	}
	if err != nil {
		d.logger.Warn("job failed",
			zap.String("source_id", src.ID),
			zap.String("strategy", string(strategy)),
			zap.String("error_kind", string(job.ErrorKind)),
			zap.Error(err),
		)
	}
	return job
}

func (d *Dispatcher) runFeed(ctx context.Context, src ingest.Source) ([]string, error) {
	feedURL := src.FeedURL
	if feedURL == "" {
		feedURL = src.URL
	}

	page, err := d.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	items, err := fetch.ParseFeed(page.Body)
	if err != nil {
		return nil, err
	}
	if len(items) > maxFeedItemsPerJob {
		items = items[:maxFeedItemsPerJob]
	}

	var produced []string
	for _, item := range items {
		id, err := d.ids.NewID()
		if err != nil {
			return produced, err
		}
		article := ingest.Article{
			ID:                   id,
			SourceID:             src.ID,
			SourceURL:            feedURL,
			CanonicalURL:         item.URL,
			Title:                item.Title,
			RawHTMLHash:          d.hasher.Sum([]byte(item.Content)),
			CleanContent:         item.Content,
			PublishedAt:          item.PublishedAt,
			ExtractionConfidence: 1.0,
		}
		decision, err := d.sink.Ingest(ctx, article)
		if err != nil {
			return produced, err
		}
		if decision == ingestor.DecisionAccepted {
			produced = append(produced, id)
		}
	}
	return produced, nil
}

func (d *Dispatcher) runSkill(ctx context.Context, src ingest.Source) ([]string, error) {
	skill, err := d.activeSkill(ctx, src)
	if err != nil {
		// Generation failed and no prior skill exists. Best effort: try
		// the generic heuristic so the cycle is not a total loss, but the
		// job still reports the generation failure.
		if article, ferr := d.agent.ExtractFallback(ctx, src); ferr == nil {
			if produced, ierr := d.ingestOne(ctx, article); ierr == nil {
				return produced, err
			}
		}
		return nil, err
	}

	article, err := d.agent.Extract(ctx, src, skill)
	if err != nil {
		return nil, err
	}
	return d.ingestOne(ctx, article)
}

// activeSkill returns the skill to extract with, generating one
// synchronously when the source has none, and honoring a pending
// drift-regeneration request before reusing the active version.
func (d *Dispatcher) activeSkill(ctx context.Context, src ingest.Source) (ingest.Skill, error) {
	if src.ActiveSkillID == "" {
		return d.generator.Generate(ctx, src)
	}

	skill, err := d.skills.Load(ctx, src.ActiveSkillID)
	if err != nil {
		return ingest.Skill{}, ingest.Wrap(ingest.KindTransient, err)
	}

	if d.agent.RegenerationDue(skill.ID) {
		d.agent.ClearRegeneration(skill.ID)
		regenerated, rerr := d.generator.Generate(ctx, src)
		if rerr != nil {
			// The replacement did not validate; the current version stays
			// active and this job proceeds with it.
			d.logger.Warn("skill regeneration failed, keeping active version",
				zap.String("source_id", src.ID),
				zap.String("skill_id", skill.ID),
				zap.Int("version", skill.Version),
				zap.Error(rerr),
			)
			return skill, nil
		}
		return regenerated, nil
	}
	return skill, nil
}

func (d *Dispatcher) ingestOne(ctx context.Context, article ingest.Article) ([]string, error) {
	decision, err := d.sink.Ingest(ctx, article)
	if err != nil {
		return nil, ingest.Wrap(ingest.KindTransient, err)
	}
	if decision == ingestor.DecisionAccepted {
		return []string{article.ID}, nil
	}
	return nil, nil
}

var _ Agent = (*extract.Agent)(nil)
