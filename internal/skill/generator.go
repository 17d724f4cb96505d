// Package skill synthesizes extraction rulesets for web sources via the
// LLM collaborator and validates them against sample pages before any
// publication. A ruleset that fails the gate is never published.
package skill

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/extract"
	"github.com/newsloom/ingestd/internal/ingest"
)

// Config tunes sampling, validation, and the turn budget.
type Config struct {
	// SampleCount is how many pages feed generation and validation; at
	// least one, ideally three.
	SampleCount int
	// MinValidFraction is the fraction of samples that must pass the
	// validation gate before a ruleset is published.
	MinValidFraction float64
	MinBodyLength    int
	// MaxTurns caps the generate-validate loop. The generator needs
	// structured output, not open dialogue; one corrective turn is enough.
	MaxTurns int
	Model    string
	// SnapshotPrefix is the blob path prefix for sample-page audit copies.
	SnapshotPrefix string
}

// DefaultConfig returns standard generation settings.
func DefaultConfig() Config {
	return Config{
		SampleCount:      3,
		MinValidFraction: 0.67,
		MinBodyLength:    200,
		MaxTurns:         2,
		SnapshotPrefix:   "samples",
	}
}

// Generator produces validated skills.
type Generator struct {
	llm     ingest.LLM
	loader  extract.PageLoader
	skills  ingest.SkillStore
	sources ingest.SourceStore
	blobs   ingest.BlobStore
	hasher  ingest.Hasher
	ids     ingest.IDGenerator
	clock   ingest.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Generator. The blob store may be nil, which disables
// sample snapshots.
func New(
	llm ingest.LLM,
	loader extract.PageLoader,
	skills ingest.SkillStore,
	sources ingest.SourceStore,
	blobs ingest.BlobStore,
	hasher ingest.Hasher,
	ids ingest.IDGenerator,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SampleCount < 1 {
		cfg.SampleCount = 1
	}
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = 1
	}
	return &Generator{
		llm:     llm,
		loader:  loader,
		skills:  skills,
		sources: sources,
		blobs:   blobs,
		hasher:  hasher,
		ids:     ids,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

type proposal struct {
	Rules []proposedRule `json:"rules"`
}

type proposedRule struct {
	Field     string `json:"field"`
	Selector  string `json:"selector"`
	Transform string `json:"transform"`
}

// Generate synthesizes, validates, and publishes a new skill for the
// source. On success the new skill becomes the source's active skill; the
// prior version is retained but inactive. Any failure is a generation
// failure for the calling job unless the LLM itself was rate limited.
func (g *Generator) Generate(ctx context.Context, src ingest.Source) (ingest.Skill, error) {
	samples, err := g.loadSamples(ctx, src)
	if err != nil {
		ingest.GenerationsTotal.WithLabelValues("sample_error").Inc()
		return ingest.Skill{}, err
	}
	g.snapshotSamples(ctx, src, samples)

	var lastFailure string
	for turn := 0; turn < g.cfg.MaxTurns; turn++ {
		var prop proposal
		prompt := g.buildPrompt(src, samples, lastFailure)
		if err := g.llm.GenerateStructured(ctx, prompt, &prop); err != nil {
			if ingest.KindOf(err) == ingest.KindRateLimited {
				ingest.GenerationsTotal.WithLabelValues("rate_limited").Inc()
				return ingest.Skill{}, err
			}
			lastFailure = fmt.Sprintf("previous response was not valid JSON: %v", err)
			continue
		}

		rules := sanitizeRules(prop.Rules)
		validation, failure := g.validate(rules, samples)
		if failure == "" {
			return g.publish(ctx, src, rules, validation)
		}
		lastFailure = failure
		g.logger.Debug("skill proposal failed validation",
			zap.String("source_id", src.ID),
			zap.Int("turn", turn+1),
			zap.String("failure", failure),
		)
	}

	ingest.GenerationsTotal.WithLabelValues("failed").Inc()
	return ingest.Skill{}, ingest.Errorf(ingest.KindGenerationFailure,
		"no ruleset passed validation for source %s after %d turns: %s",
		src.ID, g.cfg.MaxTurns, lastFailure)
}

// loadSamples fetches the source page plus a few same-host article links
// discovered on it.
func (g *Generator) loadSamples(ctx context.Context, src ingest.Source) ([]ingest.Page, error) {
	first, err := g.loader.LoadPage(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	samples := []ingest.Page{first}

	for _, link := range discoverLinks(first.Body, src.URL, g.cfg.SampleCount-1) {
		page, err := g.loader.LoadPage(ctx, link)
		if err != nil {
			// One broken link should not sink generation; the landing
			// page alone satisfies the minimum sample count.
			g.logger.Debug("sample page fetch failed",
				zap.String("source_id", src.ID),
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		samples = append(samples, page)
	}
	return samples, nil
}

func (g *Generator) snapshotSamples(ctx context.Context, src ingest.Source, samples []ingest.Page) {
	if g.blobs == nil {
		return
	}
	for _, page := range samples {
		path := fmt.Sprintf("%s/%s/%s.html", g.cfg.SnapshotPrefix, src.ID, g.hasher.Sum(page.Body))
		if _, err := g.blobs.Put(ctx, path, "text/html; charset=utf-8", page.Body); err != nil {
			g.logger.Warn("sample snapshot failed",
				zap.String("source_id", src.ID),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// validate applies the proposed rules to every sample and checks the gate.
// Returns a populated validation record and an empty failure string when
// the gate passes.
func (g *Generator) validate(rules []ingest.Rule, samples []ingest.Page) (ingest.SkillValidation, string) {
	if len(rules) == 0 {
		return ingest.SkillValidation{SamplesTotal: len(samples)}, "proposal contained no usable rules"
	}
	if !hasField(rules, extract.FieldTitle) || !hasField(rules, extract.FieldBody) {
		return ingest.SkillValidation{SamplesTotal: len(samples)},
			"proposal must include rules for both title and body"
	}

	passed := 0
	var coverageSum float64
	var lastErr string
	for _, sample := range samples {
		result, err := extract.Apply(rules, sample.Body)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		coverageSum += result.Coverage
		if err := extract.Validate(result.Fields, g.cfg.MinBodyLength); err != nil {
			lastErr = err.Error()
			continue
		}
		passed++
	}

	validation := ingest.SkillValidation{
		SamplesPassed: passed,
		SamplesTotal:  len(samples),
		FieldCoverage: coverageSum / float64(len(samples)),
	}
	if float64(passed)/float64(len(samples)) < g.cfg.MinValidFraction {
		return validation, fmt.Sprintf(
			"only %d of %d samples passed validation (last error: %s)",
			passed, len(samples), lastErr)
	}
	return validation, ""
}

func (g *Generator) publish(
	ctx context.Context,
	src ingest.Source,
	rules []ingest.Rule,
	validation ingest.SkillValidation,
) (ingest.Skill, error) {
	version, err := g.skills.LatestVersion(ctx, src.ID)
	if err != nil {
		return ingest.Skill{}, fmt.Errorf("latest skill version for %s: %w", src.ID, err)
	}
	id, err := g.ids.NewID()
	if err != nil {
		return ingest.Skill{}, fmt.Errorf("skill id: %w", err)
	}

	skill := ingest.Skill{
		ID:              id,
		SourceID:        src.ID,
		Version:         version + 1,
		Rules:           rules,
		GeneratedAt:     g.clock.Now(),
		GeneratingModel: g.cfg.Model,
		Validation:      validation,
	}
	if err := g.skills.Save(ctx, skill); err != nil {
		return ingest.Skill{}, fmt.Errorf("save skill: %w", err)
	}

	src.ActiveSkillID = skill.ID
	src.UpdatedAt = g.clock.Now()
	if err := g.sources.Save(ctx, src); err != nil {
		return ingest.Skill{}, fmt.Errorf("activate skill on source %s: %w", src.ID, err)
	}

	ingest.GenerationsTotal.WithLabelValues("published").Inc()
	g.logger.Info("published skill",
		zap.String("source_id", src.ID),
		zap.String("skill_id", skill.ID),
		zap.Int("version", skill.Version),
		zap.Int("samples_passed", validation.SamplesPassed),
		zap.Int("samples_total", validation.SamplesTotal),
	)
	return skill, nil
}

const maxSampleBytes = 12000

func (g *Generator) buildPrompt(src ingest.Source, samples []ingest.Page, lastFailure string) string {
	var b strings.Builder
	b.WriteString("You design declarative CSS-selector extraction rules for news-like web pages.\n")
	b.WriteString("Respond with JSON only, matching this shape:\n")
	b.WriteString(`{"rules":[{"field":"title","selector":"h1","transform":"text"}]}` + "\n")
	b.WriteString("Allowed transform values: text, html, join, attr:<name>.\n")
	b.WriteString("Required fields: title, body. Optional fields: canonical_url, published_at, author.\n")
	b.WriteString("Use transform \"join\" for bodies spread across multiple paragraphs,\n")
	b.WriteString("and attr:href / attr:content / attr:datetime for link and metadata values.\n")
	fmt.Fprintf(&b, "\nSource URL: %s\n", src.URL)
	if lastFailure != "" {
		fmt.Fprintf(&b, "\nYour previous ruleset was rejected: %s\nPropose a corrected ruleset.\n", lastFailure)
	}
	for i, sample := range samples {
		body := sample.Body
		if len(body) > maxSampleBytes {
			body = body[:maxSampleBytes]
		}
		fmt.Fprintf(&b, "\n--- SAMPLE PAGE %d (%s) ---\n%s\n", i+1, sample.FinalURL, body)
	}
	return b.String()
}

func sanitizeRules(proposed []proposedRule) []ingest.Rule {
	rules := make([]ingest.Rule, 0, len(proposed))
	seen := make(map[string]struct{}, len(proposed))
	for _, p := range proposed {
		field := strings.TrimSpace(strings.ToLower(p.Field))
		selector := strings.TrimSpace(p.Selector)
		transform := strings.TrimSpace(p.Transform)
		if field == "" || selector == "" || !extract.KnownTransform(transform) {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		rules = append(rules, ingest.Rule{
			Field:     field,
			Selector:  selector,
			Transform: transform,
		})
	}
	return rules
}

func hasField(rules []ingest.Rule, field string) bool {
	for _, r := range rules {
		if r.Field == field {
			return true
		}
	}
	return false
}

// discoverLinks pulls up to n same-host links from a landing page to use
// as extra validation samples.
func discoverLinks(body []byte, baseURL string, n int) []string {
	if n <= 0 {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []string
	seen := map[string]struct{}{baseURL: {}}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if resolved.Hostname() != base.Hostname() {
			return true
		}
		// Skip shallow navigation links; article pages have real paths.
		if len(strings.Trim(resolved.Path, "/")) < 8 {
			return true
		}
		u := resolved.String()
		if _, dup := seen[u]; dup {
			return true
		}
		seen[u] = struct{}{}
		links = append(links, u)
		return len(links) < n
	})
	return links
}
