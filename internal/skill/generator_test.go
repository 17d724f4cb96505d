package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memoryblob "github.com/newsloom/ingestd/internal/blob/memory"
	"github.com/newsloom/ingestd/internal/ingest"
	"github.com/newsloom/ingestd/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeHasher struct{}

func (fakeHasher) Sum(data []byte) string { return fmt.Sprintf("hash-%d", len(data)) }

type fakeIDGen struct {
	n int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeLoader struct {
	pages map[string]ingest.Page
}

func (l *fakeLoader) LoadPage(_ context.Context, url string) (ingest.Page, error) {
	page, ok := l.pages[url]
	if !ok {
		return ingest.Page{}, ingest.Errorf(ingest.KindTransient, "no page for %s", url)
	}
	return page, nil
}

// fakeLLM returns canned responses per turn; a response may be raw junk to
// force a corrective turn.
type fakeLLM struct {
	responses []string
	calls     int
	prompts   []string
	err       error
}

func (l *fakeLLM) Complete(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (l *fakeLLM) GenerateStructured(_ context.Context, prompt string, out any) error {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return l.err
	}
	if l.calls >= len(l.responses) {
		return ingest.Errorf(ingest.KindGenerationFailure, "no canned response")
	}
	resp := l.responses[l.calls]
	l.calls++
	if err := json.Unmarshal([]byte(resp), out); err != nil {
		return ingest.Wrap(ingest.KindGenerationFailure, err)
	}
	return nil
}

const longBody = "This article body is deliberately long enough to clear the minimum body length threshold used by the validation gate in these tests. It keeps going with more prose so length is never the reason a sample fails."

func samplePage(url string) ingest.Page {
	body := fmt.Sprintf(`<html>
<head><title>Site</title></head>
<body>
  <h1>Headline for %s</h1>
  <div class="story"><p>%s</p></div>
</body>
</html>`, url, longBody)
	return ingest.Page{URL: url, FinalURL: url, Body: []byte(body)}
}

const goodProposal = `{"rules":[
  {"field":"title","selector":"h1","transform":"text"},
  {"field":"body","selector":".story","transform":"join"}
]}`

const badProposal = `{"rules":[
  {"field":"title","selector":".does-not-exist","transform":"text"},
  {"field":"body","selector":".also-missing","transform":"text"}
]}`

func testGeneratorConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleCount = 1
	cfg.MinBodyLength = 50
	cfg.Model = "test-model"
	return cfg
}

func newTestGenerator(
	llm ingest.LLM,
	loader *fakeLoader,
	skills *memory.SkillStore,
	sources *memory.SourceStore,
	blobs ingest.BlobStore,
	cfg Config,
) *Generator {
	return New(llm, loader, skills, sources, blobs, fakeHasher{}, &fakeIDGen{},
		&fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}, cfg, zap.NewNop())
}

func TestGenerator_Generate_PublishesValidatedSkill(t *testing.T) {
	t.Parallel()

	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: samplePage(src.URL)}}
	llm := &fakeLLM{responses: []string{goodProposal}}
	skills := memory.NewSkillStore()
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(context.Background(), src))

	g := newTestGenerator(llm, loader, skills, sources, nil, testGeneratorConfig())
	published, err := g.Generate(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, 1, published.Version)
	require.Equal(t, "src-1", published.SourceID)
	require.Equal(t, "test-model", published.GeneratingModel)
	require.Len(t, published.Rules, 2)
	require.Equal(t, 1, published.Validation.SamplesPassed)
	require.Equal(t, 1, published.Validation.SamplesTotal)

	// The skill was persisted and activated on the source.
	stored, err := skills.Load(context.Background(), published.ID)
	require.NoError(t, err)
	require.Equal(t, published.ID, stored.ID)
	updated, err := sources.Load(context.Background(), "src-1")
	require.NoError(t, err)
	require.Equal(t, published.ID, updated.ActiveSkillID)
}

func TestGenerator_Generate_FailedValidationNeverPublishes(t *testing.T) {
	t.Parallel()

	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: samplePage(src.URL)}}
	llm := &fakeLLM{responses: []string{badProposal, badProposal}}
	skills := memory.NewSkillStore()
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(context.Background(), src))

	g := newTestGenerator(llm, loader, skills, sources, nil, testGeneratorConfig())
	_, err := g.Generate(context.Background(), src)
	require.Error(t, err)
	require.Equal(t, ingest.KindGenerationFailure, ingest.KindOf(err))

	// Both turns were spent, nothing was stored, the source is untouched.
	require.Equal(t, 2, llm.calls)
	version, verr := skills.LatestVersion(context.Background(), "src-1")
	require.NoError(t, verr)
	require.Zero(t, version)
	updated, lerr := sources.Load(context.Background(), "src-1")
	require.NoError(t, lerr)
	require.Empty(t, updated.ActiveSkillID)
}

func TestGenerator_Generate_CorrectiveTurnAfterBadJSON(t *testing.T) {
	t.Parallel()

	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: samplePage(src.URL)}}
	llm := &fakeLLM{responses: []string{"not json at all", goodProposal}}
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(context.Background(), src))

	g := newTestGenerator(llm, loader, memory.NewSkillStore(), sources, nil, testGeneratorConfig())
	published, err := g.Generate(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, published.Version)
	require.Equal(t, 2, llm.calls)
	// The second prompt carries the rejection feedback.
	require.Contains(t, llm.prompts[1], "previous response was not valid JSON")
}

func TestGenerator_Generate_RateLimitedPassesThrough(t *testing.T) {
	t.Parallel()

	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: samplePage(src.URL)}}
	llm := &fakeLLM{err: ingest.Errorf(ingest.KindRateLimited, "quota exhausted")}
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(context.Background(), src))

	g := newTestGenerator(llm, loader, memory.NewSkillStore(), sources, nil, testGeneratorConfig())
	_, err := g.Generate(context.Background(), src)
	require.Error(t, err)
	require.Equal(t, ingest.KindRateLimited, ingest.KindOf(err))
}

func TestGenerator_Generate_VersionIncrements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: samplePage(src.URL)}}
	skills := memory.NewSkillStore()
	require.NoError(t, skills.Save(ctx, ingest.Skill{ID: "old-skill", SourceID: "src-1", Version: 3}))
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(ctx, src))

	llm := &fakeLLM{responses: []string{goodProposal}}
	g := newTestGenerator(llm, loader, skills, sources, nil, testGeneratorConfig())

	published, err := g.Generate(ctx, src)
	require.NoError(t, err)
	require.Equal(t, 4, published.Version)

	// The prior version remains loadable.
	old, err := skills.Load(ctx, "old-skill")
	require.NoError(t, err)
	require.Equal(t, 3, old.Version)
}

func TestGenerator_Generate_SnapshotsSamples(t *testing.T) {
	t.Parallel()

	src := ingest.Source{ID: "src-1", URL: "https://example.com", Type: ingest.SourceTypeWeb}
	page := samplePage(src.URL)
	loader := &fakeLoader{pages: map[string]ingest.Page{src.URL: page}}
	blobs := memoryblob.New()
	sources := memory.NewSourceStore()
	require.NoError(t, sources.Save(context.Background(), src))

	llm := &fakeLLM{responses: []string{goodProposal}}
	g := newTestGenerator(llm, loader, memory.NewSkillStore(), sources, blobs, testGeneratorConfig())

	_, err := g.Generate(context.Background(), src)
	require.NoError(t, err)

	path := fmt.Sprintf("samples/src-1/hash-%d.html", len(page.Body))
	stored, ok := blobs.Get(path)
	require.True(t, ok)
	require.Equal(t, page.Body, stored)
}

func TestSanitizeRules(t *testing.T) {
	t.Parallel()

	rules := sanitizeRules([]proposedRule{
		{Field: "Title", Selector: "h1", Transform: "text"},
		{Field: "title", Selector: "h2", Transform: "text"}, // duplicate field
		{Field: "body", Selector: ".story", Transform: "join"},
		{Field: "published_at", Selector: "time", Transform: "regex:.*"}, // unknown transform
		{Field: "", Selector: "h3"},                                     // missing field
		{Field: "author", Selector: ""},                                 // missing selector
	})

	require.Len(t, rules, 2)
	require.Equal(t, "title", rules[0].Field)
	require.Equal(t, "h1", rules[0].Selector)
	require.Equal(t, "body", rules[1].Field)
}

func TestDiscoverLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
	  <a href="/articles/long-enough-path-1">One</a>
	  <a href="/articles/long-enough-path-1">Duplicate</a>
	  <a href="https://other-host.com/articles/elsewhere">Off-host</a>
	  <a href="/a">Shallow</a>
	  <a href="/articles/long-enough-path-2">Two</a>
	  <a href="/articles/long-enough-path-3">Three</a>
	</body></html>`)

	links := discoverLinks(body, "https://example.com", 2)
	require.Equal(t, []string{
		"https://example.com/articles/long-enough-path-1",
		"https://example.com/articles/long-enough-path-2",
	}, links)

	require.Nil(t, discoverLinks(body, "https://example.com", 0))
}
