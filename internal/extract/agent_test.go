package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

type fakeLoader struct {
	pages map[string]ingest.Page
	err   error
}

func (l *fakeLoader) LoadPage(_ context.Context, url string) (ingest.Page, error) {
	if l.err != nil {
		return ingest.Page{}, l.err
	}
	page, ok := l.pages[url]
	if !ok {
		return ingest.Page{}, ingest.Errorf(ingest.KindTransient, "no page for %s", url)
	}
	return page, nil
}

type fakeHasher struct{}

func (fakeHasher) Sum(data []byte) string { return fmt.Sprintf("hash-%d", len(data)) }

type fakeIDGen struct {
	n int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

const agentPage = `<html>
<head><title>Ignored</title><link rel="canonical" href="https://example.com/story-1"></head>
<body>
  <h1>Story Headline</h1>
  <div class="content"><p>Enough article text to satisfy the minimum body length check.</p></div>
</body>
</html>`

func agentRules() []ingest.Rule {
	return []ingest.Rule{
		{Field: FieldTitle, Selector: "h1"},
		{Field: FieldBody, Selector: ".content", Transform: "text"},
		{Field: FieldCanonicalURL, Selector: `link[rel="canonical"]`, Transform: "attr:href"},
	}
}

func newTestAgent(loader PageLoader, drift *DriftTracker) *Agent {
	return NewAgent(loader, drift, fakeHasher{}, &fakeIDGen{}, AgentConfig{
		MinBodyLength:      20,
		FallbackConfidence: 0.3,
	}, zap.NewNop())
}

func TestAgent_Extract_BuildsArticle(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{pages: map[string]ingest.Page{
		"https://example.com": {URL: "https://example.com", FinalURL: "https://example.com/final", Body: []byte(agentPage)},
	}}
	agent := newTestAgent(loader, NewDriftTracker(10, 0.5))

	article, err := agent.Extract(context.Background(),
		ingest.Source{ID: "src-1", URL: "https://example.com"},
		ingest.Skill{ID: "skill-1", SourceID: "src-1", Version: 1, Rules: agentRules()},
	)
	require.NoError(t, err)
	require.Equal(t, "src-1", article.SourceID)
	require.Equal(t, "Story Headline", article.Title)
	require.Equal(t, "https://example.com/story-1", article.CanonicalURL)
	require.NotEmpty(t, article.RawHTMLHash)
	require.Equal(t, 1.0, article.ExtractionConfidence)
}

func TestAgent_Extract_CanonicalFallsBackToFinalURL(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1>Headline</h1><div class="content"><p>Body text long enough for the gate.</p></div></body></html>`
	loader := &fakeLoader{pages: map[string]ingest.Page{
		"https://example.com": {URL: "https://example.com", FinalURL: "https://example.com/landed", Body: []byte(page)},
	}}
	agent := newTestAgent(loader, NewDriftTracker(10, 0.5))

	article, err := agent.Extract(context.Background(),
		ingest.Source{ID: "src-1", URL: "https://example.com"},
		ingest.Skill{ID: "skill-1", Rules: agentRules()},
	)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/landed", article.CanonicalURL)
}

func TestAgent_Extract_FetchFailureSkipsDriftWindow(t *testing.T) {
	t.Parallel()

	drift := NewDriftTracker(2, 0.5)
	loader := &fakeLoader{err: ingest.Errorf(ingest.KindTransient, "connection refused")}
	agent := newTestAgent(loader, drift)

	src := ingest.Source{ID: "src-1", URL: "https://example.com"}
	skill := ingest.Skill{ID: "skill-1", Rules: agentRules()}

	for i := 0; i < 5; i++ {
		_, err := agent.Extract(context.Background(), src, skill)
		require.Error(t, err)
	}
	// Network failures never fill the window.
	require.False(t, drift.RegenerationDue("skill-1"))
}

func TestAgent_Extract_ValidationFailureFeedsDrift(t *testing.T) {
	t.Parallel()

	drift := NewDriftTracker(2, 0.5)
	emptyPage := `<html><body><div>nothing the selectors match</div></body></html>`
	loader := &fakeLoader{pages: map[string]ingest.Page{
		"https://example.com": {URL: "https://example.com", Body: []byte(emptyPage)},
	}}
	agent := newTestAgent(loader, drift)

	src := ingest.Source{ID: "src-1", URL: "https://example.com"}
	skill := ingest.Skill{ID: "skill-1", Rules: agentRules()}

	_, err := agent.Extract(context.Background(), src, skill)
	require.Error(t, err)
	_, err = agent.Extract(context.Background(), src, skill)
	require.Error(t, err)

	require.True(t, agent.RegenerationDue("skill-1"))
	agent.ClearRegeneration("skill-1")
	require.False(t, agent.RegenerationDue("skill-1"))
}

func TestAgent_ExtractFallback_LowConfidence(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{pages: map[string]ingest.Page{
		"https://example.com": {URL: "https://example.com", Body: []byte(agentPage)},
	}}
	agent := newTestAgent(loader, NewDriftTracker(10, 0.5))

	article, err := agent.ExtractFallback(context.Background(),
		ingest.Source{ID: "src-1", URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "Story Headline", article.Title)
	require.Equal(t, 0.3, article.ExtractionConfidence)
}
