package fetch

import (
	"context"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Loader fetches a page over plain HTTP and promotes to a headless render
// when the detector finds client-side rendering signals. It is the single
// page-loading entry point for the extraction agent and skill generator.
type Loader struct {
	fetcher  ingest.Fetcher
	renderer ingest.Renderer
	detector *Detector
}

// NewLoader builds a Loader. A nil renderer disables promotion.
func NewLoader(fetcher ingest.Fetcher, renderer ingest.Renderer, detector *Detector) *Loader {
	return &Loader{
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
	}
}

// LoadPage returns the best available representation of the URL.
func (l *Loader) LoadPage(ctx context.Context, url string) (ingest.Page, error) {
	page, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return page, err
	}
	if l.renderer == nil || l.detector == nil || !l.detector.NeedsRender(page.Body) {
		return page, nil
	}
	rendered, err := l.renderer.Render(ctx, url)
	if err != nil {
		// The plain fetch succeeded; fall back to it rather than failing
		// the whole job on a render hiccup.
		return page, nil
	}
	return rendered, nil
}
