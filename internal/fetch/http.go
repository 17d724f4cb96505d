// Package fetch retrieves pages over plain HTTP and, when a page needs
// JavaScript, through a headless browser. It also parses syndication feeds.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/newsloom/ingestd/internal/ingest"
)

// HTTPConfig controls collector behavior.
type HTTPConfig struct {
	UserAgent      string
	Timeout        time.Duration
	PerDomainRPS   float64
	PerDomainBurst int
}

// HTTPFetcher implements ingest.Fetcher using the Colly collector.
type HTTPFetcher struct {
	cfg           HTTPConfig
	limiter       *domainLimiter
	baseCollector *colly.Collector
}

// NewHTTP builds an HTTPFetcher.
func NewHTTP(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	return &HTTPFetcher{
		cfg:           cfg,
		limiter:       newDomainLimiter(cfg.PerDomainRPS, cfg.PerDomainBurst),
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx statuses are returned as
// classified errors alongside the page metadata.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (ingest.Page, error) {
	if err := f.limiter.wait(ctx, url); err != nil {
		return ingest.Page{}, ingest.Wrap(ingest.KindTransient, err)
	}

	var (
		page     ingest.Page
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page = ingest.Page{
			URL:        url,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			page = ingest.Page{
				URL:        url,
				FinalURL:   url,
				StatusCode: r.StatusCode,
				Duration:   time.Since(start),
			}
			if r.Request != nil && r.Request.URL != nil {
				page.FinalURL = r.Request.URL.String()
			}
			fetchErr = ingest.StatusError(url, r.StatusCode)
			return
		}
		fetchErr = ingest.Errorf(classifyVisit(err), "fetch %s: %v", url, err)
	})

	if err := collector.Visit(url); err != nil {
		ingest.FetchesTotal.WithLabelValues("error").Inc()
		return ingest.Page{}, ingest.Errorf(classifyVisit(err), "visit %s: %v", url, err)
	}
	collector.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		ingest.FetchesTotal.WithLabelValues("canceled").Inc()
		return ingest.Page{}, ingest.Wrap(ingest.KindTransient, ctxErr)
	}
	if fetchErr != nil {
		ingest.FetchesTotal.WithLabelValues("error").Inc()
		return page, fetchErr
	}
	if page.StatusCode == 0 {
		ingest.FetchesTotal.WithLabelValues("error").Inc()
		return ingest.Page{}, ingest.Errorf(ingest.KindTransient, "fetch %s: no response", url)
	}
	ingest.FetchesTotal.WithLabelValues("ok").Inc()
	return page, nil
}

// classifyVisit maps collector-level errors to the failure taxonomy. A
// robots.txt disallow never clears on retry, so it is permanent.
func classifyVisit(err error) ingest.ErrorKind {
	if errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return ingest.KindPermanentAccessDenied
	}
	return ingest.KindTransient
}
