package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/newsloom/ingestd/internal/ingest"
)

// RenderConfig controls the behavior of the headless renderer.
type RenderConfig struct {
	// MaxSessions caps concurrent browser sessions independently of the
	// job concurrency limit; rendering is far heavier than a plain GET.
	MaxSessions int
	UserAgent   string
	NavTimeout  time.Duration
}

// ChromeRenderer implements ingest.Renderer using chromedp and headless
// Chrome.
type ChromeRenderer struct {
	cfg         RenderConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromeRenderer creates a renderer backed by chromedp.
func NewChromeRenderer(cfg RenderConfig) (*ChromeRenderer, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxSessions > 0 {
		limiter = make(chan struct{}, cfg.MaxSessions)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeRenderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *ChromeRenderer) Close() {
	r.allocCancel()
}

// Render navigates with a headless browser and returns the rendered DOM.
// Timeout expiry is reported as a transient failure.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (ingest.Page, error) {
	if err := r.acquire(ctx); err != nil {
		ingest.RendersTotal.WithLabelValues("canceled").Inc()
		return ingest.Page{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavTimeout)
	defer cancel()

	// Tie the session to the caller's lifecycle as well.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	start := time.Now()
	html, finalURL, err := r.run(taskCtx, url)
	if err != nil {
		ingest.RendersTotal.WithLabelValues("error").Inc()
		return ingest.Page{}, ingest.Errorf(ingest.KindTransient, "render %s: %v", url, err)
	}
	if finalURL == "" {
		finalURL = url
	}

	ingest.RendersTotal.WithLabelValues("ok").Inc()
	return ingest.Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: 200,
		Body:       []byte(html),
		Rendered:   true,
		Duration:   time.Since(start),
	}, nil
}

func (r *ChromeRenderer) run(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.sessionSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (r *ChromeRenderer) sessionSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *ChromeRenderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ingest.Errorf(ingest.KindTransient, "render slot wait canceled: %v", ctx.Err())
	}
}

func (r *ChromeRenderer) release() {
	if r.limiter == nil {
		return
	}
	<-r.limiter
}
