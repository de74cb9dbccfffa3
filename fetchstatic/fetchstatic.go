// Package fetchstatic implements the HTTP-only acquisition path: a single
// GET that produces a crawl.Document without a browser. Covers static
// listings; pages that look like SPA shells escalate to the browser
// fetcher when one is configured.
package fetchstatic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shelfmark/shelfmark/crawl"
	"github.com/shelfmark/shelfmark/extract"
)

// Fetcher performs HTTP GETs and produces static Documents.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	next     crawl.Fetcher
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithEscalation sets the fetcher to fall back to when a page is not
// sufficient for static extraction (typically the browser fetcher).
func WithEscalation(next crawl.Fetcher) Option {
	return func(f *Fetcher) { f.next = next }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; shelfmark/1.0)",
		maxBytes: 10 << 20,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs the URL. Insufficient HTML escalates to the next fetcher if
// one is configured, otherwise the static document is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchstatic: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchstatic: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetchstatic: http %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetchstatic: read body: %w", err)
	}

	if !IsSufficient(body) && f.next != nil {
		f.logger.Debug("fetchstatic: escalating to browser", "url", url, "size", len(body))
		return f.next.Fetch(ctx, url)
	}

	return &staticDoc{body: body}, nil
}

// staticDoc is a fully-materialised page: waits are no-ops because there
// is nothing left to settle.
type staticDoc struct {
	body []byte
}

func (d *staticDoc) WaitSettled(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (d *staticDoc) WaitSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return extract.HasSelector(d.body, selector), nil
}

func (d *staticDoc) HTML(ctx context.Context) ([]byte, error) {
	return d.body, nil
}

func (d *staticDoc) Close() error { return nil }
