package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/shelfmark/shelfmark/crawl"
)

// Fetcher opens stealth pages against the managed browser. It implements
// crawl.Fetcher.
type Fetcher struct {
	mgr *Manager
}

// NewFetcher creates a Fetcher over a started Manager.
func NewFetcher(mgr *Manager) *Fetcher {
	return &Fetcher{mgr: mgr}
}

// Fetch navigates a new stealth page to the URL. A missing or dead browser
// is a capability failure (aborts the run); navigation errors are the
// ordinary retryable kind.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.Document, error) {
	b := f.mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browse: no active browser: %w", crawl.ErrCapability)
	}

	page, err := stealth.Page(b)
	if err != nil {
		// Page creation failing means the Chrome connection is gone.
		return nil, fmt.Errorf("browse: create page: %v: %w", err, crawl.ErrCapability)
	}

	if len(f.mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, f.mgr.cfg.ResourceBlocking); err != nil {
			f.mgr.cfg.Logger.Warn("browse: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, f.mgr.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browse: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.mgr.cfg.Logger.Debug("browse: wait load timeout", "url", url, "error", err)
	}

	return &pageDoc{page: page}, nil
}

// pageDoc adapts a rod page to crawl.Document.
type pageDoc struct {
	page *rod.Page
}

// WaitSettled waits for network activity to go idle, bounded by timeout.
// Client-rendered listings keep loading after WaitLoad fires.
func (d *pageDoc) WaitSettled(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := d.page.Context(tctx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	wait()
	return nil
}

// WaitSelector blocks until the selector appears or the timeout passes.
// Absence within the timeout is not an error.
func (d *pageDoc) WaitSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := d.page.Context(tctx).Element(selector); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

// HTML serialises the current DOM.
func (d *pageDoc) HTML(ctx context.Context) ([]byte, error) {
	s, err := d.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browse: html: %w", err)
	}
	return []byte(s), nil
}

// Close closes the page.
func (d *pageDoc) Close() error {
	return d.page.Close()
}
