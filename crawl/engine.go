package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shelfmark/shelfmark/extract"
)

// Options configures an Engine.
type Options struct {
	// Workers is the number of concurrent fetch/extract workers. Default: 5.
	Workers int
	// MaxAttempts is the per-URL fetch attempt cap. Default: 3.
	MaxAttempts int
	// SettleTimeout bounds the wait for listing-page network idle. Default: 10s.
	SettleTimeout time.Duration
	// PanelTimeout bounds the wait for the detail panel. Default: 5s.
	PanelTimeout time.Duration
	// DetailMarker classifies a URL as a detail page when its path
	// contains this segment. Default: "/products/".
	DetailMarker string
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 10 * time.Second
	}
	if o.PanelTimeout <= 0 {
		o.PanelTimeout = 5 * time.Second
	}
	if o.DetailMarker == "" {
		o.DetailMarker = "/products/"
	}
}

// Engine runs crawls. Safe for concurrent runs: all per-run state lives in
// the run, not the Engine.
type Engine struct {
	fetcher   Fetcher
	extractor Extractor
	opts      Options
	logger    *slog.Logger
}

// New creates an Engine.
func New(fetcher Fetcher, extractor Extractor, opts Options, logger *slog.Logger) *Engine {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fetcher:   fetcher,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// Run crawls from the seed URLs until the frontier drains, streaming
// records and patches into sink. Per-URL failures are retried up to the
// attempt cap and then dropped; only a capability-level failure aborts the
// run and is returned. Re-running the same seeds produces the same logical
// record set regardless of worker interleaving.
func (e *Engine) Run(ctx context.Context, seeds []string, ectx extract.Context, sink Sink) error {
	f := newFrontier(seeds)

	var (
		once   sync.Once
		runErr error
		wg     sync.WaitGroup
	)
	fail := func(err error) {
		once.Do(func() {
			runErr = err
			f.abort()
		})
	}

	// Abort the frontier if the context dies, so blocked workers exit.
	finished := make(chan struct{})
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go func() {
		defer watchWG.Done()
		select {
		case <-ctx.Done():
			fail(fmt.Errorf("crawl: run cancelled: %w", ctx.Err()))
		case <-finished:
		}
	}()

	for range e.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				url, ok := f.next()
				if !ok {
					return
				}
				if err := e.processURL(ctx, url, ectx, f, sink); err != nil {
					fail(err)
				}
				f.done()
			}
		}()
	}

	wg.Wait()
	close(finished)
	watchWG.Wait()
	return runErr
}

// processURL fetches and extracts one URL. A non-nil return means the run
// must abort; per-URL failures are logged and swallowed here.
func (e *Engine) processURL(ctx context.Context, url string, ectx extract.Context, f *frontier, sink Sink) error {
	doc, err := e.fetchWithRetry(ctx, url)
	if err != nil {
		// A dead context means the run is over, not that this URL is bad.
		if isCapabilityErr(err) || ctx.Err() != nil {
			return err
		}
		// Dropped after exhausting attempts. The run survives.
		e.logger.Warn("crawl: url dropped", "url", url, "error", err)
		return nil
	}
	defer doc.Close()

	if e.isDetail(url) {
		e.processDetail(ctx, doc, url, sink)
	} else {
		e.processListing(ctx, doc, url, ectx, f, sink)
	}
	return nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, url string) (Document, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		doc, err := e.fetcher.Fetch(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if isCapabilityErr(err) || ctx.Err() != nil {
			return nil, err
		}
		e.logger.Debug("crawl: fetch retry", "url", url, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("crawl: %d attempts failed: %w", e.opts.MaxAttempts, lastErr)
}

func (e *Engine) processListing(ctx context.Context, doc Document, url string, ectx extract.Context, f *frontier, sink Sink) {
	// Client-rendered listings populate after load; wait for quiet.
	if err := doc.WaitSettled(ctx, e.opts.SettleTimeout); err != nil {
		e.logger.Debug("crawl: settle wait ended early", "url", url, "error", err)
	}

	pageHTML, err := doc.HTML(ctx)
	if err != nil {
		e.logger.Warn("crawl: listing html", "url", url, "error", err)
		return
	}

	records, links, err := e.extractor.Listing(pageHTML, url, ectx)
	if err != nil {
		// Extraction failure is zero records for this page, nothing more.
		e.logger.Debug("crawl: listing extraction", "url", url, "error", err)
		return
	}

	for i := range records {
		if err := sink.Record(ctx, &records[i]); err != nil {
			e.logger.Warn("crawl: record skipped", "source_id", records[i].SourceID, "error", err)
		}
	}

	enqueued := 0
	for _, link := range links {
		if f.add(link) {
			enqueued++
		}
	}
	e.logger.Info("crawl: listing processed",
		"url", url, "records", len(records), "enqueued", enqueued)
}

func (e *Engine) processDetail(ctx context.Context, doc Document, url string, sink Sink) {
	found, err := doc.WaitSelector(ctx, e.extractor.DetailSelector(), e.opts.PanelTimeout)
	if err != nil {
		e.logger.Debug("crawl: detail wait", "url", url, "error", err)
		return
	}
	if !found {
		e.logger.Debug("crawl: detail panel absent", "url", url)
		return
	}

	pageHTML, err := doc.HTML(ctx)
	if err != nil {
		e.logger.Warn("crawl: detail html", "url", url, "error", err)
		return
	}

	patch, err := e.extractor.Detail(pageHTML, url)
	if err != nil {
		e.logger.Debug("crawl: detail extraction", "url", url, "error", err)
		return
	}
	if patch == nil {
		return
	}
	if err := sink.Patch(ctx, patch); err != nil {
		e.logger.Warn("crawl: patch skipped", "url", url, "error", err)
	}
}

func (e *Engine) isDetail(url string) bool {
	return strings.Contains(url, e.opts.DetailMarker)
}

func isCapabilityErr(err error) bool {
	return errors.Is(err, ErrCapability)
}
