// Package crawl drives a bounded-concurrency crawl over a frontier of
// listing and detail URLs, handing each fetched page to the extraction
// strategy and streaming the results into a Sink.
//
// The engine owns ordering and failure isolation only. What a page means
// is the extract package's business; where records end up is the Sink's.
package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/shelfmark/shelfmark/extract"
)

// ErrCapability signals that the fetch capability itself is unusable
// (browser gone, transport torn down). Unlike a per-URL failure it aborts
// the whole run.
var ErrCapability = errors.New("crawl: fetch capability unusable")

// Document is a fetched, navigable page. Implementations: the rod-backed
// browser page in package browse, and the static HTML document in package
// fetchstatic.
type Document interface {
	// WaitSettled blocks until network activity has gone idle, or the
	// timeout passes. Used on listing pages to tolerate client-rendered
	// content.
	WaitSettled(ctx context.Context, timeout time.Duration) error
	// WaitSelector waits for a selector to appear. found=false (with nil
	// error) means the selector never showed up within the timeout.
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) (found bool, err error)
	// HTML returns the current serialised DOM.
	HTML(ctx context.Context) ([]byte, error)
	// Close releases the page.
	Close() error
}

// Fetcher produces Documents. Failures are retryable per-URL unless they
// wrap ErrCapability.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// Sink receives extraction output as it is produced. Implementations must
// tolerate duplicate emissions for the same key: the engine does not
// deduplicate records, only URLs.
type Sink interface {
	Record(ctx context.Context, rec *extract.RawRecord) error
	Patch(ctx context.Context, patch *extract.RawPatch) error
}

// Extractor is the slice of extract.Strategy the engine needs.
type Extractor interface {
	Listing(pageHTML []byte, pageURL string, ectx extract.Context) ([]extract.RawRecord, []string, error)
	Detail(pageHTML []byte, pageURL string) (*extract.RawPatch, error)
	DetailSelector() string
}
