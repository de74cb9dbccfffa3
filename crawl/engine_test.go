package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/extract"
)

// fakeDoc serves canned HTML and records wait calls.
type fakeDoc struct {
	html       string
	hasPanel   bool
	closedOnce sync.Once
	closed     bool
}

func (d *fakeDoc) WaitSettled(ctx context.Context, timeout time.Duration) error { return nil }
func (d *fakeDoc) WaitSelector(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	return d.hasPanel, nil
}
func (d *fakeDoc) HTML(ctx context.Context) ([]byte, error) { return []byte(d.html), nil }
func (d *fakeDoc) Close() error {
	d.closedOnce.Do(func() { d.closed = true })
	return nil
}

// fakeFetcher maps URLs to documents or errors, counting fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*fakeDoc
	errs    map[string]error
	fetches map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:   make(map[string]*fakeDoc),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[url]++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if d, ok := f.pages[url]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no route for %s", url)
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[url]
}

// memSink collects records and patches.
type memSink struct {
	mu      sync.Mutex
	records []extract.RawRecord
	patches []extract.RawPatch
	fail    bool
}

func (s *memSink) Record(ctx context.Context, rec *extract.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memSink) Patch(ctx context.Context, patch *extract.RawPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, *patch)
	return nil
}

const (
	listingURL = "https://shop.example/en-gb/collections/fiction-books"
	detailURL  = "https://shop.example/en-gb/products/dune-frank-herbert-9780450011849"
)

func listingHTML(hrefs ...string) string {
	page := "<html><body>"
	for i, h := range hrefs {
		page += fmt.Sprintf(`<a data-item_name="Book %d" data-item_id="id-%d" data-price="5.00" href=%q>x</a>`, i, i, h)
	}
	return page + "</body></html>"
}

func newTestEngine(f Fetcher, opts Options) *Engine {
	return New(f, extract.New(extract.Selectors{}), opts, nil)
}

func TestRunListingAndDetail(t *testing.T) {
	// WHAT: A listing seed emits records, enqueues the product link, and
	// the detail page emits a patch.
	// WHY: This is the whole pipeline in miniature: classify, extract, emit.
	ff := newFakeFetcher()
	ff.pages[listingURL] = &fakeDoc{html: listingHTML("/en-gb/products/dune-frank-herbert-9780450011849")}
	ff.pages[detailURL] = &fakeDoc{
		html:     `<html><body><div class="panel">Sand. Spice. Worms.</div></body></html>`,
		hasPanel: true,
	}

	sink := &memSink{}
	e := newTestEngine(ff, Options{Workers: 2})
	if err := e.Run(context.Background(), []string{listingURL}, extract.Context{Category: "Fiction"}, sink); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	if sink.records[0].Category != "Fiction" {
		t.Errorf("category = %q", sink.records[0].Category)
	}
	if len(sink.patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(sink.patches))
	}
	if sink.patches[0].SourceURL != detailURL {
		t.Errorf("patch url = %q", sink.patches[0].SourceURL)
	}
}

func TestVisitedURLsFetchedOnce(t *testing.T) {
	// WHAT: Two listings linking to the same product fetch it once.
	// WHY: The visited set must be updated atomically with the claim; a
	// duplicate fetch would double browser load and records.
	otherListing := "https://shop.example/en-gb/collections/fiction-books?page=2"
	href := "/en-gb/products/dune-frank-herbert-9780450011849"

	ff := newFakeFetcher()
	ff.pages[listingURL] = &fakeDoc{html: listingHTML(href)}
	ff.pages[otherListing] = &fakeDoc{html: listingHTML(href)}
	ff.pages[detailURL] = &fakeDoc{hasPanel: false}

	sink := &memSink{}
	e := newTestEngine(ff, Options{Workers: 4})
	if err := e.Run(context.Background(), []string{listingURL, otherListing}, extract.Context{}, sink); err != nil {
		t.Fatal(err)
	}
	if n := ff.count(detailURL); n != 1 {
		t.Fatalf("detail fetched %d times, want 1", n)
	}
	// Both listings still emitted their record; dedup is downstream's job.
	if len(sink.records) != 2 {
		t.Fatalf("records = %d, want 2", len(sink.records))
	}
}

func TestTransientFailureRetriedThenDropped(t *testing.T) {
	// WHAT: A URL that always fails is attempted MaxAttempts times and
	// dropped without failing the run.
	badURL := "https://shop.example/en-gb/collections/broken"
	ff := newFakeFetcher()
	ff.pages[listingURL] = &fakeDoc{html: listingHTML()}
	ff.errs[badURL] = errors.New("connection reset")

	e := newTestEngine(ff, Options{Workers: 2, MaxAttempts: 3})
	if err := e.Run(context.Background(), []string{listingURL, badURL}, extract.Context{}, &memSink{}); err != nil {
		t.Fatalf("run should survive dropped url: %v", err)
	}
	if n := ff.count(badURL); n != 3 {
		t.Fatalf("bad url fetched %d times, want 3", n)
	}
}

func TestCapabilityErrorAbortsRun(t *testing.T) {
	// WHAT: A capability-level fetch error aborts the run and surfaces.
	// WHY: This is the one failure class that must fail the job.
	ff := newFakeFetcher()
	ff.errs[listingURL] = fmt.Errorf("browser lost: %w", ErrCapability)

	e := newTestEngine(ff, Options{Workers: 2})
	err := e.Run(context.Background(), []string{listingURL}, extract.Context{}, &memSink{})
	if !errors.Is(err, ErrCapability) {
		t.Fatalf("err = %v, want ErrCapability", err)
	}
	if n := ff.count(listingURL); n != 1 {
		t.Fatalf("capability errors must not be retried, got %d fetches", n)
	}
}

func TestSinkFailureIsolated(t *testing.T) {
	// WHAT: A failing sink does not abort the run.
	// WHY: Per-record store errors are skipped, not propagated to job status.
	ff := newFakeFetcher()
	ff.pages[listingURL] = &fakeDoc{html: listingHTML("/en-gb/products/a-1")}
	ff.pages["https://shop.example/en-gb/products/a-1"] = &fakeDoc{hasPanel: false}

	sink := &memSink{fail: true}
	e := newTestEngine(ff, Options{Workers: 1})
	if err := e.Run(context.Background(), []string{listingURL}, extract.Context{}, sink); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// blockingFetcher parks every fetch until its context dies.
type blockingFetcher struct {
	started chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (Document, error) {
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCancelledContextAborts(t *testing.T) {
	// WHAT: Cancelling the context mid-fetch ends the run with an error.
	// WHY: A dead context must abort the run, never get mistaken for a
	// bad URL that is dropped while the crawl carries on.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bf := &blockingFetcher{started: make(chan struct{})}
	e := newTestEngine(bf, Options{Workers: 2})

	go func() {
		<-bf.started
		cancel()
	}()
	if err := e.Run(ctx, []string{listingURL}, extract.Context{}, &memSink{}); err == nil {
		t.Fatal("expected error from cancelled run")
	}
}
