package fetchstatic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/crawl"
)

func contentPage() string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for range 30 {
		b.WriteString("<p>Plenty of real visible text about books and their prices.</p>")
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func TestIsSufficient(t *testing.T) {
	// WHAT: Static pages with real text pass; SPA shells fail.
	// WHY: This decides whether a crawl needs the browser at all.
	if !IsSufficient([]byte(contentPage())) {
		t.Error("content page judged insufficient")
	}
	shell := `<html><head><script src="/app.js"></script></head>` +
		`<body><div id="root"></div>` + strings.Repeat("<!-- pad -->", 50) + `</body></html>`
	if IsSufficient([]byte(shell)) {
		t.Error("SPA shell judged sufficient")
	}
	if IsSufficient([]byte("<html></html>")) {
		t.Error("tiny page judged sufficient")
	}
}

type capturedFetch struct {
	urls []string
}

func (c *capturedFetch) Fetch(ctx context.Context, url string) (crawl.Document, error) {
	c.urls = append(c.urls, url)
	return &staticDoc{body: []byte("<html><body>from browser</body></html>")}, nil
}

func TestFetchStaticPage(t *testing.T) {
	// WHAT: A sufficient page is served without escalation, and the
	// document answers selector checks from the parsed HTML.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><main><div class="panel">` +
			strings.Repeat("Real text about a book. ", 30) + `</div></main></body></html>`))
	}))
	defer srv.Close()

	next := &capturedFetch{}
	f := New(WithEscalation(next))
	doc, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	if len(next.urls) != 0 {
		t.Fatalf("unexpected escalation: %v", next.urls)
	}
	found, err := doc.WaitSelector(context.Background(), ".panel", time.Second)
	if err != nil || !found {
		t.Fatalf("panel not found in static doc: %v %v", found, err)
	}
	if found, _ := doc.WaitSelector(context.Background(), ".missing", time.Second); found {
		t.Fatal("missing selector reported found")
	}
}

func TestFetchEscalates(t *testing.T) {
	// WHAT: An SPA shell escalates to the next fetcher.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="root"></div>` +
			strings.Repeat("<script>x()</script>", 40) + `</body></html>`))
	}))
	defer srv.Close()

	next := &capturedFetch{}
	f := New(WithEscalation(next))
	doc, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()

	if len(next.urls) != 1 {
		t.Fatalf("escalations = %d, want 1", len(next.urls))
	}
}

func TestFetchHTTPError(t *testing.T) {
	// WHAT: Non-2xx/3xx responses are fetch errors (retryable upstream).
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := New()
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for http 410")
	}
}
