package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/dbopen"
	"github.com/shelfmark/shelfmark/idgen"
	_ "modernc.org/sqlite"
)

var nanoID = idgen.NanoID(9)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func testProduct(sourceID string) *Product {
	return &Product{
		ID:            idgen.New(),
		Title:         "Dune",
		Price:         "£8.99",
		Image:         "https://image-server.worldofbooks.com/images/9780340960196.jpg",
		Category:      "Fiction",
		SourceID:      sourceID,
		SourceURL:     "https://www.worldofbooks.com/en-gb/products/dune-book-frank-herbert-9780340960196",
		LastScrapedAt: time.Now().UnixMilli(),
	}
}

func TestSchemaTables(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	db := openTestDB(t)
	for _, table := range []string{"products", "scrape_jobs", "view_history", "navigations", "categories"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestUpsertProductIdempotent(t *testing.T) {
	// WHAT: Re-upserting the same source_id updates the row in place and
	// refreshes shallow fields, leaving description and rating untouched.
	// WHY: Listing re-scrapes must never duplicate products or clobber
	// detail-page data that listings don't carry.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	p := testProduct("987654321")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ok, err := s.PatchDescriptionByURL(ctx, p.SourceURL, "A desert planet epic."); err != nil || !ok {
		t.Fatalf("patch: ok=%v err=%v", ok, err)
	}

	// Same source_id, new price, new internal id candidate.
	p2 := testProduct("987654321")
	p2.Price = "£7.49"
	if err := s.UpsertProduct(ctx, p2); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	got, err := s.GetProductBySourceID(ctx, "987654321")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("id changed on upsert: %s != %s", got.ID, p.ID)
	}
	if got.Price != "£7.49" {
		t.Errorf("price = %q, want £7.49", got.Price)
	}
	if got.Description != "A desert planet epic." {
		t.Errorf("description lost on re-upsert: %q", got.Description)
	}
}

func TestPatchDescriptionMiss(t *testing.T) {
	// WHAT: Patching a source_url with no matching product is a no-op
	// that reports false without error.
	// WHY: Detail pages can be crawled before their listing row exists.
	s := NewStore(openTestDB(t))
	ok, err := s.PatchDescriptionByURL(context.Background(), "https://shop.example/products/nope", "text")
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if ok {
		t.Error("patch matched a row in an empty table")
	}
}

func TestGetProductMiss(t *testing.T) {
	// WHAT: A lookup miss returns (nil, nil).
	// WHY: Callers distinguish absence from failure.
	s := NewStore(openTestDB(t))
	p, err := s.GetProduct(context.Background(), idgen.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Errorf("got %+v, want nil", p)
	}
}

func TestListProductsPagination(t *testing.T) {
	// WHAT: Limit/offset pages are disjoint, complete, and stable.
	// WHY: UI pagination depends on deterministic ordering by id.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	titles := []string{"Dune", "Emma", "Hamlet", "Ivanhoe", "Ulysses"}
	for i, title := range titles {
		p := testProduct(nanoID())
		p.Title = title
		p.SourceURL = "https://shop.example/products/" + p.SourceID
		if i%2 == 1 {
			p.Category = "Crime & Thriller"
		}
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("upsert %s: %v", title, err)
		}
	}

	total, err := s.CountProducts(ctx, ProductFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}

	seen := map[string]bool{}
	for offset := 0; offset < total; offset += 2 {
		page, err := s.ListProducts(ctx, ProductFilter{}, 2, offset)
		if err != nil {
			t.Fatalf("list offset %d: %v", offset, err)
		}
		for _, p := range page {
			if seen[p.ID] {
				t.Errorf("product %s appeared on two pages", p.ID)
			}
			seen[p.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("pages covered %d products, want 5", len(seen))
	}
}

func TestListProductsFilter(t *testing.T) {
	// WHAT: Search matches titles case-insensitively; category filters
	// exactly, and "All" means no filter.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	for _, tc := range []struct{ title, category string }{
		{"Dune", "Fiction"},
		{"Dune Messiah", "Fiction"},
		{"Gorky Park", "Crime & Thriller"},
	} {
		p := testProduct(nanoID())
		p.Title = tc.title
		p.Category = tc.category
		p.SourceURL = "https://shop.example/products/" + p.SourceID
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListProducts(ctx, ProductFilter{Search: "dune"}, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("search dune = %d rows, want 2", len(got))
	}

	got, err = s.ListProducts(ctx, ProductFilter{Category: "Crime & Thriller"}, 10, 0)
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("category filter = %d rows, want 1", len(got))
	}

	n, err := s.CountProducts(ctx, ProductFilter{Category: "All"})
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if n != 3 {
		t.Errorf("category All = %d rows, want 3", n)
	}
}

func TestRelatedProducts(t *testing.T) {
	// WHAT: Related lookup returns same-category products, never the
	// product itself, capped at the limit.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	var anchor *Product
	for i := 0; i < 6; i++ {
		p := testProduct(nanoID())
		p.SourceURL = "https://shop.example/products/" + p.SourceID
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
		if anchor == nil {
			anchor = p
		}
	}

	related, err := s.RelatedProducts(ctx, anchor.Category, anchor.ID, 4)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 4 {
		t.Errorf("len = %d, want 4", len(related))
	}
	for _, r := range related {
		if r.ID == anchor.ID {
			t.Error("related includes the anchor product")
		}
	}
}

func TestJobTransitions(t *testing.T) {
	// WHAT: Jobs move pending → processing → completed, each guarded
	// transition firing exactly once; finished_at is set only by the
	// terminal transition.
	// WHY: Double-completion or resurrecting a terminal job corrupts
	// the job history the status endpoint serves.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	j := &ScrapeJob{ID: idgen.New(), TargetURL: "https://shop.example/collections/fiction", TargetType: "category"}
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != JobPending || got.FinishedAt != nil {
		t.Fatalf("fresh job: status=%s finished=%v", got.Status, got.FinishedAt)
	}

	if ok, err := s.MarkJobProcessing(ctx, j.ID); err != nil || !ok {
		t.Fatalf("mark processing: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.MarkJobProcessing(ctx, j.ID); ok {
		t.Error("second mark processing succeeded")
	}

	if ok, err := s.MarkJobCompleted(ctx, j.ID); err != nil || !ok {
		t.Fatalf("mark completed: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.MarkJobFailed(ctx, j.ID, "late"); ok {
		t.Error("failed a completed job")
	}

	got, _ = s.GetJob(ctx, j.ID)
	if got.Status != JobCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set on completion")
	}
	if !got.Terminal() {
		t.Error("completed job not terminal")
	}
}

func TestMarkJobFailedRecordsReason(t *testing.T) {
	// WHAT: A failed job carries the failure reason and a finish time.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	j := &ScrapeJob{ID: idgen.New(), TargetURL: "https://shop.example/x", TargetType: "category"}
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	s.MarkJobProcessing(ctx, j.ID)
	if ok, err := s.MarkJobFailed(ctx, j.ID, "browser unavailable"); err != nil || !ok {
		t.Fatalf("mark failed: ok=%v err=%v", ok, err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != JobFailed || got.ErrorLog != "browser unavailable" || got.FinishedAt == nil {
		t.Errorf("got status=%s log=%q finished=%v", got.Status, got.ErrorLog, got.FinishedAt)
	}
}

func TestSweepStaleJobs(t *testing.T) {
	// WHAT: The sweep fails processing jobs older than the cutoff and
	// leaves fresh ones alone.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	now := time.Now().UnixMilli()
	old := &ScrapeJob{ID: idgen.New(), TargetURL: "https://shop.example/a", TargetType: "category", StartedAt: now - 3600_000}
	fresh := &ScrapeJob{ID: idgen.New(), TargetURL: "https://shop.example/b", TargetType: "category", StartedAt: now}
	for _, j := range []*ScrapeJob{old, fresh} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
		if _, err := s.MarkJobProcessing(ctx, j.ID); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.SweepStaleJobs(ctx, now-1800_000)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d jobs, want 1", n)
	}

	gotOld, _ := s.GetJob(ctx, old.ID)
	gotFresh, _ := s.GetJob(ctx, fresh.ID)
	if gotOld.Status != JobFailed {
		t.Errorf("stale job status = %s, want failed", gotOld.Status)
	}
	if gotFresh.Status != JobProcessing {
		t.Errorf("fresh job status = %s, want processing", gotFresh.Status)
	}
}

func TestInsertViewDebounced(t *testing.T) {
	// WHAT: A second view of the same (session, product) within the
	// window is suppressed; outside the window, or for a different
	// session, it is recorded.
	// WHY: Page refreshes must not flood the history list.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	p := testProduct("111111111")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	const window = int64(5 * 60 * 1000)
	base := time.Now().UnixMilli()

	view := func(session string, at int64) (bool, error) {
		return s.InsertViewDebounced(ctx, &ViewHistory{
			ID: idgen.New(), SessionID: session, ProductID: p.ID, ViewedAt: at,
		}, window)
	}

	if ok, err := view("sess-a", base); err != nil || !ok {
		t.Fatalf("first view: ok=%v err=%v", ok, err)
	}
	if ok, err := view("sess-a", base+60_000); err != nil || ok {
		t.Fatalf("view inside window recorded: ok=%v err=%v", ok, err)
	}
	if ok, err := view("sess-b", base+60_000); err != nil || !ok {
		t.Fatalf("other session suppressed: ok=%v err=%v", ok, err)
	}
	if ok, err := view("sess-a", base+window); err != nil || !ok {
		t.Fatalf("view past window suppressed: ok=%v err=%v", ok, err)
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM view_history WHERE session_id = 'sess-a'`).Scan(&count)
	if count != 2 {
		t.Errorf("sess-a rows = %d, want 2", count)
	}
}

func TestRecentViews(t *testing.T) {
	// WHAT: Recent views come back newest first, joined with products,
	// capped at the limit, scoped to the session.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		p := testProduct(nanoID())
		p.SourceURL = "https://shop.example/products/" + p.SourceID
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}

	base := time.Now().UnixMilli()
	for i, id := range ids {
		_, err := s.InsertViewDebounced(ctx, &ViewHistory{
			ID: idgen.New(), SessionID: "sess-a", ProductID: id, ViewedAt: base + int64(i)*1000,
		}, 0)
		if err != nil {
			t.Fatal(err)
		}
	}

	views, err := s.RecentViews(ctx, "sess-a", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len = %d, want 2", len(views))
	}
	if views[0].ProductID != ids[2] || views[1].ProductID != ids[1] {
		t.Errorf("order wrong: got %s, %s", views[0].ProductID, views[1].ProductID)
	}
	if views[0].Product.Title == "" {
		t.Error("product not joined")
	}

	none, err := s.RecentViews(ctx, "sess-z", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("foreign session saw %d views", len(none))
	}
}

func TestEnsureTaxonomy(t *testing.T) {
	// WHAT: Ensure calls are idempotent on slug and keep the original
	// row id; categories attach to their navigation in listings.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	navID, err := s.EnsureNavigation(ctx, &Navigation{ID: idgen.New(), Title: "Books", Slug: "books"})
	if err != nil {
		t.Fatalf("ensure navigation: %v", err)
	}
	navID2, err := s.EnsureNavigation(ctx, &Navigation{ID: idgen.New(), Title: "Books!", Slug: "books"})
	if err != nil {
		t.Fatalf("re-ensure navigation: %v", err)
	}
	if navID != navID2 {
		t.Errorf("slug conflict minted a new id: %s != %s", navID, navID2)
	}

	if _, err := s.EnsureCategory(ctx, &Category{ID: idgen.New(), NavigationID: navID, Title: "Fiction", Slug: "fiction-books"}); err != nil {
		t.Fatalf("ensure category: %v", err)
	}

	navs, err := s.ListNavigations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(navs) != 1 {
		t.Fatalf("navs = %d, want 1", len(navs))
	}
	if navs[0].Title != "Books!" {
		t.Errorf("title not refreshed: %q", navs[0].Title)
	}
	if len(navs[0].Categories) != 1 || navs[0].Categories[0].Slug != "fiction-books" {
		t.Errorf("categories not attached: %+v", navs[0].Categories)
	}
}
