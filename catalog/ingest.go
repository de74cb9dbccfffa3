package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/extract"
	"github.com/shelfmark/shelfmark/idgen"
)

// Writer persists crawl output. Records upsert on the external source
// id; patches merge by source URL and quietly no-op when the product
// has not been listed yet.
type Writer struct {
	store         *store.Store
	fallbackImage string
	log           *slog.Logger

	records atomic.Int64
	patches atomic.Int64
}

// NewWriter builds a Writer. A nil logger falls back to slog.Default.
func NewWriter(st *store.Store, fallbackImage string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: st, fallbackImage: fallbackImage, log: logger}
}

// Record upserts one listing record. The fallback image is substituted
// at write time so readers never see an empty image field.
func (w *Writer) Record(ctx context.Context, rec *extract.RawRecord) error {
	image := rec.Image
	if image == "" {
		image = w.fallbackImage
	}
	p := &store.Product{
		ID:        idgen.New(),
		Title:     rec.Title,
		Price:     rec.Price,
		Image:     image,
		Category:  rec.Category,
		SourceID:  rec.SourceID,
		SourceURL: rec.SourceURL,
	}
	if err := w.store.UpsertProduct(ctx, p); err != nil {
		return err
	}
	w.records.Add(1)
	return nil
}

// Patch merges a detail-page description into an existing product.
func (w *Writer) Patch(ctx context.Context, patch *extract.RawPatch) error {
	ok, err := w.store.PatchDescriptionByURL(ctx, patch.SourceURL, patch.Description)
	if err != nil {
		return err
	}
	if !ok {
		w.log.Debug("ingest: detail page has no listed product", "url", patch.SourceURL)
		return nil
	}
	w.patches.Add(1)
	return nil
}

// Records reports how many listing records were written.
func (w *Writer) Records() int64 { return w.records.Load() }

// Patches reports how many detail patches matched a product.
func (w *Writer) Patches() int64 { return w.patches.Load() }
