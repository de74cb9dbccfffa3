package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shelfmark/shelfmark/dbopen"
)

// UpsertProduct inserts a product or, when the source_id already exists,
// overwrites the shallow scraped fields and refreshes last_scraped_at.
// Description, author, and rating are deep fields: they survive listing
// re-scrapes untouched. The upsert is a single statement, so concurrent
// writers to the same key serialise at the row level (last write wins).
func (s *Store) UpsertProduct(ctx context.Context, p *Product) error {
	if p.LastScrapedAt == 0 {
		p.LastScrapedAt = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO products (id, title, author, description, price, image, rating,
		category, source_id, source_url, last_scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			title           = excluded.title,
			price           = excluded.price,
			image           = excluded.image,
			category        = excluded.category,
			source_url      = excluded.source_url,
			last_scraped_at = excluded.last_scraped_at`,
		p.ID, p.Title, p.Author, p.Description, p.Price, p.Image, p.Rating,
		p.Category, p.SourceID, p.SourceURL, p.LastScrapedAt,
	)
	return err
}

// PatchDescriptionByURL merges a detail-page description into the product
// matching source_url exactly. Returns false when no row matched — the
// listing that would create it may not have run yet.
func (s *Store) PatchDescriptionByURL(ctx context.Context, sourceURL, description string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE products SET description = ?, last_scraped_at = ? WHERE source_url = ?`,
		description, time.Now().UnixMilli(), sourceURL)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetProduct retrieves a product by internal id.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, title, author, description, price, image, rating,
		category, source_id, source_url, last_scraped_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

// GetProductBySourceID retrieves a product by its natural key.
func (s *Store) GetProductBySourceID(ctx context.Context, sourceID string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, title, author, description, price, image, rating,
		category, source_id, source_url, last_scraped_at
		FROM products WHERE source_id = ?`, sourceID)
	return scanProduct(row)
}

// ProductFilter is the shared predicate for ListProducts and CountProducts.
// Category "All" or "" means no category filter; Search matches the title
// case-insensitively as a substring.
type ProductFilter struct {
	Search   string
	Category string
}

func (f *ProductFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Category != "" && f.Category != "All" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Search != "" {
		conds = append(conds, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListProducts returns a page of products under the filter. Ordering is
// by id: UUIDv7 keys make that creation-time order and, more importantly,
// a stable tie-break so page boundaries never shift between calls.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter, limit, offset int) ([]*Product, error) {
	where, args := f.where()
	args = append(args, limit, offset)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, author, description, price, image, rating,
		category, source_id, source_url, last_scraped_at
		FROM products`+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// CountProducts counts rows under the same predicate as ListProducts.
func (s *Store) CountProducts(ctx context.Context, f ProductFilter) (int, error) {
	where, args := f.where()
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&count)
	return count, err
}

// RelatedProducts returns up to limit products sharing a category,
// excluding the product itself. Ordered by id for per-call determinism.
func (s *Store) RelatedProducts(ctx context.Context, category, excludeID string, limit int) ([]*Product, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, author, description, price, image, rating,
		category, source_id, source_url, last_scraped_at
		FROM products WHERE category = ? AND id != ? ORDER BY id LIMIT ?`,
		category, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// DistinctCategories returns the distinct non-empty product categories.
func (s *Store) DistinctCategories(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT category FROM products WHERE category != '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Title, &p.Author, &p.Description, &p.Price, &p.Image, &p.Rating,
		&p.Category, &p.SourceID, &p.SourceURL, &p.LastScrapedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

func collectProducts(rows *sql.Rows) ([]*Product, error) {
	var products []*Product
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID, &p.Title, &p.Author, &p.Description, &p.Price, &p.Image, &p.Rating,
			&p.Category, &p.SourceID, &p.SourceURL, &p.LastScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}
