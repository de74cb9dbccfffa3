package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsureNavigation inserts a navigation heading or refreshes its title
// and scrape time when the slug already exists. Returns the row's id.
func (s *Store) EnsureNavigation(ctx context.Context, n *Navigation) (string, error) {
	if n.LastScrapedAt == 0 {
		n.LastScrapedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO navigations (id, title, slug, last_scraped_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title           = excluded.title,
			last_scraped_at = excluded.last_scraped_at`,
		n.ID, n.Title, n.Slug, n.LastScrapedAt)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `SELECT id FROM navigations WHERE slug = ?`, n.Slug).Scan(&id)
	return id, err
}

// EnsureCategory inserts a category under a navigation or refreshes it
// when the slug already exists. Returns the row's id.
func (s *Store) EnsureCategory(ctx context.Context, c *Category) (string, error) {
	if c.LastScrapedAt == 0 {
		c.LastScrapedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO categories (id, navigation_id, title, slug, last_scraped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			navigation_id   = excluded.navigation_id,
			title           = excluded.title,
			last_scraped_at = excluded.last_scraped_at`,
		c.ID, c.NavigationID, c.Title, c.Slug, c.LastScrapedAt)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `SELECT id FROM categories WHERE slug = ?`, c.Slug).Scan(&id)
	return id, err
}

// ListNavigations returns all navigation headings with their categories,
// ordered by title.
func (s *Store) ListNavigations(ctx context.Context) ([]*Navigation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, slug, last_scraped_at FROM navigations ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var navs []*Navigation
	byID := map[string]*Navigation{}
	for rows.Next() {
		var n Navigation
		if err := rows.Scan(&n.ID, &n.Title, &n.Slug, &n.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scan navigation: %w", err)
		}
		navs = append(navs, &n)
		byID[n.ID] = &n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.DB.QueryContext(ctx,
		`SELECT id, navigation_id, title, slug, last_scraped_at FROM categories ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c Category
		if err := crows.Scan(&c.ID, &c.NavigationID, &c.Title, &c.Slug, &c.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if n, ok := byID[c.NavigationID]; ok {
			n.Categories = append(n.Categories, c)
		}
	}
	return navs, crows.Err()
}

// GetCategoryBySlug retrieves a category by slug.
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var c Category
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, navigation_id, title, slug, last_scraped_at FROM categories WHERE slug = ?`,
		slug).Scan(&c.ID, &c.NavigationID, &c.Title, &c.Slug, &c.LastScrapedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}
