package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/idgen"
)

// RefreshNavigation scrapes a page's navigation menu and upserts the
// headings and their categories. Returns how many headings were stored.
func (s *Service) RefreshNavigation(ctx context.Context, pageURL string) (int, error) {
	if s.cfg.Fetcher == nil {
		return 0, errors.New("catalog: no fetcher configured")
	}

	doc, err := s.cfg.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("catalog: fetch navigation: %w", err)
	}
	defer doc.Close()

	html, err := doc.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: read navigation page: %w", err)
	}
	menus, err := s.cfg.Strategy.Navigation(html)
	if err != nil {
		return 0, fmt.Errorf("catalog: parse navigation: %w", err)
	}

	for _, menu := range menus {
		navID, err := s.store.EnsureNavigation(ctx, &store.Navigation{
			ID:    idgen.New(),
			Title: menu.Title,
			Slug:  menu.Slug,
		})
		if err != nil {
			return 0, err
		}
		for _, entry := range menu.Categories {
			_, err := s.store.EnsureCategory(ctx, &store.Category{
				ID:           idgen.New(),
				NavigationID: navID,
				Title:        entry.Title,
				Slug:         entry.Slug,
			})
			if err != nil {
				return 0, err
			}
		}
	}
	s.log.Info("catalog: navigation refreshed", "url", pageURL, "headings", len(menus))
	return len(menus), nil
}

// CategoryBySlug returns the taxonomy category stored under slug, or
// ErrNotFound when no navigation scrape has recorded it.
func (s *Service) CategoryBySlug(ctx context.Context, slug string) (*store.Category, error) {
	c, err := s.store.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Navigations lists all stored navigation headings with categories.
func (s *Service) Navigations(ctx context.Context) ([]*store.Navigation, error) {
	navs, err := s.store.ListNavigations(ctx)
	if err != nil {
		return nil, err
	}
	if navs == nil {
		navs = []*store.Navigation{}
	}
	return navs, nil
}
