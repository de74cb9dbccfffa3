package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shelfmark/shelfmark/internal/store"
)

// Query selects and pages the catalog. Zero values mean defaults:
// page 1, the configured page size, no search, all categories.
type Query struct {
	Page     int
	Limit    int
	Search   string
	Category string
}

// Page is one page of catalog results.
type Page struct {
	Data     []*store.Product `json:"data"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	LastPage int              `json:"last_page"`
}

// FindAll returns a page of products matching the query. Results are
// served from cache when possible; cache failures degrade to a direct
// read.
func (s *Service) FindAll(ctx context.Context, q Query) (*Page, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = s.cfg.DefaultLimit
	}

	key := fmt.Sprintf("products:p%d:l%d:s%s:c%s", q.Page, q.Limit, q.Search, q.Category)
	if cached, err := s.cfg.Cache.Get(ctx, key); err != nil {
		s.log.Warn("catalog: cache read failed", "key", key, "error", err)
	} else if cached != nil {
		var page Page
		if err := json.Unmarshal(cached, &page); err == nil {
			return &page, nil
		}
	}

	filter := store.ProductFilter{Search: q.Search, Category: q.Category}
	total, err := s.store.CountProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("catalog: count products: %w", err)
	}
	products, err := s.store.ListProducts(ctx, filter, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	if products == nil {
		products = []*store.Product{}
	}

	// LastPage is ceil(total/limit); an empty result set has zero pages.
	page := &Page{
		Data:     products,
		Total:    total,
		Page:     q.Page,
		LastPage: (total + q.Limit - 1) / q.Limit,
	}

	if buf, err := json.Marshal(page); err == nil {
		if err := s.cfg.Cache.Set(ctx, key, buf, s.cfg.CacheTTL); err != nil {
			s.log.Warn("catalog: cache write failed", "key", key, "error", err)
		}
	}
	return page, nil
}

// FindOne returns a product by id or ErrNotFound.
func (s *Service) FindOne(ctx context.Context, id string) (*store.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// FindRelated returns up to the configured limit of products that share
// the given product's category, never including the product itself.
func (s *Service) FindRelated(ctx context.Context, id string) ([]*store.Product, error) {
	p, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	related, err := s.store.RelatedProducts(ctx, p.Category, p.ID, s.cfg.RelatedLimit)
	if err != nil {
		return nil, err
	}
	if related == nil {
		related = []*store.Product{}
	}
	return related, nil
}

// Categories returns the distinct categories present in the catalog.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	const key = "categories"
	if cached, err := s.cfg.Cache.Get(ctx, key); err == nil && cached != nil {
		var cats []string
		if err := json.Unmarshal(cached, &cats); err == nil {
			return cats, nil
		}
	}
	cats, err := s.store.DistinctCategories(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []string{}
	}
	if buf, err := json.Marshal(cats); err == nil {
		if err := s.cfg.Cache.Set(ctx, key, buf, s.cfg.CacheTTL); err != nil {
			s.log.Warn("catalog: cache write failed", "key", key, "error", err)
		}
	}
	return cats, nil
}
