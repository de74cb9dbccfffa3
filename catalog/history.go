package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shelfmark/shelfmark/internal/store"
)

// LogView records that a session viewed a product. Views without a
// usable session id are dropped silently; repeated views of the same
// product inside the debounce window collapse into one row.
func (s *Service) LogView(ctx context.Context, sessionID, productID string) error {
	if sessionID == "" || sessionID == "null" || sessionID == "undefined" {
		return nil
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}

	inserted, err := s.store.InsertViewDebounced(ctx, &store.ViewHistory{
		ID:        newViewID(),
		SessionID: sessionID,
		ProductID: productID,
		ViewedAt:  time.Now().UnixMilli(),
	}, s.cfg.DebounceWindow.Milliseconds())
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("catalog: view debounced", "session", sessionID, "product", productID)
	}
	return nil
}

// GetHistory returns a session's recent views, newest first. Product
// images are healed at read time: rows written before the fallback
// policy existed may carry empty or junk image values.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]*store.ViewWithProduct, error) {
	if sessionID == "" || sessionID == "null" || sessionID == "undefined" {
		return []*store.ViewWithProduct{}, nil
	}
	views, err := s.store.RecentViews(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if views == nil {
		return []*store.ViewWithProduct{}, nil
	}
	for _, v := range views {
		if v.Product.Image == "" || strings.Contains(v.Product.Image, "undefined") {
			v.Product.Image = s.cfg.FallbackImage
		}
	}
	return views, nil
}
