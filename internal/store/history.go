package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shelfmark/shelfmark/dbopen"
)

// InsertViewDebounced records a view unless the same (session, product)
// pair was already recorded within the debounce window before viewedAt.
// The read-then-insert runs in one transaction; under sqlite's write
// serialisation two concurrent calls cannot both pass the window check.
// Returns true when a row was written.
func (s *Store) InsertViewDebounced(ctx context.Context, v *ViewHistory, windowMillis int64) (bool, error) {
	inserted := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var last int64
		err := tx.QueryRowContext(ctx,
			`SELECT viewed_at FROM view_history
			WHERE session_id = ? AND product_id = ?
			ORDER BY viewed_at DESC LIMIT 1`,
			v.SessionID, v.ProductID).Scan(&last)
		switch {
		case err == sql.ErrNoRows:
			// first view for this pair
		case err != nil:
			return err
		case v.ViewedAt-last < windowMillis:
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO view_history (id, session_id, product_id, viewed_at)
			VALUES (?, ?, ?, ?)`,
			v.ID, v.SessionID, v.ProductID, v.ViewedAt)
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// RecentViews returns a session's most recent views joined with their
// products, newest first. Views of since-deleted products fall out of
// the join via the FK cascade.
func (s *Store) RecentViews(ctx context.Context, sessionID string, limit int) ([]*ViewWithProduct, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT v.id, v.session_id, v.product_id, v.viewed_at,
		p.id, p.title, p.author, p.description, p.price, p.image, p.rating,
		p.category, p.source_id, p.source_url, p.last_scraped_at
		FROM view_history v
		JOIN products p ON p.id = v.product_id
		WHERE v.session_id = ?
		ORDER BY v.viewed_at DESC, v.id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*ViewWithProduct
	for rows.Next() {
		var v ViewWithProduct
		err := rows.Scan(
			&v.ID, &v.SessionID, &v.ProductID, &v.ViewedAt,
			&v.Product.ID, &v.Product.Title, &v.Product.Author, &v.Product.Description,
			&v.Product.Price, &v.Product.Image, &v.Product.Rating,
			&v.Product.Category, &v.Product.SourceID, &v.Product.SourceURL, &v.Product.LastScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}
