// Package cache is a small read-through cache for query results.
//
// Keys live under a namespace whose version can be bumped to drop every
// cached entry at once. That fits the catalog's write pattern: a scrape
// job rewrites an unknown set of products, so after it completes the
// whole namespace is invalidated rather than chasing individual keys.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized query results. Get returns (nil, nil) on a
// miss; cache failures are soft and callers fall through to the source.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate drops every entry in the namespace.
	Invalidate(ctx context.Context) error
}

// Noop satisfies Cache and caches nothing. Used when no redis address
// is configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (Noop) Invalidate(ctx context.Context) error { return nil }
