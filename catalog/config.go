package catalog

import (
	"log/slog"
	"time"

	"github.com/shelfmark/shelfmark/cache"
	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/crawl"
	"github.com/shelfmark/shelfmark/extract"
)

// DefaultFallbackImage replaces missing or broken product images.
const DefaultFallbackImage = "http://www.worldofbooks.com/cdn/shop/files/0008532818.jpg?v=1750907970"

// Config wires a Service. Store is required; Runner and Fetcher may be
// nil for read-only deployments, which disables scraping.
type Config struct {
	Store    *store.Store
	Runner   Runner
	Fetcher  crawl.Fetcher
	Strategy *extract.Strategy
	Cache    cache.Cache
	Logger   *slog.Logger

	// DefaultTarget is scraped when a request names no URL.
	DefaultTarget Target

	// NavigationURL is the page whose menu the taxonomy scrape reads.
	NavigationURL string

	// FallbackImage substitutes for products scraped without one.
	FallbackImage string

	// DebounceWindow suppresses repeat view-history rows for the same
	// session and product.
	DebounceWindow time.Duration

	// RelatedLimit caps FindRelated results.
	RelatedLimit int

	// HistoryLimit caps GetHistory results.
	HistoryLimit int

	// DefaultLimit is the FindAll page size when the caller gives none.
	DefaultLimit int

	// CacheTTL bounds staleness of cached query pages.
	CacheTTL time.Duration

	// JobTimeout bounds a single scrape job. Zero means no limit.
	JobTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Cache == nil {
		c.Cache = cache.Noop{}
	}
	if c.Strategy == nil {
		c.Strategy = extract.New(extract.DefaultSelectors())
	}
	if c.DefaultTarget.URL == "" {
		c.DefaultTarget = Target{
			URL:      "https://www.worldofbooks.com/en-gb/collections/fiction-books",
			Category: "Fiction",
		}
	}
	if c.NavigationURL == "" {
		c.NavigationURL = "https://www.worldofbooks.com/en-gb"
	}
	if c.FallbackImage == "" {
		c.FallbackImage = DefaultFallbackImage
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 5 * time.Minute
	}
	if c.RelatedLimit <= 0 {
		c.RelatedLimit = 4
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 12
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Minute
	}
}
