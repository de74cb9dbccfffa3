package store

// Schema is the complete catalog schema, applied at open time via
// dbopen.WithSchema.
const Schema = `
-- Products harvested from the source site
CREATE TABLE IF NOT EXISTS products (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL,
    author          TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    price           TEXT NOT NULL DEFAULT '',
    image           TEXT NOT NULL DEFAULT '',
    rating          REAL,
    category        TEXT NOT NULL DEFAULT '',
    source_id       TEXT NOT NULL UNIQUE,
    source_url      TEXT NOT NULL DEFAULT '',
    last_scraped_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_source_url ON products(source_url);

-- Background crawl jobs
CREATE TABLE IF NOT EXISTS scrape_jobs (
    id          TEXT PRIMARY KEY,
    target_url  TEXT NOT NULL,
    target_type TEXT NOT NULL DEFAULT 'category',
    status      TEXT NOT NULL DEFAULT 'pending',
    error_log   TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status, started_at);

-- Per-session product views
CREATE TABLE IF NOT EXISTS view_history (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    viewed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_view_history_session ON view_history(session_id, viewed_at DESC);
CREATE INDEX IF NOT EXISTS idx_view_history_pair ON view_history(session_id, product_id, viewed_at DESC);

-- Navigation taxonomy
CREATE TABLE IF NOT EXISTS navigations (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL,
    slug            TEXT NOT NULL UNIQUE,
    last_scraped_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    id              TEXT PRIMARY KEY,
    navigation_id   TEXT NOT NULL REFERENCES navigations(id) ON DELETE CASCADE,
    title           TEXT NOT NULL,
    slug            TEXT NOT NULL UNIQUE,
    last_scraped_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_categories_navigation ON categories(navigation_id);
`
