package store

// Job status values. Transitions are one-directional:
// pending → processing → {completed, failed}.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Product is one catalog entry. SourceID is the external natural key;
// repeated scrapes of the same SourceID mutate the row in place.
type Product struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author,omitempty"`
	Description   string   `json:"description,omitempty"`
	Price         string   `json:"price"`
	Image         string   `json:"image"`
	Rating        *float64 `json:"rating,omitempty"`
	Category      string   `json:"category,omitempty"`
	SourceID      string   `json:"source_id"`
	SourceURL     string   `json:"source_url"`
	LastScrapedAt int64    `json:"last_scraped_at"`
}

// ScrapeJob is one unit of background crawl work.
type ScrapeJob struct {
	ID         string `json:"id"`
	TargetURL  string `json:"target_url"`
	TargetType string `json:"target_type"`
	Status     string `json:"status"`
	ErrorLog   string `json:"error_log,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

// Terminal reports whether the job can no longer transition.
func (j *ScrapeJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// ViewHistory is one session's sighting of a product.
type ViewHistory struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	ViewedAt  int64  `json:"viewed_at"`
}

// ViewWithProduct is a history row joined with its product.
type ViewWithProduct struct {
	ViewHistory
	Product Product `json:"product"`
}

// Navigation is a top-level menu heading.
type Navigation struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	LastScrapedAt int64      `json:"last_scraped_at"`
	Categories    []Category `json:"categories,omitempty"`
}

// Category is one entry under a navigation heading.
type Category struct {
	ID            string `json:"id"`
	NavigationID  string `json:"navigation_id"`
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	LastScrapedAt int64  `json:"last_scraped_at"`
}
