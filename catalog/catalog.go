// Package catalog is the service layer over the product store: queries,
// view history, navigation taxonomy, and background scrape jobs.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/crawl"
	"github.com/shelfmark/shelfmark/extract"
	"github.com/shelfmark/shelfmark/idgen"
)

// ErrNotFound is returned when a lookup names an entity that does not
// exist.
var ErrNotFound = errors.New("catalog: not found")

// Jobs and views carry type-scoped ids so a bare id in a log line is
// self-describing. Products keep plain UUIDv7: their ids double as the
// pagination tie-break.
var (
	newJobID  = idgen.Prefixed("job_", idgen.Default)
	newViewID = idgen.Prefixed("view_", idgen.Default)
)

// Runner executes a crawl from seed URLs into a sink. *crawl.Engine is
// the production implementation.
type Runner interface {
	Run(ctx context.Context, seeds []string, ectx extract.Context, sink crawl.Sink) error
}

// Target types: a category crawl harvests products, a navigation scrape
// rebuilds the menu taxonomy.
const (
	TargetCategory   = "category"
	TargetNavigation = "navigation"
)

// Target names what a scrape job should harvest.
type Target struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Type     string `json:"type"`
}

// Service exposes the catalog operations the HTTP layer serves.
type Service struct {
	cfg   Config
	store *store.Store
	log   *slog.Logger

	// jobs tracks in-flight scrape goroutines so Close can drain them.
	jobs sync.WaitGroup
}

// New validates the config and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: config needs a store")
	}
	cfg.defaults()
	return &Service{cfg: cfg, store: cfg.Store, log: cfg.Logger}, nil
}

// RequestScrape records a job and starts the crawl in the background.
// The returned job is already persisted in the pending state; callers
// poll JobStatus for progress. The crawl outlives the request context.
func (s *Service) RequestScrape(ctx context.Context, target Target) (*store.ScrapeJob, error) {
	switch target.Type {
	case "":
		target.Type = TargetCategory
		fallthrough
	case TargetCategory:
		if s.cfg.Runner == nil {
			return nil, errors.New("catalog: no crawl runner configured")
		}
	case TargetNavigation:
		if s.cfg.Fetcher == nil {
			return nil, errors.New("catalog: no fetcher configured")
		}
	default:
		return nil, fmt.Errorf("catalog: unknown target type %q", target.Type)
	}
	if target.URL == "" {
		if target.Type == TargetNavigation {
			target.URL = s.cfg.NavigationURL
		} else {
			target.Category = s.cfg.DefaultTarget.Category
			target.URL = s.cfg.DefaultTarget.URL
		}
	}

	job := &store.ScrapeJob{
		ID:         newJobID(),
		TargetURL:  target.URL,
		TargetType: target.Type,
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.JobTimeout)
		s.jobs.Add(1)
		go func() {
			defer cancel()
			defer s.jobs.Done()
			s.runJob(runCtx, job.ID, target)
		}()
		return job, nil
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.runJob(runCtx, job.ID, target)
	}()
	return job, nil
}

func (s *Service) runJob(ctx context.Context, jobID string, target Target) {
	ok, err := s.store.MarkJobProcessing(ctx, jobID)
	if err != nil || !ok {
		s.log.Error("catalog: job could not start", "job", jobID, "claimed", ok, "error", err)
		return
	}
	s.log.Info("catalog: scrape started", "job", jobID, "type", target.Type, "url", target.URL)

	var runErr error
	var records, patches int64
	if target.Type == TargetNavigation {
		_, runErr = s.RefreshNavigation(ctx, target.URL)
	} else {
		sink := NewWriter(s.store, s.cfg.FallbackImage, s.log)
		ectx := extract.Context{Category: target.Category, FallbackImage: s.cfg.FallbackImage}
		runErr = s.cfg.Runner.Run(ctx, []string{target.URL}, ectx, sink)
		records, patches = sink.Records(), sink.Patches()
	}

	// Finalization must land even when the run context has expired,
	// or the job would sit in processing forever.
	finCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if ok, err := s.store.MarkJobFailed(finCtx, jobID, runErr.Error()); err != nil || !ok {
			s.log.Error("catalog: job state write failed", "job", jobID, "written", ok, "error", err)
		}
		s.log.Warn("catalog: scrape failed", "job", jobID, "error", runErr)
	} else {
		if ok, err := s.store.MarkJobCompleted(finCtx, jobID); err != nil || !ok {
			s.log.Error("catalog: job state write failed", "job", jobID, "written", ok, "error", err)
		}
		s.log.Info("catalog: scrape completed", "job", jobID, "records", records, "patches", patches)
	}

	// Query results may now be stale regardless of outcome.
	if err := s.cfg.Cache.Invalidate(finCtx); err != nil {
		s.log.Warn("catalog: cache invalidation failed", "error", err)
	}
}

// JobStatus returns a job by id.
func (s *Service) JobStatus(ctx context.Context, id string) (*store.ScrapeJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

// Jobs lists recent jobs, newest first.
func (s *Service) Jobs(ctx context.Context, limit int) ([]*store.ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListJobs(ctx, limit)
}

// StartSweeper periodically fails processing jobs older than maxAge.
// It returns immediately; the sweep loop stops when ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-maxAge).UnixMilli()
				n, err := s.store.SweepStaleJobs(ctx, cutoff)
				if err != nil {
					s.log.Warn("catalog: stale job sweep failed", "error", err)
				} else if n > 0 {
					s.log.Info("catalog: swept stale jobs", "count", n)
				}
			}
		}
	}()
}

// Close waits for in-flight scrape jobs to finish.
func (s *Service) Close() {
	s.jobs.Wait()
}
