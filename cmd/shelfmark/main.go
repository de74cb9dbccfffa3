// Entry point for the shelfmark HTTP service — chi router, sqlite
// catalog, headless-browser crawl engine, optional redis cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/shelfmark/shelfmark/browse"
	"github.com/shelfmark/shelfmark/cache"
	"github.com/shelfmark/shelfmark/catalog"
	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/crawl"
	"github.com/shelfmark/shelfmark/dbopen"
	"github.com/shelfmark/shelfmark/extract"
	"github.com/shelfmark/shelfmark/fetchstatic"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", env("CONFIG", "shelfmark.yaml"), "path to YAML config")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Catalog DB.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		slog.Error("catalog db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Query cache — redis when configured, otherwise a no-op.
	var queryCache cache.Cache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, "shelfmark")
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rc.Close()
			queryCache = rc
		}
	}

	// Browser capability. A failed start is not fatal: the service
	// still serves reads, and scrape jobs fail with a clear reason.
	mgr := browse.NewManager(browse.Config{
		RemoteURL:        cfg.Browser.RemoteURL,
		ResourceBlocking: cfg.Browser.BlockResources,
		Logger:           logger,
	})
	if err := mgr.Start(ctx); err != nil {
		slog.Warn("browser unavailable, scraping degraded", "error", err)
	}
	defer mgr.Close()

	var fetcher crawl.Fetcher = browse.NewFetcher(mgr)
	if cfg.Browser.StaticFirst {
		fetcher = fetchstatic.New(
			fetchstatic.WithEscalation(fetcher),
			fetchstatic.WithLogger(logger),
		)
	}

	strategy := extract.New(extract.DefaultSelectors())
	engine := crawl.New(fetcher, strategy, crawl.Options{
		Workers:     cfg.Crawl.Workers,
		MaxAttempts: cfg.Crawl.MaxAttempts,
	}, logger)

	svc, err := catalog.New(catalog.Config{
		Store:    store.NewStore(db),
		Runner:   engine,
		Fetcher:  fetcher,
		Strategy: strategy,
		Cache:    queryCache,
		Logger:   logger,
		DefaultTarget: catalog.Target{
			URL:      cfg.Scrape.DefaultURL,
			Category: cfg.Scrape.DefaultCategory,
		},
		NavigationURL: cfg.Scrape.NavigationURL,
		JobTimeout:    cfg.Crawl.JobTimeout,
	})
	if err != nil {
		slog.Error("catalog service", "error", err)
		os.Exit(1)
	}

	if cfg.Crawl.SweepInterval > 0 {
		svc.StartSweeper(ctx, cfg.Crawl.SweepInterval, cfg.Crawl.SweepMaxAge)
	}

	r := newRouter(svc)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	svc.Close()
	slog.Info("server stopped")
}

func newRouter(svc *catalog.Service) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	scrapeHandler := func(w http.ResponseWriter, r *http.Request) {
		var target catalog.Target
		if r.Body != nil {
			// An empty or absent body means the default target.
			_ = json.NewDecoder(r.Body).Decode(&target)
		}
		job, err := svc.RequestScrape(r.Context(), target)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 202, job)
	}

	r.Route("/api/products", func(r chi.Router) {
		r.Post("/scrape", scrapeHandler)

		r.Get("/history/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
			views, err := svc.GetHistory(r.Context(), chi.URLParam(r, "sessionId"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, views)
		})

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			page, err := svc.FindAll(r.Context(), catalog.Query{
				Page:     queryInt(r, "page", 0),
				Limit:    queryInt(r, "limit", 0),
				Search:   r.URL.Query().Get("search"),
				Category: r.URL.Query().Get("category"),
			})
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, page)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			p, err := svc.FindOne(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			// A product page visit counts as a view when the caller
			// identifies its session.
			if sid := sessionID(r); sid != "" {
				if err := svc.LogView(r.Context(), sid, p.ID); err != nil {
					slog.Warn("view not recorded", "product", p.ID, "error", err)
				}
			}
			writeJSON(w, 200, p)
		})

		r.Get("/{id}/related", func(w http.ResponseWriter, r *http.Request) {
			related, err := svc.FindRelated(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, related)
		})

		r.Post("/{id}/view", func(w http.ResponseWriter, r *http.Request) {
			sid := sessionID(r)
			if sid == "" {
				writeJSON(w, 400, map[string]string{"error": "session id required"})
				return
			}
			if err := svc.LogView(r.Context(), sid, chi.URLParam(r, "id")); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 204, nil)
		})
	})

	r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.GetHistory(r.Context(), sessionID(r))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, views)
	})

	r.Route("/api/scrape-jobs", func(r chi.Router) {
		r.Post("/", scrapeHandler)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			jobs, err := svc.Jobs(r.Context(), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, jobs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			job, err := svc.JobStatus(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, job)
		})
	})

	r.Route("/api/navigation", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			navs, err := svc.Navigations(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, navs)
		})

		r.Post("/scrape", func(w http.ResponseWriter, r *http.Request) {
			job, err := svc.RequestScrape(r.Context(), catalog.Target{
				URL:  r.URL.Query().Get("url"),
				Type: catalog.TargetNavigation,
			})
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 202, job)
		})

		// Slugs are URL paths, so they ride in the query string.
		r.Get("/category", func(w http.ResponseWriter, r *http.Request) {
			c, err := svc.CategoryBySlug(r.Context(), r.URL.Query().Get("slug"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, c)
		})
	})

	r.Get("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		cats, err := svc.Categories(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, cats)
	})

	return r
}

// sessionID pulls the caller's session identity from the header or,
// failing that, the query string.
func sessionID(r *http.Request) string {
	if v := r.Header.Get("X-Session-Id"); v != "" {
		return v
	}
	return r.URL.Query().Get("session_id")
}

func statusFor(err error) int {
	if errors.Is(err, catalog.ErrNotFound) {
		return 404
	}
	return 500
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
