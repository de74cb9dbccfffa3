package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full shelfmark configuration. Values come from the
// YAML file, then environment variables override the common ones.
type Config struct {
	Listen    string `yaml:"listen"`
	DBPath    string `yaml:"db_path"`
	RedisAddr string `yaml:"redis_addr"`
	LogLevel  string `yaml:"log_level"`

	Browser BrowserConfig `yaml:"browser"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
}

// BrowserConfig configures the headless browser capability.
type BrowserConfig struct {
	// RemoteURL attaches to an existing devtools endpoint instead of
	// launching a local browser.
	RemoteURL string `yaml:"remote_url"`
	// StaticFirst tries a plain HTTP fetch before the browser.
	StaticFirst bool `yaml:"static_first"`
	// BlockResources lists resource types the browser never loads.
	BlockResources []string `yaml:"block_resources"`
}

// CrawlConfig tunes the crawl engine.
type CrawlConfig struct {
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	// SweepInterval enables the stale-job sweep when positive.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepMaxAge   time.Duration `yaml:"sweep_max_age"`
}

// ScrapeConfig names the default scrape target.
type ScrapeConfig struct {
	DefaultURL      string `yaml:"default_url"`
	DefaultCategory string `yaml:"default_category"`
	NavigationURL   string `yaml:"navigation_url"`
}

// DefaultConfig returns sane defaults for a single-node deployment.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		DBPath:   "db/shelfmark.db",
		LogLevel: "info",
		Browser: BrowserConfig{
			BlockResources: []string{"Image", "Font", "Media", "Stylesheet"},
		},
		Crawl: CrawlConfig{
			Workers:     5,
			MaxAttempts: 3,
			JobTimeout:  10 * time.Minute,
			SweepMaxAge: 30 * time.Minute,
		},
		Scrape: ScrapeConfig{
			DefaultURL:      "https://www.worldofbooks.com/en-gb/collections/fiction-books",
			DefaultCategory: "Fiction",
			NavigationURL:   "https://www.worldofbooks.com/en-gb",
		},
	}
}

// LoadConfig reads the YAML file when it exists and applies env
// overrides. A missing file is not an error; defaults carry.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BROWSER_URL"); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := os.Getenv("STATIC_FIRST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.StaticFirst = b
		}
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl workers must be > 0")
	}
	if c.Crawl.MaxAttempts <= 0 {
		return fmt.Errorf("crawl max_attempts must be > 0")
	}
	if c.Scrape.DefaultURL == "" {
		return fmt.Errorf("scrape default_url is required")
	}
	return nil
}
