package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Visited-set backends selectable via visited_backend
const (
	VisitedBackendMemory = "memory"
	VisitedBackendBadger = "badger"
)

// Defaults applied by Default() and by Validate() when a value is out of range
const (
	DefaultSeedURL          = "https://en.wikipedia.org/wiki/Toronto"
	DefaultArticlePrefix    = "/wiki/"
	DefaultMaxDepth         = 2
	DefaultMaxLinksPerPage  = 25
	DefaultConcurrency      = 10
	DefaultRequestDelay     = 500 * time.Millisecond
	DefaultMaxRetries       = 3
	DefaultBackoffUnit      = 1 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultUserAgent        = "ETLPipeline/1.0 (Wikipedia crawl; educational)"
	DefaultMaxPageBytes     = 10 << 20
	DefaultMinContentLength = 50
	DefaultContentSelector  = "div#mw-content-text"
	DefaultTitleSelector    = "h1#firstHeading"
	DefaultRemoveSelector   = "script, style, .reference, .navbox, .infobox"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	SeedURL              string           `yaml:"seed_url"`
	ArticlePrefix        string           `yaml:"article_prefix,omitempty"`
	MaxDepth             int              `yaml:"max_depth"`
	MaxLinksPerPage      int              `yaml:"max_links_per_page"`
	Concurrency          int              `yaml:"concurrency"`
	RequestDelay         time.Duration    `yaml:"request_delay"`
	MaxRequestsPerSecond float64          `yaml:"max_requests_per_second,omitempty"` // 0 = no global rate cap
	MaxRetries           int              `yaml:"max_retries"`
	BackoffUnit          time.Duration    `yaml:"backoff_unit,omitempty"` // Wait before retry n (0-based) is backoff_unit * 2^n
	RequestTimeout       time.Duration    `yaml:"request_timeout"`        // Per attempt
	UserAgent            string           `yaml:"user_agent"`
	MaxPageBytes         int64            `yaml:"max_page_bytes,omitempty"`
	RespectRobots        bool             `yaml:"respect_robots,omitempty"`
	VisitedBackend       string           `yaml:"visited_backend,omitempty"`
	Selectors            SelectorConfig   `yaml:"selectors,omitempty"`
	HTTPClientSettings   HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Database             DatabaseConfig   `yaml:"database,omitempty"`
	MetadataFile         string           `yaml:"metadata_file,omitempty"` // Run report YAML; empty disables
	MetricsAddr          string           `yaml:"metrics_addr,omitempty"`  // Prometheus listener; empty disables
}

// SelectorConfig holds the CSS selectors used by the page extractor
type SelectorConfig struct {
	Content string `yaml:"content,omitempty"` // Main content region
	Title   string `yaml:"title,omitempty"`
	Remove  string `yaml:"remove,omitempty"` // Stripped from a copy of the region before text extraction
}

// DatabaseConfig holds settings for the Postgres loader
type DatabaseConfig struct {
	DSN              string `yaml:"dsn,omitempty"` // Empty skips the load phase
	MinContentLength int    `yaml:"min_content_length"`
	MaxConns         int32  `yaml:"max_conns,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// CrawlConfig is the immutable subset of AppConfig consumed by the fetcher and scheduler
type CrawlConfig struct {
	SeedURL              string
	ArticlePrefix        string
	MaxDepth             int
	MaxLinksPerPage      int
	Concurrency          int
	RequestDelay         time.Duration
	MaxRequestsPerSecond float64
	MaxRetries           int
	BackoffUnit          time.Duration
	RequestTimeout       time.Duration
	UserAgent            string
	MaxPageBytes         int64
	RespectRobots        bool
}

// Default returns an AppConfig populated with every default value
func Default() AppConfig {
	return AppConfig{
		SeedURL:         DefaultSeedURL,
		ArticlePrefix:   DefaultArticlePrefix,
		MaxDepth:        DefaultMaxDepth,
		MaxLinksPerPage: DefaultMaxLinksPerPage,
		Concurrency:     DefaultConcurrency,
		RequestDelay:    DefaultRequestDelay,
		MaxRetries:      DefaultMaxRetries,
		BackoffUnit:     DefaultBackoffUnit,
		RequestTimeout:  DefaultRequestTimeout,
		UserAgent:       DefaultUserAgent,
		MaxPageBytes:    DefaultMaxPageBytes,
		VisitedBackend:  VisitedBackendMemory,
		Selectors: SelectorConfig{
			Content: DefaultContentSelector,
			Title:   DefaultTitleSelector,
			Remove:  DefaultRemoveSelector,
		},
		Database: DatabaseConfig{
			MinContentLength: DefaultMinContentLength,
		},
	}
}

// Load reads a YAML config file over Default(). An empty path returns the defaults.
// The result is not validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &cfg, nil
}

// CrawlConfig returns the crawl-facing view of the configuration
func (c *AppConfig) CrawlConfig() CrawlConfig {
	return CrawlConfig{
		SeedURL:              c.SeedURL,
		ArticlePrefix:        c.ArticlePrefix,
		MaxDepth:             c.MaxDepth,
		MaxLinksPerPage:      c.MaxLinksPerPage,
		Concurrency:          c.Concurrency,
		RequestDelay:         c.RequestDelay,
		MaxRequestsPerSecond: c.MaxRequestsPerSecond,
		MaxRetries:           c.MaxRetries,
		BackoffUnit:          c.BackoffUnit,
		RequestTimeout:       c.RequestTimeout,
		UserAgent:            c.UserAgent,
		MaxPageBytes:         c.MaxPageBytes,
		RespectRobots:        c.RespectRobots,
	}
}
