package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// SeedURL
	if strings.TrimSpace(c.SeedURL) == "" {
		return nil, fmt.Errorf("%w: seed_url is required", utils.ErrConfigValidation)
	}
	seed, parseErr := url.Parse(c.SeedURL)
	if parseErr != nil || seed.Scheme == "" || seed.Host == "" {
		return nil, fmt.Errorf("%w: seed_url %q must be an absolute URL", utils.ErrConfigValidation, c.SeedURL)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return nil, fmt.Errorf("%w: seed_url scheme %q not supported", utils.ErrConfigValidation, seed.Scheme)
	}

	// ArticlePrefix
	if c.ArticlePrefix == "" {
		c.ArticlePrefix = DefaultArticlePrefix
	}
	if !strings.HasPrefix(c.ArticlePrefix, "/") || !strings.HasSuffix(c.ArticlePrefix, "/") {
		return nil, fmt.Errorf("%w: article_prefix %q must start and end with '/'", utils.ErrConfigValidation, c.ArticlePrefix)
	}
	if !strings.HasPrefix(seed.EscapedPath(), c.ArticlePrefix) {
		return nil, fmt.Errorf("%w: seed_url %q is not under article_prefix %q",
			utils.ErrConfigValidation, c.SeedURL, c.ArticlePrefix)
	}

	// MaxDepth
	if c.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth cannot be negative (got %d)", utils.ErrConfigValidation, c.MaxDepth)
	}

	// MaxLinksPerPage
	if c.MaxLinksPerPage < 0 {
		warnings = append(warnings, fmt.Sprintf("max_links_per_page cannot be negative, defaulting to %d", DefaultMaxLinksPerPage))
		c.MaxLinksPerPage = DefaultMaxLinksPerPage
	}

	// Concurrency
	if c.Concurrency <= 0 {
		warnings = append(warnings, fmt.Sprintf("concurrency should be > 0, defaulting to %d", DefaultConcurrency))
		c.Concurrency = DefaultConcurrency
	}

	// RequestDelay
	if c.RequestDelay < 0 {
		warnings = append(warnings, "request_delay cannot be negative, setting to 0")
		c.RequestDelay = 0
	}

	// MaxRequestsPerSecond
	if c.MaxRequestsPerSecond < 0 {
		warnings = append(warnings, "max_requests_per_second cannot be negative, disabling rate cap")
		c.MaxRequestsPerSecond = 0
	}

	// MaxRetries is a total attempt count
	if c.MaxRetries < 1 {
		warnings = append(warnings, "max_retries should be >= 1, setting to 1 (single attempt)")
		c.MaxRetries = 1
	}

	// BackoffUnit
	if c.BackoffUnit < 0 {
		warnings = append(warnings, "backoff_unit cannot be negative, setting to 0")
		c.BackoffUnit = 0
	}

	// RequestTimeout
	if c.RequestTimeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("request_timeout should be > 0, defaulting to %v", DefaultRequestTimeout))
		c.RequestTimeout = DefaultRequestTimeout
	}

	// UserAgent
	if strings.TrimSpace(c.UserAgent) == "" {
		warnings = append(warnings, "user_agent is empty, using default")
		c.UserAgent = DefaultUserAgent
	}

	// MaxPageBytes
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = DefaultMaxPageBytes
	}

	// VisitedBackend
	switch c.VisitedBackend {
	case "":
		c.VisitedBackend = VisitedBackendMemory
	case VisitedBackendMemory, VisitedBackendBadger:
	default:
		return nil, fmt.Errorf("%w: unknown visited_backend %q (want %q or %q)",
			utils.ErrConfigValidation, c.VisitedBackend, VisitedBackendMemory, VisitedBackendBadger)
	}

	c.validateSelectors()

	// Database
	if c.Database.MinContentLength < 0 {
		warnings = append(warnings, fmt.Sprintf("database.min_content_length cannot be negative, defaulting to %d", DefaultMinContentLength))
		c.Database.MinContentLength = DefaultMinContentLength
	}
	if c.Database.MaxConns < 0 {
		c.Database.MaxConns = 0
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateSelectors fills empty selectors with their defaults.
func (c *AppConfig) validateSelectors() {
	s := &c.Selectors
	if strings.TrimSpace(s.Content) == "" {
		s.Content = DefaultContentSelector
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = DefaultTitleSelector
	}
	if strings.TrimSpace(s.Remove) == "" {
		s.Remove = DefaultRemoveSelector
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = c.Concurrency
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
