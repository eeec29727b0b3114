package orchestrate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/wiki-etl/pkg/crawler"
)

const (
	// maxSummaryErrors is how many errors Summary prints before eliding the rest
	maxSummaryErrors = 5
	// summaryErrorWidth caps an error line in terminal columns; titles may contain wide runes
	summaryErrorWidth = 160
)

// Report describes one pipeline run. It is also the run-metadata file format.
type Report struct {
	RunID     string    `yaml:"run_id"`
	StartedAt time.Time `yaml:"started_at"`
	SeedURL   string    `yaml:"seed_url"`
	MaxDepth  int       `yaml:"max_depth"`

	PagesCrawled   int   `yaml:"pages_crawled"`
	PagesLoaded    int64 `yaml:"pages_loaded"`
	LinksExtracted int   `yaml:"links_extracted"`
	LinksLoaded    int64 `yaml:"links_loaded"`
	PagesSkipped   int   `yaml:"pages_skipped"`
	PagesFailed    int   `yaml:"pages_failed"`
	URLsVisited    int   `yaml:"urls_visited"`
	Levels         int   `yaml:"levels"`
	LoadSkipped    bool  `yaml:"load_skipped"`

	TotalDuration   time.Duration `yaml:"total_duration"`
	ExtractDuration time.Duration `yaml:"extract_duration"`
	LoadDuration    time.Duration `yaml:"load_duration"`
	PagesPerMinute  float64       `yaml:"pages_per_minute"`
	LinksPerMinute  float64       `yaml:"links_per_minute"`

	Errors []string `yaml:"errors"`
}

func (r *Report) addCrawl(result *crawler.Result) {
	r.PagesCrawled = len(result.Pages)
	r.LinksExtracted = len(result.Links)
	r.PagesSkipped = result.Stats.Skipped
	r.PagesFailed = result.Stats.Failed
	r.URLsVisited = result.Stats.Visited
	r.Levels = result.Stats.Levels
	r.Errors = append(r.Errors, result.ErrorMessages()...)
}

func (r *Report) computeThroughput() {
	r.PagesPerMinute, r.LinksPerMinute = 0, 0
	minutes := r.TotalDuration.Minutes()
	if minutes <= 0 {
		return
	}
	r.PagesPerMinute = float64(r.PagesCrawled) / minutes
	r.LinksPerMinute = float64(r.LinksExtracted) / minutes
}

// ExitCode is 1 when any error was recorded, 0 otherwise
func (r *Report) ExitCode() int {
	if len(r.Errors) > 0 {
		return 1
	}
	return 0
}

// Summary writes the human-readable run summary
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintln(w, "============================================")
	fmt.Fprintf(w, "Run %s completed in %v\n", r.RunID, r.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Extract phase: %v\n", r.ExtractDuration.Round(time.Millisecond))
	if r.LoadSkipped {
		fmt.Fprintln(w, "  Load phase:    skipped")
	} else {
		fmt.Fprintf(w, "  Load phase:    %v\n", r.LoadDuration.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "--------------------------------------------")
	fmt.Fprintf(w, "Pages: %d crawled, %d loaded (%d skipped, %d failed)\n", r.PagesCrawled, r.PagesLoaded, r.PagesSkipped, r.PagesFailed)
	fmt.Fprintf(w, "Links: %d extracted, %d loaded\n", r.LinksExtracted, r.LinksLoaded)
	fmt.Fprintf(w, "Throughput: %.1f pages/min, %.1f links/min\n", r.PagesPerMinute, r.LinksPerMinute)

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "--------------------------------------------")
		fmt.Fprintf(w, "Errors (%d):\n", len(r.Errors))
		for i, e := range r.Errors {
			if i == maxSummaryErrors {
				fmt.Fprintf(w, "  ... and %d more\n", len(r.Errors)-maxSummaryErrors)
				break
			}
			fmt.Fprintf(w, "  - %s\n", runewidth.Truncate(e, summaryErrorWidth, "..."))
		}
	}
	fmt.Fprintln(w, "============================================")
}

// WriteMetadata writes the report as YAML to path, creating parent directories
func WriteMetadata(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metadata directory %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run metadata %q: %w", path, err)
	}
	return nil
}
