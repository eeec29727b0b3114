package crawler

import (
	"fmt"
	"time"

	"github.com/Sriram-PR/wiki-etl/pkg/models"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// State is the crawler lifecycle: Idle -> Running -> Done
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

// String implements fmt.Stringer for logging
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// CrawlError is one entry in the run's diagnostic list
type CrawlError struct {
	URL      string
	Depth    int
	Category string
	Err      error
}

func newCrawlError(res models.TaskResult) CrawlError {
	return CrawlError{
		URL:      res.Item.URL,
		Depth:    res.Item.Depth,
		Category: utils.CategorizeError(res.Err),
		Err:      res.Err,
	}
}

// String formats the entry for summaries and the metadata file
func (e CrawlError) String() string {
	return fmt.Sprintf("%s (depth %d) [%s]: %v", e.URL, e.Depth, e.Category, e.Err)
}

// Stats counts task outcomes across the whole crawl
type Stats struct {
	Accepted int
	Skipped  int
	Failed   int
	Levels   int
	Visited  int
	Duration time.Duration
}

// Result is the output stream of a crawl: accepted pages and their links in
// level order, plus diagnostics for every failed or invalid page.
type Result struct {
	Pages  []models.PageRecord
	Links  []models.LinkRecord
	Errors []CrawlError
	Stats  Stats
}

// ErrorMessages returns the diagnostic list as strings
func (r *Result) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.String())
	}
	return msgs
}
