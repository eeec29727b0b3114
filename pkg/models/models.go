package models

import "time"

// WorkItem is one frontier entry: a canonical URL, its BFS depth, and the page it was discovered on.
type WorkItem struct {
	URL       string
	Depth     int
	ParentURL string // Empty for the seed
}

// PageRecord is the structured result of extracting a single article page
type PageRecord struct {
	URL          string     `json:"url" yaml:"url"`
	Title        string     `json:"title" yaml:"title"`
	Summary      string     `json:"summary" yaml:"summary"`
	Content      string     `json:"content" yaml:"content"`
	WordCount    int        `json:"word_count" yaml:"word_count"`
	Depth        int        `json:"depth" yaml:"depth"`
	ParentURL    string     `json:"parent_url,omitempty" yaml:"parent_url,omitempty"`       // Empty for the seed
	LastModified *time.Time `json:"last_modified,omitempty" yaml:"last_modified,omitempty"` // From the Last-Modified header, when parsable
	CrawledAt    time.Time  `json:"crawled_at" yaml:"crawled_at"`
}

// LinkRecord is a directed edge between two canonical article URLs
type LinkRecord struct {
	SourceURL  string `json:"source_url" yaml:"source_url"`
	TargetURL  string `json:"target_url" yaml:"target_url"`
	AnchorText string `json:"anchor_text" yaml:"anchor_text"`
}

// TaskResult is what a single frontier task hands back to the level join
type TaskResult struct {
	Item       WorkItem
	Kind       TaskKind
	Page       *PageRecord  // Set only for TaskAccepted
	Links      []LinkRecord // Set only for TaskAccepted
	Followable []string     // Canonical URLs in document order; honored for TaskAccepted and validation skips
	Reason     string       // Short reason for TaskSkipped
	Err        error        // Diagnostic for TaskFailed and validation skips
}
