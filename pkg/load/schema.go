package load

import "fmt"

const (
	stagingSchema    = "staging"
	pagesTable       = "pages"
	pageLinksTable   = "page_links"
	copyChunkSize    = 1000
	productionSchema = "production"
)

var (
	pageColumns = []string{
		"url", "title", "summary", "content", "word_count",
		"depth", "parent_url", "last_modified", "crawled_at",
	}
	linkColumns = []string{"source_url", "target_url", "link_text"}
)

// Tables are dropped with CASCADE because the production views depend on them
var setupStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS staging`,
	`CREATE SCHEMA IF NOT EXISTS production`,
	`DROP TABLE IF EXISTS staging.page_links CASCADE`,
	`DROP TABLE IF EXISTS staging.pages CASCADE`,
	`CREATE TABLE staging.pages (
		url           TEXT PRIMARY KEY,
		title         TEXT,
		summary       TEXT,
		content       TEXT,
		word_count    INTEGER,
		depth         INTEGER,
		parent_url    TEXT,
		last_modified TIMESTAMPTZ,
		crawled_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE staging.page_links (
		source_url TEXT NOT NULL,
		target_url TEXT NOT NULL,
		link_text  TEXT
	)`,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_page_links_source ON staging.page_links (source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_page_links_target ON staging.page_links (target_url)`,
}

// viewStatements builds the production views. View definitions cannot take
// bind parameters, so the minimum is rendered as an integer literal.
func viewStatements(minContentLength int) []string {
	return []string{
		fmt.Sprintf(`CREATE OR REPLACE VIEW production.pages AS
		SELECT url, title, summary, content, word_count, depth, parent_url, last_modified, crawled_at
		FROM staging.pages
		WHERE title IS NOT NULL
		  AND content <> ''
		  AND length(content) > %d`, minContentLength),
		`CREATE OR REPLACE VIEW production.page_links AS
		SELECT l.source_url, l.target_url, l.link_text
		FROM staging.page_links l
		JOIN production.pages s ON s.url = l.source_url
		JOIN production.pages t ON t.url = l.target_url`,
	}
}
