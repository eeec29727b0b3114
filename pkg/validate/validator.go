// Package validate checks extracted records before they enter the output stream.
package validate

import (
	"fmt"
	"strings"

	"github.com/Sriram-PR/wiki-etl/pkg/models"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// Validator enforces the record invariants for a crawl bounded at MaxDepth
type Validator struct {
	maxDepth int
}

// New creates a Validator for pages at depth 0 through maxDepth inclusive
func New(maxDepth int) *Validator {
	return &Validator{maxDepth: maxDepth}
}

// Page returns nil when p satisfies every invariant, otherwise an error
// wrapping utils.ErrValidation that lists each violation.
func (v *Validator) Page(p models.PageRecord) error {
	var problems []string

	if strings.TrimSpace(p.URL) == "" {
		problems = append(problems, "url is empty")
	}
	if strings.TrimSpace(p.Title) == "" {
		problems = append(problems, "title is empty")
	}
	if p.Depth < 0 || p.Depth > v.maxDepth {
		problems = append(problems, fmt.Sprintf("depth %d outside [0, %d]", p.Depth, v.maxDepth))
	}
	if p.WordCount < 0 {
		problems = append(problems, fmt.Sprintf("word_count %d is negative", p.WordCount))
	}
	if p.CrawledAt.IsZero() {
		problems = append(problems, "crawled_at is unset")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", utils.ErrValidation, p.URL, strings.Join(problems, "; "))
	}
	return nil
}

// Link returns nil when both endpoints of l are set
func (v *Validator) Link(l models.LinkRecord) error {
	switch {
	case strings.TrimSpace(l.SourceURL) == "":
		return fmt.Errorf("%w: link source_url is empty", utils.ErrValidation)
	case strings.TrimSpace(l.TargetURL) == "":
		return fmt.Errorf("%w: link target_url is empty (source %s)", utils.ErrValidation, l.SourceURL)
	}
	return nil
}
