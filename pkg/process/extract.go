package process

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/models"
	"github.com/Sriram-PR/wiki-etl/pkg/parse"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
	"github.com/Sriram-PR/wiki-etl/pkg/validate"
)

// minSummaryRunes is the length a cleaned paragraph must exceed to become the summary
const minSummaryRunes = 50

// Extraction is everything harvested from one page
type Extraction struct {
	Page       *models.PageRecord  // nil when Invalid is set
	Links      []models.LinkRecord // Every distinct article-prefix link in the content region
	Followable []string            // Canonical targets the crawler may enqueue, in document order
	Invalid    error               // Record validation failure; links are still reported
}

// Extractor turns a fetched page into a PageRecord and its outgoing links
type Extractor struct {
	norm      *parse.Normalizer
	validator *validate.Validator
	selectors config.SelectorConfig
	log       *logrus.Entry
}

// NewExtractor creates an Extractor. Empty selectors fall back to the config defaults.
func NewExtractor(norm *parse.Normalizer, validator *validate.Validator, selectors config.SelectorConfig, log *logrus.Entry) *Extractor {
	if selectors.Content == "" {
		selectors.Content = config.DefaultContentSelector
	}
	if selectors.Title == "" {
		selectors.Title = config.DefaultTitleSelector
	}
	if selectors.Remove == "" {
		selectors.Remove = config.DefaultRemoveSelector
	}
	return &Extractor{
		norm:      norm,
		validator: validator,
		selectors: selectors,
		log:       log,
	}
}

// Extract parses body fetched for item. Links are harvested from the original
// content region before any element is removed; cleanup runs on a detached copy.
// A missing content region is an error; a record that fails validation is
// reported through Extraction.Invalid with links still populated.
func (e *Extractor) Extract(body string, item models.WorkItem, lastModified *time.Time, crawledAt time.Time) (*Extraction, error) {
	taskLog := e.log.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML document %s: %w", utils.ErrParsing, item.URL, err)
	}

	region := doc.Find(e.selectors.Content).First()
	if region.Length() == 0 {
		return nil, fmt.Errorf("%w: selector %q on %s", utils.ErrContentRegion, e.selectors.Content, item.URL)
	}

	title := CleanText(doc.Find(e.selectors.Title).First().Text())
	if title == "" {
		title = parse.TitleFromURL(item.URL)
	}

	summary := firstSummary(region)
	links, followable := e.harvestLinks(region, item.URL, taskLog)

	// Cleanup operates on a copy so the document stays intact
	cleaned := region.Clone()
	cleaned.Find(e.selectors.Remove).Remove()
	content := CleanText(textWithSeparator(cleaned))

	page := models.PageRecord{
		URL:          item.URL,
		Title:        title,
		Summary:      summary,
		Content:      content,
		WordCount:    WordCount(content),
		Depth:        item.Depth,
		ParentURL:    item.ParentURL,
		LastModified: lastModified,
		CrawledAt:    crawledAt,
	}

	result := &Extraction{Links: links, Followable: followable}
	if err := e.validator.Page(page); err != nil {
		taskLog.Warnf("Record failed validation: %v", err)
		result.Invalid = err
		return result, nil
	}
	result.Page = &page

	taskLog.WithFields(logrus.Fields{
		"words":      page.WordCount,
		"links":      len(links),
		"followable": len(followable),
	}).Debug("Extracted page")
	return result, nil
}

// firstSummary returns the first paragraph whose cleaned text exceeds minSummaryRunes
func firstSummary(region *goquery.Selection) string {
	summary := ""
	region.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := CleanText(p.Text())
		if utf8.RuneCountInString(text) > minSummaryRunes {
			summary = text
			return false
		}
		return true
	})
	return summary
}

// harvestLinks collects distinct article links in document order. The first
// occurrence of a target supplies its anchor text.
func (e *Extractor) harvestLinks(region *goquery.Selection, sourceURL string, taskLog *logrus.Entry) ([]models.LinkRecord, []string) {
	var links []models.LinkRecord
	var followable []string
	seen := make(map[string]struct{})
	prefix := e.norm.ArticlePrefix()

	region.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, prefix) {
			return
		}

		target := e.norm.Normalize(href)
		if target == "" {
			taskLog.Debugf("Skipping malformed link %q", href)
			return
		}
		if _, dup := seen[target]; dup {
			return
		}

		link := models.LinkRecord{
			SourceURL:  sourceURL,
			TargetURL:  target,
			AnchorText: CleanText(a.Text()),
		}
		if err := e.validator.Link(link); err != nil {
			taskLog.Debugf("Skipping link: %v", err)
			return
		}

		seen[target] = struct{}{}
		links = append(links, link)
		if e.norm.IsFollowable(target) {
			followable = append(followable, target)
		}
	})

	return links, followable
}
