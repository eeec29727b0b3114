package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/fetch"
	"github.com/Sriram-PR/wiki-etl/pkg/metrics"
	"github.com/Sriram-PR/wiki-etl/pkg/models"
	"github.com/Sriram-PR/wiki-etl/pkg/parse"
	"github.com/Sriram-PR/wiki-etl/pkg/process"
	"github.com/Sriram-PR/wiki-etl/pkg/storage"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// ErrAlreadyStarted is returned when Run is called on a crawler that has already run
var ErrAlreadyStarted = errors.New("crawler already started")

// PageFetcher retrieves a page body for a canonical URL
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
}

// RobotsChecker reports whether a URL may be fetched
type RobotsChecker interface {
	Allowed(url string) bool
}

// Options contains optional collaborators for NewCrawler
type Options struct {
	Robots  RobotsChecker    // nil allows every URL
	Metrics *metrics.Metrics // nil disables metrics
	Clock   func() time.Time // Source of crawled_at; defaults to time.Now
}

// Crawler runs a level-synchronous breadth-first crawl from a single seed
type Crawler struct {
	cfg       config.CrawlConfig
	norm      *parse.Normalizer
	fetcher   PageFetcher
	extractor *process.Extractor
	visited   storage.VisitedSet
	robots    RobotsChecker
	metrics   *metrics.Metrics
	clock     func() time.Time
	log       *logrus.Entry

	state     atomic.Int32
	processed atomic.Int64
	depth     atomic.Int64
}

// NewCrawler wires a Crawler. The visited set must be empty; the crawler claims the seed itself.
func NewCrawler(
	cfg config.CrawlConfig,
	norm *parse.Normalizer,
	fetcher PageFetcher,
	extractor *process.Extractor,
	visited storage.VisitedSet,
	log *logrus.Entry,
	opts *Options,
) (*Crawler, error) {
	if norm == nil || fetcher == nil || extractor == nil || visited == nil {
		return nil, errors.New("crawler requires a normalizer, fetcher, extractor and visited set")
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth cannot be negative", utils.ErrConfigValidation)
	}

	c := &Crawler{
		cfg:       cfg,
		norm:      norm,
		fetcher:   fetcher,
		extractor: extractor,
		visited:   visited,
		clock:     time.Now,
		log:       log,
	}
	if opts != nil {
		c.robots = opts.Robots
		c.metrics = opts.Metrics
		if opts.Clock != nil {
			c.clock = opts.Clock
		}
	}
	return c, nil
}

// Progress is a point-in-time view of a running crawl
type Progress struct {
	State          State
	Depth          int
	PagesProcessed int64
	Visited        int
}

// GetProgress returns the current progress of the crawler
func (c *Crawler) GetProgress() Progress {
	return Progress{
		State:          c.State(),
		Depth:          int(c.depth.Load()),
		PagesProcessed: c.processed.Load(),
		Visited:        c.visited.Count(),
	}
}

// State returns the crawler's lifecycle state
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Run crawls from the seed until the frontier is empty or max_depth is exhausted.
// Each level is processed concurrently and joined before the next level starts;
// the next frontier is built at the join in frontier order, so parent assignment
// is deterministic. On cancellation Run returns the partial result together with
// an error wrapping ctx.Err().
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyStarted
	}
	defer c.state.Store(int32(StateDone))

	start := time.Now()
	result := &Result{}
	defer func() {
		result.Stats.Visited = c.visited.Count()
		result.Stats.Duration = time.Since(start)
	}()

	seed := c.norm.Normalize(c.cfg.SeedURL)
	if seed == "" {
		return result, fmt.Errorf("%w: seed %q does not normalize to an article URL", utils.ErrConfigValidation, c.cfg.SeedURL)
	}
	if _, err := c.visited.Claim(seed); err != nil {
		return result, fmt.Errorf("claim seed: %w", err)
	}

	runLog := c.log.WithFields(logrus.Fields{"seed": seed, "max_depth": c.cfg.MaxDepth})
	runLog.Info("Crawl starting...")

	frontier := []models.WorkItem{{URL: seed, Depth: 0}}
	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			runLog.Warnf("Crawl cancelled before depth %d: %v", depth, err)
			return result, fmt.Errorf("crawl cancelled: %w", err)
		}

		c.depth.Store(int64(depth))
		c.metrics.SetLevel(depth, len(frontier))
		levelLog := runLog.WithFields(logrus.Fields{"depth": depth, "frontier": len(frontier)})
		levelLog.Info("Processing level...")
		levelStart := time.Now()

		results := c.runLevel(ctx, frontier)

		next, err := c.join(results, depth, result)
		result.Stats.Levels++
		c.metrics.SetVisited(c.visited.Count())
		if err != nil {
			levelLog.Errorf("Level join failed: %v", err)
			return result, err
		}
		levelLog.WithFields(logrus.Fields{
			"duration": time.Since(levelStart).String(),
			"next":     len(next),
		}).Info("Level complete")

		frontier = next
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl cancelled: %w", err)
	}

	runLog.WithFields(logrus.Fields{
		"pages":  len(result.Pages),
		"links":  len(result.Links),
		"errors": len(result.Errors),
	}).Info("Crawl finished")
	return result, nil
}

// runLevel processes every frontier entry concurrently and returns results in frontier order.
// Admission to the network is bounded by the fetcher's gate, not here.
func (c *Crawler) runLevel(ctx context.Context, frontier []models.WorkItem) []models.TaskResult {
	results := make([]models.TaskResult, len(frontier))
	var g errgroup.Group
	for i, item := range frontier {
		g.Go(func() error {
			results[i] = c.processItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures are carried in their results
	return results
}

// join folds one level's results into out and claims the next frontier.
// Only a visited-set failure is returned as an error.
func (c *Crawler) join(results []models.TaskResult, depth int, out *Result) ([]models.WorkItem, error) {
	var next []models.WorkItem

	for _, res := range results {
		switch res.Kind {
		case models.TaskAccepted:
			out.Pages = append(out.Pages, *res.Page)
			out.Links = append(out.Links, res.Links...)
			out.Stats.Accepted++
		case models.TaskSkipped:
			out.Stats.Skipped++
		case models.TaskFailed:
			out.Stats.Failed++
		}
		if res.Diagnostic() {
			out.Errors = append(out.Errors, newCrawlError(res))
		}

		if depth >= c.cfg.MaxDepth || !res.PropagatesLinks() {
			continue
		}

		candidates := res.Followable
		if len(candidates) > c.cfg.MaxLinksPerPage {
			candidates = candidates[:c.cfg.MaxLinksPerPage]
		}
		for _, target := range candidates {
			added, err := c.visited.Claim(target)
			if err != nil {
				return next, fmt.Errorf("claim %s: %w", target, err)
			}
			if added {
				next = append(next, models.WorkItem{URL: target, Depth: depth + 1, ParentURL: res.Item.URL})
			}
		}
	}

	return next, nil
}

// processItem fetches, extracts and validates one page. It never panics and never returns an error;
// every outcome is a TaskResult.
func (c *Crawler) processItem(ctx context.Context, item models.WorkItem) (res models.TaskResult) {
	taskLog := c.log.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	startTime := time.Now()
	res.Item = item

	defer func() {
		if r := recover(); r != nil {
			res = models.TaskResult{Item: item, Kind: models.TaskFailed, Err: fmt.Errorf("panic: %v", r)}
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stage":       "PanicRecovery",
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processItem")
		}

		c.processed.Add(1)
		c.metrics.ObserveTask(res.Kind.String())

		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		switch res.Kind {
		case models.TaskFailed:
			logFields["category"] = utils.CategorizeError(res.Err)
			taskLog.WithFields(logFields).Warnf("Task failed: %v", res.Err)
		case models.TaskSkipped:
			logFields["reason"] = res.Reason
			taskLog.WithFields(logFields).Info("Task skipped")
		default:
			if res.Page != nil {
				logFields["page_title"] = res.Page.Title
			}
			taskLog.WithFields(logFields).Info("Task completed successfully")
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Kind = models.TaskFailed
		res.Err = err
		return res
	}

	if c.robots != nil && !c.robots.Allowed(item.URL) {
		res.Kind = models.TaskSkipped
		res.Reason = models.SkipReasonRobots
		return res
	}

	doc, err := c.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		res.Kind = models.TaskFailed
		res.Err = err
		return res
	}

	ext, err := c.extractor.Extract(doc.Body, item, doc.LastModified, c.clock().UTC())
	if err != nil {
		res.Kind = models.TaskFailed
		res.Err = err
		return res
	}

	res.Followable = ext.Followable
	if ext.Invalid != nil {
		res.Kind = models.TaskSkipped
		res.Reason = models.SkipReasonValidation
		res.Err = ext.Invalid
		return res
	}

	res.Kind = models.TaskAccepted
	res.Page = ext.Page
	res.Links = ext.Links
	return res
}
