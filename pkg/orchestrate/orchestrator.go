package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/crawler"
	"github.com/Sriram-PR/wiki-etl/pkg/fetch"
	"github.com/Sriram-PR/wiki-etl/pkg/load"
	"github.com/Sriram-PR/wiki-etl/pkg/metrics"
	"github.com/Sriram-PR/wiki-etl/pkg/parse"
	"github.com/Sriram-PR/wiki-etl/pkg/process"
	"github.com/Sriram-PR/wiki-etl/pkg/storage"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
	"github.com/Sriram-PR/wiki-etl/pkg/validate"
)

// Pipeline runs one crawl followed by one load
type Pipeline struct {
	cfg     *config.AppConfig
	crawler *crawler.Crawler
	visited storage.VisitedSet
	loader  load.Loader
	log     *logrus.Entry
}

// NewPipeline wires every component from appCfg. When robots.txt is respected
// it is fetched here, before the crawl starts. The caller must Close the pipeline.
func NewPipeline(ctx context.Context, appCfg *config.AppConfig, m *metrics.Metrics, log *logrus.Entry) (*Pipeline, error) {
	crawlCfg := appCfg.CrawlConfig()

	seed, err := url.Parse(appCfg.SeedURL)
	if err != nil || seed.Host == "" {
		return nil, fmt.Errorf("%w: seed_url %q", utils.ErrConfigValidation, appCfg.SeedURL)
	}
	baseURL := seed.Scheme + "://" + seed.Host

	norm, err := parse.NewNormalizer(baseURL, appCfg.ArticlePrefix)
	if err != nil {
		return nil, err
	}

	client := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.RequestTimeout, log)
	gate := fetch.NewGate(appCfg.Concurrency, appCfg.RequestDelay, appCfg.MaxRequestsPerSecond, log)
	fetcher := fetch.NewFetcher(client, gate, crawlCfg, m, log.WithField("component", "fetcher"))

	opts := &crawler.Options{Metrics: m}
	if appCfg.RespectRobots {
		opts.Robots = fetch.LoadRobotsPolicy(ctx, fetcher, baseURL, appCfg.UserAgent, log)
	}

	extractor := process.NewExtractor(norm, validate.New(appCfg.MaxDepth), appCfg.Selectors, log.WithField("component", "extractor"))

	visited, err := storage.Open(appCfg.VisitedBackend, log)
	if err != nil {
		return nil, err
	}

	c, err := crawler.NewCrawler(crawlCfg, norm, fetcher, extractor, visited, log.WithField("component", "crawler"), opts)
	if err != nil {
		_ = visited.Close()
		return nil, err
	}

	var loader load.Loader
	if appCfg.Database.DSN == "" {
		loader = load.NewNopLoader(log)
	} else {
		pg, err := load.NewPostgresLoader(ctx, appCfg.Database, m, log.WithField("component", "loader"))
		if err != nil {
			_ = visited.Close()
			return nil, err
		}
		loader = pg
	}

	return &Pipeline{
		cfg:     appCfg,
		crawler: c,
		visited: visited,
		loader:  loader,
		log:     log,
	}, nil
}

// Close releases the visited set and the loader's connections
func (p *Pipeline) Close() {
	if err := p.visited.Close(); err != nil {
		p.log.Warnf("Closing visited set: %v", err)
	}
	p.loader.Close()
}

// Progress reports the crawl phase's live progress
func (p *Pipeline) Progress() crawler.Progress {
	return p.crawler.GetProgress()
}

// Run crawls then loads. A cancelled crawl skips the load phase and returns the
// partial report with the cancellation error. Per-page failures do not fail the
// run; they are collected in the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		SeedURL:   p.cfg.SeedURL,
		MaxDepth:  p.cfg.MaxDepth,
	}
	runLog := p.log.WithField("run_id", report.RunID)
	runLog.Info("Pipeline starting...")
	start := time.Now()
	defer func() {
		report.TotalDuration = time.Since(start)
		report.computeThroughput()
	}()

	result, crawlErr := p.crawler.Run(ctx)
	report.ExtractDuration = time.Since(start)
	if result != nil {
		report.addCrawl(result)
	}
	if crawlErr != nil {
		if errors.Is(crawlErr, context.Canceled) || errors.Is(crawlErr, context.DeadlineExceeded) {
			runLog.Warnf("Crawl interrupted, skipping load: %v", crawlErr)
			report.LoadSkipped = true
		} else {
			runLog.Errorf("Crawl failed: %v", crawlErr)
		}
		return report, crawlErr
	}

	loadStart := time.Now()
	stats, err := p.loader.Load(ctx, result.Pages, result.Links)
	report.LoadDuration = time.Since(loadStart)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("load: %v", err))
		runLog.Errorf("Load failed: %v", err)
		return report, err
	}
	report.PagesLoaded = stats.PagesLoaded
	report.LinksLoaded = stats.LinksLoaded
	if _, dry := p.loader.(*load.NopLoader); dry {
		report.LoadSkipped = true
	}

	runLog.WithFields(logrus.Fields{
		"pages":  report.PagesCrawled,
		"links":  report.LinksExtracted,
		"errors": len(report.Errors),
	}).Info("Pipeline finished")
	return report, nil
}
