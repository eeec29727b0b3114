package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	applog "github.com/Sriram-PR/wiki-etl/pkg/log"
	"github.com/Sriram-PR/wiki-etl/pkg/metrics"
	"github.com/Sriram-PR/wiki-etl/pkg/orchestrate"
)

const version = "0.3.0"

// shutdownGracePeriod bounds how long the process waits after the first signal
const shutdownGracePeriod = 30 * time.Second

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode := 0
	root := newRootCmd(&exitCode)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// runFlags holds the values of the run command's overrides
type runFlags struct {
	configFile       string
	seedURL          string
	depth            int
	maxLinksPerPage  int
	concurrency      int
	requestDelay     time.Duration
	dsn              string
	minContentLength int
	logLevel         string
	metadataFile     string
	metricsAddr      string
	respectRobots    bool
	visitedBackend   string
}

func newRootCmd(exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:   "wikietl",
		Short: "Breadth-first wiki crawler with a staging/production Postgres load",
		Long: `wikietl crawls an article namespace breadth-first from a seed page,
extracts titles, summaries, cleaned text and links, validates the records
and bulk-loads them into staging tables behind a filtered production view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(exitCode))
	root.AddCommand(newValidateCmd(exitCode))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wikietl %s\n", version)
		},
	})
	return root
}

func newRunCmd(exitCode *int) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl from the seed and load the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := runPipeline(cmd, f)
			*exitCode = code
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "Path to YAML config file (defaults apply when empty)")
	fs.StringVar(&f.seedURL, "url", config.DefaultSeedURL, "Seed article URL")
	fs.IntVar(&f.depth, "depth", config.DefaultMaxDepth, "Maximum crawl depth (seed is depth 0)")
	fs.IntVar(&f.maxLinksPerPage, "max-links-per-page", config.DefaultMaxLinksPerPage, "Followable links enqueued per page")
	fs.IntVar(&f.concurrency, "concurrency", config.DefaultConcurrency, "Maximum in-flight requests")
	fs.DurationVar(&f.requestDelay, "request-delay", config.DefaultRequestDelay, "Delay applied before every request")
	fs.StringVar(&f.dsn, "db", "", "Postgres DSN; empty skips the load phase")
	fs.IntVar(&f.minContentLength, "min-content-length", config.DefaultMinContentLength, "Minimum content length admitted by the production view")
	fs.StringVar(&f.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.metadataFile, "metadata", "", "Write the run report as YAML to this path")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	fs.BoolVar(&f.respectRobots, "respect-robots", false, "Honor robots.txt of the seed host")
	fs.StringVar(&f.visitedBackend, "visited-backend", config.VisitedBackendMemory, "Visited-set backend (memory, badger)")
	return cmd
}

// applyOverrides copies every flag the user set explicitly onto appCfg
func applyOverrides(cmd *cobra.Command, f *runFlags, appCfg *config.AppConfig) {
	changed := cmd.Flags().Changed
	if changed("url") {
		appCfg.SeedURL = f.seedURL
	}
	if changed("depth") {
		appCfg.MaxDepth = f.depth
	}
	if changed("max-links-per-page") {
		appCfg.MaxLinksPerPage = f.maxLinksPerPage
	}
	if changed("concurrency") {
		appCfg.Concurrency = f.concurrency
	}
	if changed("request-delay") {
		appCfg.RequestDelay = f.requestDelay
	}
	if changed("db") {
		appCfg.Database.DSN = f.dsn
	}
	if changed("min-content-length") {
		appCfg.Database.MinContentLength = f.minContentLength
	}
	if changed("metadata") {
		appCfg.MetadataFile = f.metadataFile
	}
	if changed("metrics-addr") {
		appCfg.MetricsAddr = f.metricsAddr
	}
	if changed("respect-robots") {
		appCfg.RespectRobots = f.respectRobots
	}
	if changed("visited-backend") {
		appCfg.VisitedBackend = f.visitedBackend
	}
}

func runPipeline(cmd *cobra.Command, f *runFlags) (int, error) {
	logger, err := applog.NewLogger(f.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return 1, err
	}
	log := logrus.NewEntry(logger)

	appCfg, err := config.Load(f.configFile)
	if err != nil {
		return 1, err
	}
	applyOverrides(cmd, f, appCfg)

	warnings, err := appCfg.Validate()
	if err != nil {
		return 1, err
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	logAppConfig(appCfg, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := handleSignals(cancel, log)
	defer stopSignals()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	stopMetrics := startMetricsServer(appCfg.MetricsAddr, reg, log)
	defer stopMetrics()

	pipeline, err := orchestrate.NewPipeline(ctx, appCfg, m, log)
	if err != nil {
		return 1, fmt.Errorf("initialize pipeline: %w", err)
	}
	defer pipeline.Close()

	report, runErr := pipeline.Run(ctx)
	if report != nil {
		report.Summary(cmd.OutOrStdout())
		if appCfg.MetadataFile != "" {
			if err := orchestrate.WriteMetadata(appCfg.MetadataFile, report); err != nil {
				log.Errorf("Writing run metadata: %v", err)
			} else {
				log.Infof("Run metadata written to %s", appCfg.MetadataFile)
			}
		}
	}

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		log.Warn("Run interrupted")
		return 1, nil
	case runErr != nil:
		return 1, runErr
	}
	return report.ExitCode(), nil
}

// handleSignals cancels the run on the first SIGINT/SIGTERM and forces exit on a second
// signal or when the grace period runs out.
func handleSignals(cancel context.CancelFunc, log *logrus.Entry) func() {
	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(shutdownGracePeriod):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// startMetricsServer serves /metrics on addr for the lifetime of the run. An empty addr disables it.
func startMetricsServer(addr string, reg *prometheus.Registry, log *logrus.Entry) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("Serving metrics at http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func newValidateCmd(exitCode *int) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Run: func(cmd *cobra.Command, _ []string) {
			*exitCode = doValidate(configFile, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	return cmd
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Entry) {
	log.Info("Effective configuration:")
	log.Infof("  Seed URL:           %s", appCfg.SeedURL)
	log.Infof("  Article prefix:     %s", appCfg.ArticlePrefix)
	log.Infof("  Max depth:          %d", appCfg.MaxDepth)
	log.Infof("  Max links per page: %d", appCfg.MaxLinksPerPage)
	log.Infof("  Concurrency:        %d", appCfg.Concurrency)
	log.Infof("  Request delay:      %v", appCfg.RequestDelay)
	log.Infof("  Max retries:        %d", appCfg.MaxRetries)
	log.Infof("  Respect robots:     %t", appCfg.RespectRobots)
	log.Infof("  Visited backend:    %s", appCfg.VisitedBackend)
	if appCfg.Database.DSN == "" {
		log.Info("  Database:           (none, load skipped)")
	} else {
		log.Infof("  Min content length: %d", appCfg.Database.MinContentLength)
	}
}
