package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestDoValidate_Valid(t *testing.T) {
	cfgPath := writeConfig(t, `
seed_url: "https://en.wikipedia.org/wiki/Toronto"
max_depth: 1
concurrency: 0
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN: concurrency")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_SeedOutsidePrefix(t *testing.T) {
	cfgPath := writeConfig(t, `seed_url: "https://en.wikipedia.org/w/index.php"`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "article_prefix")
}

func TestDoValidate_FileNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent/path/config.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "read config")
}

func TestApplyOverrides_OnlyChangedFlags(t *testing.T) {
	exitCode := 0
	root := newRootCmd(&exitCode)
	cmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--depth", "4", "--db", "postgres://localhost/wiki", "--request-delay", "0s"}))

	appCfg := config.Default()
	appCfg.Concurrency = 3
	applyOverrides(cmd, &runFlags{
		depth:        4,
		dsn:          "postgres://localhost/wiki",
		requestDelay: 0,
		concurrency:  config.DefaultConcurrency,
	}, &appCfg)

	assert.Equal(t, 4, appCfg.MaxDepth)
	assert.Equal(t, "postgres://localhost/wiki", appCfg.Database.DSN)
	assert.Equal(t, time.Duration(0), appCfg.RequestDelay)
	assert.Equal(t, 3, appCfg.Concurrency, "unset flags leave config values alone")
	assert.Equal(t, config.DefaultSeedURL, appCfg.SeedURL)
}

func TestExecute_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"version"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "wikietl "+version)
}

func TestExecute_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"bogus"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestExecute_RunInvalidLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--loglevel", "loud"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid log level")
}

func TestExecute_RunDryRunWritesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/Seed" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `<html><body><h1 id="firstHeading">Seed</h1><div id="mw-content-text">
<p>The seed article of the local test wiki has a paragraph long enough to summarise.</p>
</div></body></html>`)
	}))
	defer srv.Close()

	metaPath := filepath.Join(t.TempDir(), "run.yaml")
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run",
		"--url", srv.URL + "/wiki/Seed",
		"--depth", "0",
		"--request-delay", "0s",
		"--metadata", metaPath,
		"--loglevel", "error",
	}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Pages: 1 crawled")
	assert.Contains(t, stdout.String(), "Load phase:    skipped")

	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pages_crawled: 1")
}

func TestExecute_RunReportsPageErrorsInExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/Seed" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `<html><body><h1 id="firstHeading">Seed</h1><div id="mw-content-text">
<p>The seed article of the local test wiki links to a page that does not exist.</p>
<a href="/wiki/Missing">Missing</a></div></body></html>`)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run",
		"--url", srv.URL + "/wiki/Seed",
		"--depth", "1",
		"--request-delay", "0s",
		"--loglevel", "error",
	}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "Errors (1):")
	assert.Contains(t, stdout.String(), "HTTP_404")
}
