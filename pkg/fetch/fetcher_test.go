package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// testConfig returns a CrawlConfig with millisecond backoff for testing
func testConfig(maxRetries int) config.CrawlConfig {
	return config.CrawlConfig{
		Concurrency:    4,
		MaxRetries:     maxRetries,
		BackoffUnit:    time.Millisecond,
		RequestTimeout: 5 * time.Second,
		UserAgent:      "wiki-etl-test/1.0",
		MaxPageBytes:   1 << 20,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func newTestFetcher(cfg config.CrawlConfig) *Fetcher {
	gate := NewGate(cfg.Concurrency, cfg.RequestDelay, 0, testLogger())
	return NewFetcher(testClient(), gate, cfg, nil, testLogger())
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		if statusCodes[idx] == http.StatusOK {
			_, _ = io.WriteString(w, "<html><body>ok</body></html>")
		}
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetch_Success(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusOK})

	doc, err := newTestFetcher(testConfig(3)).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, "<html><body>ok</body></html>", doc.Body)
	assert.Equal(t, server.URL, doc.URL)
	assert.Equal(t, 1, doc.Attempts)
	assert.Nil(t, doc.LastModified)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_RetryThenSuccess(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		attempts int32
	}{
		{"503 503 200", []int{503, 503, 200}, 3},
		{"500 200", []int{500, 200}, 2},
		{"502 200", []int{502, 200}, 2},
		{"429 200", []int{429, 200}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.statuses)

			doc, err := newTestFetcher(testConfig(3)).Fetch(context.Background(), server.URL)

			require.NoError(t, err)
			assert.Equal(t, int(tt.attempts), doc.Attempts)
			assert.Equal(t, tt.attempts, attempts.Load())
		})
	}
}

func TestFetch_RetriesExhausted(t *testing.T) {
	server, attempts := mockServer(t, []int{503})

	doc, err := newTestFetcher(testConfig(3)).Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.Nil(t, doc)
	assert.True(t, errors.Is(err, utils.ErrRetryFailed))
	assert.True(t, errors.Is(err, utils.ErrServerHTTPError))
	assert.Equal(t, int32(3), attempts.Load(), "max_retries is the total attempt count")
}

func TestFetch_RateLimitExhausted(t *testing.T) {
	server, attempts := mockServer(t, []int{429})

	_, err := newTestFetcher(testConfig(2)).Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrRateLimited))
	assert.Equal(t, "RetryFailed_RateLimited", utils.CategorizeError(err))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetch_TerminalStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"404", http.StatusNotFound, utils.ErrClientHTTPError},
		{"403", http.StatusForbidden, utils.ErrClientHTTPError},
		{"501", http.StatusNotImplemented, utils.ErrServerHTTPError},
		{"504", http.StatusGatewayTimeout, utils.ErrServerHTTPError},
		{"304", http.StatusNotModified, utils.ErrOtherHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.status})

			_, err := newTestFetcher(testConfig(3)).Fetch(context.Background(), server.URL)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.False(t, errors.Is(err, utils.ErrRetryFailed))
			assert.Equal(t, int32(1), attempts.Load(), "terminal statuses are not retried")
		})
	}
}

func TestFetch_TransportErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestFetcher(testConfig(2)).Fetch(context.Background(), url)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrRetryFailed))
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestFetch_AttemptTimeoutRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = io.WriteString(w, "late but fine")
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(3)
	cfg.RequestTimeout = 50 * time.Millisecond

	doc, err := newTestFetcher(cfg).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "late but fine", doc.Body)
	assert.Equal(t, 2, doc.Attempts)
}

func TestFetch_LastModified(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   *time.Time
	}{
		{"RFC1123", "Wed, 21 Oct 2015 07:28:00 GMT", timePtr(time.Date(2015, 10, 21, 7, 28, 0, 0, time.UTC))},
		{"Garbage", "not a date", nil},
		{"Absent", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Last-Modified", tt.header)
				}
				_, _ = io.WriteString(w, "body")
			}))
			t.Cleanup(server.Close)

			doc, err := newTestFetcher(testConfig(1)).Fetch(context.Background(), server.URL)

			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, doc.LastModified)
				return
			}
			require.NotNil(t, doc.LastModified)
			assert.True(t, tt.want.Equal(*doc.LastModified))
		})
	}
}

func TestFetch_UserAgentSent(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
	}))
	t.Cleanup(server.Close)

	_, err := newTestFetcher(testConfig(1)).Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "wiki-etl-test/1.0", gotUA.Load())
}

func TestFetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 2048))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(3)
	cfg.MaxPageBytes = 1024

	_, err := newTestFetcher(cfg).Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrBodyTooLarge))
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{503})

	cfg := testConfig(5)
	cfg.BackoffUnit = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for attempts.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	start := time.Now()
	_, err := newTestFetcher(cfg).Fetch(ctx, server.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_ContextAlreadyCancelled(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(testConfig(3)).Fetch(ctx, server.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetch_Redirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wiki/New", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/wiki/New", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "new page")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	doc, err := newTestFetcher(testConfig(1)).Fetch(context.Background(), server.URL+"/wiki/Old")

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/wiki/Old", doc.URL)
	assert.Equal(t, server.URL+"/wiki/New", doc.FinalURL)
	assert.Equal(t, "new page", doc.Body)
}

func TestFetcher_Backoff(t *testing.T) {
	f := newTestFetcher(config.CrawlConfig{BackoffUnit: time.Second})

	assert.Equal(t, 1*time.Second, f.backoff(0))
	assert.Equal(t, 2*time.Second, f.backoff(1))
	assert.Equal(t, 4*time.Second, f.backoff(2))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
