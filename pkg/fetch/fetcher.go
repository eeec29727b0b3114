package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/metrics"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// drainLimit caps how much of a discarded body is read to allow connection reuse
const drainLimit = 64 << 10

// Document is a successfully fetched page
type Document struct {
	URL          string     // URL as requested
	FinalURL     string     // URL after redirects
	StatusCode   int
	Body         string     // Decoded to UTF-8
	LastModified *time.Time // nil when the header is absent or unparsable
	Attempts     int
}

// Fetcher performs GETs through a Gate with bounded retries and exponential backoff
type Fetcher struct {
	client  *http.Client
	gate    *Gate
	cfg     config.CrawlConfig
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. m may be nil.
func NewFetcher(client *http.Client, gate *Gate, cfg config.CrawlConfig, m *metrics.Metrics, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		gate:    gate,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// Fetch GETs rawURL, making at most cfg.MaxRetries attempts.
// Statuses 429, 500, 502 and 503 and transport failures are retried after
// BackoffUnit * 2^attempt; any other non-2xx status ends the fetch immediately.
// Every attempt passes through the Gate. Cancellation of ctx aborts the fetch
// without further attempts.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	reqLog := f.log.WithField("url", rawURL)

	maxAttempts := f.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, retryable, err := f.attempt(ctx, rawURL, reqLog.WithField("attempt", attempt))
		if err == nil {
			doc.Attempts = attempt + 1
			return doc, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		if !retryable {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		wait := f.backoff(attempt)
		reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxAttempts, "delay": wait}).Warnf("Retrying request after error: %v", err)
		f.metrics.ObserveRetry()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			reqLog.Warnf("Context cancelled during retry sleep: %v", ctx.Err())
			return nil, fmt.Errorf("%w during retry backoff after error: %w", ctx.Err(), lastErr)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxAttempts, lastErr)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", utils.ErrRetryFailed, rawURL, maxAttempts, lastErr)
}

// backoff returns BackoffUnit * 2^attempt
func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return f.cfg.BackoffUnit * time.Duration(int64(1)<<attempt)
}

// attempt performs a single gated request. retryable reports whether a failed
// attempt may be repeated.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, log *logrus.Entry) (doc *Document, retryable bool, err error) {
	release, err := f.gate.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	attemptCtx := ctx
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveAttempt(metrics.OutcomeTransport, time.Since(start))
		log.Warnf("Network error: %v", err)
		return nil, true, err
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
		resp.Body.Close()
	}()

	status := resp.StatusCode
	resLog := log.WithField("status_code", status)

	switch {
	case status >= 200 && status < 300:
		body, readErr := readLimited(resp.Body, f.maxPageBytes())
		if readErr != nil {
			f.metrics.ObserveAttempt(metrics.OutcomeTransport, time.Since(start))
			if errors.Is(readErr, utils.ErrBodyTooLarge) {
				return nil, false, readErr
			}
			return nil, true, readErr
		}
		f.metrics.ObserveAttempt(metrics.OutcomeSuccess, time.Since(start))
		resLog.Debug("Successfully fetched")

		return &Document{
			URL:          rawURL,
			FinalURL:     resp.Request.URL.String(),
			StatusCode:   status,
			Body:         decodeBody(body, resp.Header.Get("Content-Type")),
			LastModified: parseLastModified(resp.Header.Get("Last-Modified"), resLog),
		}, false, nil

	case isRetryableStatus(status):
		f.metrics.ObserveAttempt(metrics.OutcomeRetryable, time.Since(start))
		sentinel := utils.ErrServerHTTPError
		if status == http.StatusTooManyRequests {
			sentinel = utils.ErrRateLimited
		}
		resLog.Warn("Retryable status received")
		return nil, true, fmt.Errorf("%w: status %d %s", sentinel, status, http.StatusText(status))

	case status >= 500:
		f.metrics.ObserveAttempt(metrics.OutcomeTerminal, time.Since(start))
		resLog.Warn("Server error, not retrying")
		return nil, false, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, status, http.StatusText(status))

	case status >= 400:
		f.metrics.ObserveAttempt(metrics.OutcomeTerminal, time.Since(start))
		resLog.Warn("Client error (4xx), not retrying")
		return nil, false, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, status, http.StatusText(status))

	default:
		f.metrics.ObserveAttempt(metrics.OutcomeTerminal, time.Since(start))
		resLog.Warnf("Non-retryable/unexpected status: %d", status)
		return nil, false, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, status, http.StatusText(status))
	}
}

func (f *Fetcher) maxPageBytes() int64 {
	if f.cfg.MaxPageBytes > 0 {
		return f.cfg.MaxPageBytes
	}
	return config.DefaultMaxPageBytes
}

// isRetryableStatus reports whether status is one of the transient statuses worth retrying
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

// readLimited reads at most limit bytes, failing with ErrBodyTooLarge beyond that
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", utils.ErrBodyTooLarge, limit)
	}
	return body, nil
}

// decodeBody returns body as UTF-8. Bodies that are not valid UTF-8 are decoded
// using the Content-Type charset or a meta sniff, falling back to the raw bytes.
func decodeBody(body []byte, contentType string) string {
	if utf8.Valid(body) {
		return string(body)
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// parseLastModified parses an HTTP date, returning nil when it is absent or malformed
func parseLastModified(header string, log *logrus.Entry) *time.Time {
	if header == "" {
		return nil
	}
	t, err := http.ParseTime(header)
	if err != nil {
		log.Debugf("Ignoring unparsable Last-Modified %q: %v", header, err)
		return nil
	}
	t = t.UTC()
	return &t
}
