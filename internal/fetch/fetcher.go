package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/prospector/internal/cache"
	"github.com/ppiankov/prospector/internal/pacing"
)

const maxRedirects = 5

// fetchSleepFunc is replaced in tests to skip backoff waits
var fetchSleepFunc = pacing.Sleep

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Fetcher retrieves page bodies over HTTP
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	cache      cache.Cache
	cacheTTL   time.Duration
	retries    int
	backoff    time.Duration
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithCache serves repeated fetches from c
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithRetries sets the attempt count and initial backoff of FetchWithRetry
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.retries = attempts
		}
		f.backoff = backoff
	}
}

// NewFetcher creates a fetcher. transport may be nil for the default.
func NewFetcher(timeout time.Duration, maxBytes int64, transport http.RoundTripper, opts ...Option) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		retries:  3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is a fetched page
type Result struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
	Cached      bool
}

// Fetch retrieves rawURL once with the given request headers
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, header http.Header) (*Result, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(cache.PageKey(rawURL)); ok {
			return &Result{HTML: string(body), FinalURL: rawURL, StatusCode: http.StatusOK, Cached: true}, nil
		}
	}

	res, err := f.do(ctx, rawURL, header, f.maxBytes)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		_ = f.cache.Set(cache.PageKey(rawURL), []byte(res.HTML), f.cacheTTL)
	}
	return res, nil
}

// FetchWithRetry retries transient failures (5xx, 429, connection errors)
// with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, header http.Header) (*Result, error) {
	var lastErr error
	delay := f.backoff
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			if err := fetchSleepFunc(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		res, err := f.Fetch(ctx, rawURL, header)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// Probe performs one lightweight GET with its own timeout and body bound.
// It never retries and never touches the cache.
func (f *Fetcher) Probe(ctx context.Context, rawURL string, header http.Header, timeout time.Duration, maxBytes int64) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f.do(ctx, rawURL, header, maxBytes)
}

func (f *Fetcher) do(ctx context.Context, rawURL string, header http.Header, maxBytes int64) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// isRetryableFetchError reports whether a fetch error is worth another attempt
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "fetch:") &&
		(strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "EOF") ||
			strings.Contains(msg, "timeout"))
}
