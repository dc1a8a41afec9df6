package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 * 1024

// RobotsVerdict is the outcome of a robots.txt check
type RobotsVerdict struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// RobotsChecker checks robots.txt rules, caching parsed files per host
type RobotsChecker struct {
	cache      *gocache.Cache
	httpClient *http.Client
	agent      string
	userAgent  string
}

// NewRobotsChecker creates a checker matching groups for agent (e.g. "Prospector").
// userAgent is sent when fetching robots.txt itself.
func NewRobotsChecker(agent, userAgent string, timeout time.Duration, ttl time.Duration, transport http.RoundTripper) *RobotsChecker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsChecker{
		cache: gocache.New(ttl, 2*ttl),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		agent:     NormalizeUserAgent(agent),
		userAgent: userAgent,
	}
}

// Check reports whether rawURL may be fetched. A robots.txt that cannot be
// retrieved or parsed allows everything.
func (r *RobotsChecker) Check(ctx context.Context, rawURL string) (RobotsVerdict, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return RobotsVerdict{}, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return RobotsVerdict{}, fmt.Errorf("parse URL %q: missing host", rawURL)
	}

	data, err := r.robotsData(ctx, parsed)
	if err != nil {
		return RobotsVerdict{Allowed: true}, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	verdict := RobotsVerdict{Allowed: data.TestAgent(path, r.agent)}
	if group := data.FindGroup(r.agent); group != nil {
		verdict.CrawlDelay = group.CrawlDelay
	}
	return verdict, nil
}

// robotsData fetches and caches robots.txt for the URL's scheme and host
func (r *RobotsChecker) robotsData(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	origin := u.Scheme + "://" + u.Host
	if cached, ok := r.cache.Get(origin); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch robots.txt: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	// 4xx allows everything
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache.SetDefault(origin, data)
	return data, nil
}

// Clear drops every cached robots.txt
func (r *RobotsChecker) Clear() {
	r.cache.Flush()
}

// NormalizeUserAgent reduces a User-Agent header to its product token
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
