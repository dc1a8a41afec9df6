package worker

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per remote host with token buckets.
// A host's pace can be slowed (never sped up) by SetFloor, which is how
// robots.txt Crawl-delay values are applied.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing requestsPerSecond per host.
// A non-positive rate disables limiting.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	r := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		r = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host is permitted
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host, err := HostOf(rawURL)
	if err != nil {
		return err
	}
	return l.limiter(host).Wait(ctx)
}

// Allow reports whether a request may happen now, consuming a token if so
func (l *HostLimiter) Allow(rawURL string) bool {
	host, err := HostOf(rawURL)
	if err != nil {
		return false
	}
	return l.limiter(host).Allow()
}

// SetFloor guarantees at least interval between requests to host
func (l *HostLimiter) SetFloor(host string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	lim := l.limiter(strings.ToLower(host))
	floor := rate.Every(interval)
	if floor < lim.Limit() {
		lim.SetLimit(floor)
		lim.SetBurst(1)
	}
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = lim
	}
	return lim
}

// HostOf returns the lowercased host (with port) of rawURL
func HostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Host), nil
}
