package pacing

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/ppiankov/prospector/internal/model"
)

// Policy decides how long to wait between requests and which identity to present
type Policy interface {
	SearchDelay() time.Duration
	ExtractionDelay() time.Duration
	UserAgent() string
}

// Random draws delays uniformly from configured ranges and rotates User-Agents
type Random struct {
	searchMin, searchMax         time.Duration
	extractionMin, extractionMax time.Duration
	userAgents                   []string
}

// NewRandom creates a randomized policy from configuration
func NewRandom(search, extraction model.DelayRange, userAgents []string) *Random {
	r := &Random{userAgents: userAgents}
	r.searchMin, r.searchMax = search.Bounds()
	r.extractionMin, r.extractionMax = extraction.Bounds()
	if len(r.userAgents) == 0 {
		r.userAgents = model.DefaultUserAgents
	}
	return r
}

func (r *Random) SearchDelay() time.Duration {
	return between(r.searchMin, r.searchMax)
}

func (r *Random) ExtractionDelay() time.Duration {
	return between(r.extractionMin, r.extractionMax)
}

func (r *Random) UserAgent() string {
	return r.userAgents[rand.IntN(len(r.userAgents))]
}

func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// Fixed always returns the same delays and User-Agent. Used by tests and dry runs.
type Fixed struct {
	Search     time.Duration
	Extraction time.Duration
	Agent      string
}

func (f Fixed) SearchDelay() time.Duration     { return f.Search }
func (f Fixed) ExtractionDelay() time.Duration { return f.Extraction }

func (f Fixed) UserAgent() string {
	if f.Agent == "" {
		return "Prospector/test"
	}
	return f.Agent
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Headers returns browser-like request headers for the given User-Agent
func Headers(userAgent string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}
