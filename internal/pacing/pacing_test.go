package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/prospector/internal/model"
)

func TestRandom_DelaysWithinRange(t *testing.T) {
	p := NewRandom(model.DelayRange{1, 2}, model.DelayRange{0.1, 0.2}, []string{"ua-1", "ua-2"})

	for i := 0; i < 200; i++ {
		d := p.SearchDelay()
		if d < time.Second || d > 2*time.Second {
			t.Fatalf("search delay %v out of [1s, 2s]", d)
		}
		e := p.ExtractionDelay()
		if e < 100*time.Millisecond || e > 200*time.Millisecond {
			t.Fatalf("extraction delay %v out of [100ms, 200ms]", e)
		}
	}
}

func TestRandom_DegenerateRange(t *testing.T) {
	p := NewRandom(model.DelayRange{3, 3}, model.DelayRange{}, nil)
	if d := p.SearchDelay(); d != 3*time.Second {
		t.Errorf("expected 3s, got %v", d)
	}
	if d := p.ExtractionDelay(); d != 0 {
		t.Errorf("expected 0 for malformed range, got %v", d)
	}
	if p.UserAgent() == "" {
		t.Error("expected default user agent pool")
	}
}

func TestRandom_UserAgentFromPool(t *testing.T) {
	pool := []string{"a", "b", "c"}
	p := NewRandom(model.DelayRange{0, 0}, model.DelayRange{0, 0}, pool)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ua := p.UserAgent()
		if ua != "a" && ua != "b" && ua != "c" {
			t.Fatalf("user agent %q not in pool", ua)
		}
		seen[ua] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected rotation across the pool, saw %v", seen)
	}
}

func TestFixed(t *testing.T) {
	f := Fixed{Search: time.Millisecond, Extraction: 2 * time.Millisecond}
	if f.SearchDelay() != time.Millisecond || f.ExtractionDelay() != 2*time.Millisecond {
		t.Error("fixed delays not returned")
	}
	if f.UserAgent() != "Prospector/test" {
		t.Errorf("unexpected default agent %q", f.UserAgent())
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep did not return on cancellation")
	}
}

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("sleep returned early")
	}
}

func TestHeaders(t *testing.T) {
	h := Headers("Mozilla/5.0 test")
	if h.Get("User-Agent") != "Mozilla/5.0 test" {
		t.Errorf("unexpected UA %q", h.Get("User-Agent"))
	}
	if h.Get("Accept-Language") == "" || h.Get("Accept") == "" {
		t.Error("expected browser-like headers")
	}
}
