package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/prospector/internal/fetch"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/pacing"
	"github.com/ppiankov/prospector/internal/render"
	"github.com/ppiankov/prospector/internal/util"
	"github.com/ppiankov/prospector/internal/worker"
)

// ErrRobotsDisallowed marks a URL that robots.txt excludes
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// ExtractionFailure is a per-URL load failure (network, timeout, render)
type ExtractionFailure struct {
	URL      string
	Strategy model.Strategy
	Err      error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("%s extraction of %s: %v", e.Strategy, e.URL, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// RobotsChecker answers robots.txt questions
type RobotsChecker interface {
	Check(ctx context.Context, rawURL string) (util.RobotsVerdict, error)
}

// Renderer produces the settled HTML of a script-driven page
type Renderer interface {
	Render(ctx context.Context, req render.Request) (string, error)
}

// PageFetcher retrieves static pages
type PageFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string, header http.Header) (*fetch.Result, error)
}

// pageSource loads page markup for one strategy
type pageSource interface {
	load(ctx context.Context, rawURL, userAgent string) (html string, finalURL string, err error)
}

type staticSource struct {
	fetcher PageFetcher
}

func (s staticSource) load(ctx context.Context, rawURL, userAgent string) (string, string, error) {
	res, err := s.fetcher.FetchWithRetry(ctx, rawURL, pacing.Headers(userAgent))
	if err != nil {
		return "", "", err
	}
	final := res.FinalURL
	if final == "" {
		final = rawURL
	}
	return res.HTML, final, nil
}

type dynamicSource struct {
	renderer     Renderer
	waitSelector string
	timeout      time.Duration
}

func (s dynamicSource) load(ctx context.Context, rawURL, userAgent string) (string, string, error) {
	out, err := s.renderer.Render(ctx, render.Request{
		URL:          rawURL,
		WaitSelector: s.waitSelector,
		Timeout:      s.timeout,
		UserAgent:    userAgent,
	})
	return out, rawURL, err
}

// Deps are the collaborators shared by both extractor flavours
type Deps struct {
	Robots  RobotsChecker      // nil disables robots checks
	Limiter *worker.HostLimiter // nil disables per-host limiting
	Policy  pacing.Policy
	Scanner *Scanner
	Names   NameResolver // optional
	Logger  *slog.Logger
}

// Extractor loads one page with a fixed strategy and scans it for contacts
type Extractor struct {
	strategy model.Strategy
	source   pageSource
	deps     Deps
	sleep    func(context.Context, time.Duration) error
}

// NewStatic returns an extractor that loads pages with plain HTTP GETs
func NewStatic(fetcher PageFetcher, deps Deps) *Extractor {
	return newExtractor(model.StrategyStatic, staticSource{fetcher: fetcher}, deps)
}

// NewDynamic returns an extractor that renders pages in a headless browser
func NewDynamic(renderer Renderer, cfg model.RenderConfig, deps Deps) *Extractor {
	return newExtractor(model.StrategyDynamic, dynamicSource{
		renderer:     renderer,
		waitSelector: cfg.WaitSelector,
		timeout:      model.Seconds(cfg.Timeout),
	}, deps)
}

func newExtractor(strategy model.Strategy, source pageSource, deps Deps) *Extractor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Policy == nil {
		deps.Policy = pacing.Fixed{}
	}
	return &Extractor{
		strategy: strategy,
		source:   source,
		deps:     deps,
		sleep:    pacing.Sleep,
	}
}

// Strategy reports how this extractor loads pages
func (e *Extractor) Strategy() model.Strategy {
	return e.strategy
}

// Extract checks robots.txt, paces, loads and scans one candidate URL.
// A page without any email or phone yields no candidates and no error.
func (e *Extractor) Extract(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
	log := e.deps.Logger.With("url", cand.URL, "strategy", e.strategy.String())

	if e.deps.Robots != nil {
		verdict, err := e.deps.Robots.Check(ctx, cand.URL)
		if err != nil {
			return nil, e.failure(cand.URL, err)
		}
		if !verdict.Allowed {
			return nil, fmt.Errorf("%s: %w", cand.URL, ErrRobotsDisallowed)
		}
		if verdict.CrawlDelay > 0 && e.deps.Limiter != nil {
			if host, err := worker.HostOf(cand.URL); err == nil {
				e.deps.Limiter.SetFloor(host, verdict.CrawlDelay)
			}
		}
	}

	ua := e.deps.Policy.UserAgent()

	if err := e.sleep(ctx, e.deps.Policy.ExtractionDelay()); err != nil {
		return nil, err
	}
	if e.deps.Limiter != nil {
		if err := e.deps.Limiter.Wait(ctx, cand.URL); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, e.failure(cand.URL, err)
		}
	}

	markup, finalURL, err := e.source.load(ctx, cand.URL, ua)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, e.failure(cand.URL, err)
	}

	if err := e.sleep(ctx, e.deps.Policy.ExtractionDelay()); err != nil {
		return nil, err
	}

	page := e.deps.Scanner.Scan(markup, finalURL)
	if len(page.Emails) == 0 && len(page.Phones) == 0 {
		log.Debug("no contact data on page")
		return nil, nil
	}

	if e.deps.Names != nil {
		name, err := e.deps.Names.ResolveName(ctx, page.Hints)
		switch {
		case err != nil:
			log.Debug("name resolver failed, keeping heuristic", "error", err)
		case name != "":
			page.Hints.Heuristic = name
		}
	}

	cc := page.Candidate()
	cc.SourceURL = cand.URL
	log.Debug("contact data found", "emails", len(cc.Emails), "phones", len(cc.Phones))
	return []model.RawContactCandidate{cc}, nil
}

func (e *Extractor) failure(rawURL string, err error) error {
	return &ExtractionFailure{URL: rawURL, Strategy: e.strategy, Err: err}
}
