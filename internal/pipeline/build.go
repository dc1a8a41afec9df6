package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/prospector/internal/cache"
	"github.com/ppiankov/prospector/internal/dedup"
	"github.com/ppiankov/prospector/internal/extract"
	"github.com/ppiankov/prospector/internal/fetch"
	"github.com/ppiankov/prospector/internal/llm"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/normalize"
	"github.com/ppiankov/prospector/internal/output"
	"github.com/ppiankov/prospector/internal/pacing"
	"github.com/ppiankov/prospector/internal/render"
	"github.com/ppiankov/prospector/internal/search"
	"github.com/ppiankov/prospector/internal/util"
	"github.com/ppiankov/prospector/internal/worker"
)

const (
	fetchRetries = 3
	fetchBackoff = time.Second
	robotsTTL    = 6 * time.Hour
)

// Build wires the production orchestrator described by cfg. The caller owns
// the result and must Close it.
func Build(cfg *model.Config, logger *slog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := util.NewTransport(cfg.HTTP)
	policy := pacing.NewRandom(cfg.Search.DelayBetweenSearches, cfg.Extraction.DelayBetweenExtractions, cfg.Extraction.UserAgents)

	// Search
	var provider search.Provider = search.NewGoogle(
		cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.BaseURL,
		model.Seconds(cfg.Search.Timeout), transport, logger,
	)
	if cfg.Search.DailyLimit > 0 {
		provider = search.NewBudget(provider, cfg.Search.DailyLimit, 0)
	}

	// Extraction
	scanner, err := extract.NewScanner(cfg.Extraction.PhonePattern)
	if err != nil {
		return nil, err
	}

	fetchOpts := []fetch.Option{fetch.WithRetries(fetchRetries, fetchBackoff)}
	if c := cache.New(cfg.Cache); c != nil {
		fetchOpts = append(fetchOpts, fetch.WithCache(c, model.Seconds(cfg.Cache.TTL)))
	}
	fetcher := fetch.NewFetcher(model.Seconds(cfg.Extraction.FetchTimeout), cfg.Extraction.MaxBodyBytes, transport, fetchOpts...)

	deps := extract.Deps{
		Limiter: worker.NewHostLimiter(cfg.Extraction.RequestsPerSecondPerHost, 1),
		Policy:  policy,
		Scanner: scanner,
		Logger:  logger,
	}
	if cfg.Extraction.RespectRobots {
		deps.Robots = util.NewRobotsChecker(
			cfg.Extraction.RobotsAgent, policy.UserAgent(),
			model.Seconds(cfg.Extraction.FetchTimeout), robotsTTL, transport,
		)
	}

	resolver, err := llm.NewResolver(llm.ConfigFromModel(cfg.LLM, transport))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	if resolver != nil {
		deps.Names = resolver
		logger.Info("business names resolved by LLM", "provider", resolver.Name())
	}

	chrome := render.NewChrome(cfg.Render, logger)
	selector := extract.NewSelector(cfg.Extraction, fetcher, policy, scanner, extract.WithSelectorLogger(logger))

	// Consolidation and persistence
	var (
		store   dedup.Store
		closers []func() error
	)
	closers = append(closers, func() error { chrome.Close(); return nil })

	if strings.EqualFold(cfg.Dedup.Backend, "redis") {
		rs := dedup.NewRedisStore(dedup.NewRedisClient(cfg.Dedup.RedisAddr), cfg.Dedup.RedisKey)
		closers = append(closers, rs.Close)
		store = rs
	} else {
		store = dedup.NewMemoryStore()
	}

	sink, err := output.New(cfg.Persist)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	closers = append(closers, sink.Close)
	logger.Debug("persisting", "sinks", sink.Names(), "dir", cfg.Persist.OutputDir)

	o := New(cfg, Deps{
		Provider:   provider,
		Selector:   selector,
		Static:     extract.NewStatic(fetcher, deps),
		Dynamic:    extract.NewDynamic(chrome, cfg.Render, deps),
		Normalizer: normalize.New(cfg.Normalize),
		Store:      store,
		Sink:       sink,
		Policy:     policy,
		Logger:     logger,
	})
	o.closers = closers
	return o, nil
}
